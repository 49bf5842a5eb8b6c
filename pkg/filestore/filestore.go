package filestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/igolaizola/lyricvid/pkg/filestore/local"
	"github.com/igolaizola/lyricvid/pkg/filestore/s3"
	"github.com/igolaizola/lyricvid/pkg/filestore/tgstore"
)

type fs interface {
	Upload(ctx context.Context, path, name string) error
	Download(ctx context.Context, path, name string) error
	Delete(ctx context.Context, name string) error
}

type publicURL interface {
	PublicURL(name string) string
}

// Store keeps copies of the generated media in a remote location.
type Store struct {
	fs fs
}

func (s *Store) SetMP3(ctx context.Context, path, id string) error {
	return s.fs.Upload(ctx, path, MP3(id))
}

func (s *Store) SetJPG(ctx context.Context, path, id string) error {
	return s.fs.Upload(ctx, path, JPG(id))
}

func (s *Store) SetMP4(ctx context.Context, path, id string) error {
	return s.fs.Upload(ctx, path, MP4(id))
}

func (s *Store) GetMP3(ctx context.Context, path, id string) error {
	return s.fs.Download(ctx, path, MP3(id))
}

func (s *Store) GetJPG(ctx context.Context, path, id string) error {
	return s.fs.Download(ctx, path, JPG(id))
}

func (s *Store) GetMP4(ctx context.Context, path, id string) error {
	return s.fs.Download(ctx, path, MP4(id))
}

// Delete removes the audio, cover and video stored for an id. Every file is
// attempted and the errors are joined.
func (s *Store) Delete(ctx context.Context, id string) error {
	var errs []error
	for _, name := range []string{MP3(id), JPG(id), MP4(id)} {
		if err := s.fs.Delete(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// URL returns the public address of a stored file or an empty string if the
// backend doesn't expose one.
func (s *Store) URL(name string) string {
	if p, ok := s.fs.(publicURL); ok {
		return p.PublicURL(name)
	}
	return ""
}

// New creates a file store. Supported types are:
//   - local: conn is a directory
//   - s3: conn is key:secret@bucket.region[@endpoint]
//   - telegram: conn is token@chat, file references are kept in refs
func New(typ, conn, proxy string, debug bool, refs tgstore.RefStore) (*Store, error) {
	var fs fs
	switch typ {
	case "telegram":
		if refs == nil {
			return nil, fmt.Errorf("filestore: telegram requires a database to keep file references")
		}
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid telegram connection string %q", conn)
		}
		token := split[0]
		chat, err := strconv.ParseInt(split[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filestore: invalid telegram chat id %q: %w", split[1], err)
		}
		candidate, err := tgstore.New(token, chat, proxy, debug, refs)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "s3":
		// key:secret@bucket.region with an optional @endpoint suffix
		split := strings.SplitN(conn, "@", 3)
		if len(split) < 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		loc := strings.SplitN(split[1], ".", 2)
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		cfg := &s3.Config{
			Key:    auth[0],
			Secret: auth[1],
			Bucket: loc[0],
			Region: loc[1],
			Prefix: "lyricvid",
			Debug:  debug,
		}
		if len(split) == 3 {
			cfg.Endpoint = split[2]
		}
		candidate, err := s3.New(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local":
		candidate, err := local.New(conn, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}

func JPG(id string) string {
	return id + ".jpg"
}

func MP3(id string) string {
	return id + ".mp3"
}

func MP4(id string) string {
	return id + ".mp4"
}

package tgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api"
)

// RefStore keeps the telegram reference of every uploaded file.
type RefStore interface {
	GetFileRef(ctx context.Context, name string) (string, error)
	SetFileRef(ctx context.Context, name, ref string) error
}

// Store uploads media to a telegram chat. Videos, audio and images are sent
// as playable media so the chat doubles as a gallery of rendered tracks.
type Store struct {
	bot    *tgbot.BotAPI
	chat   int64
	client *http.Client
	debug  bool
	refs   RefStore
}

func New(token string, chat int64, proxy string, debug bool, refs RefStore) (*Store, error) {
	client := &http.Client{
		Timeout: 5 * time.Minute,
	}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("tgstore: invalid proxy %s: %w", proxy, err)
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	bot, err := tgbot.NewBotAPIWithClient(token, client)
	if err != nil {
		return nil, fmt.Errorf("tgstore: couldn't create bot: %w", err)
	}
	if _, err := bot.GetChat(tgbot.ChatConfig{ChatID: chat}); err != nil {
		return nil, fmt.Errorf("tgstore: invalid chat id %d: %w", chat, err)
	}
	return &Store{
		bot:    bot,
		chat:   chat,
		client: client,
		debug:  debug,
		refs:   refs,
	}, nil
}

func (s *Store) log(format string, args ...any) {
	if s.debug {
		log.Printf("tgstore: "+format+"\n", args...)
	}
}

type kind int

const (
	kindDocument kind = iota
	kindVideo
	kindAudio
	kindPhoto
)

func kindOf(name string) kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return kindVideo
	case ".mp3":
		return kindAudio
	case ".jpg", ".jpeg", ".png":
		return kindPhoto
	default:
		return kindDocument
	}
}

func (s *Store) message(path, name string) tgbot.Chattable {
	switch kindOf(name) {
	case kindVideo:
		v := tgbot.NewVideoUpload(s.chat, path)
		v.Caption = name
		return v
	case kindAudio:
		a := tgbot.NewAudioUpload(s.chat, path)
		a.Caption = name
		return a
	case kindPhoto:
		p := tgbot.NewPhotoUpload(s.chat, path)
		p.Caption = name
		return p
	default:
		d := tgbot.NewDocumentUpload(s.chat, path)
		d.Caption = name
		return d
	}
}

func (s *Store) Upload(ctx context.Context, path, name string) error {
	var msg tgbot.Message
	if err := s.retry(ctx, func() error {
		var err error
		msg, err = s.bot.Send(s.message(path, name))
		return err
	}); err != nil {
		return fmt.Errorf("tgstore: couldn't send %s: %w", name, err)
	}
	fileID := fileOf(&msg)
	if fileID == "" {
		js, _ := json.Marshal(msg)
		return fmt.Errorf("tgstore: message doesn't contain file: %s", string(js))
	}
	r := ref{chat: s.chat, message: msg.MessageID, file: fileID}
	if err := s.refs.SetFileRef(ctx, name, r.String()); err != nil {
		return fmt.Errorf("tgstore: couldn't set file %s: %w", name, err)
	}
	s.log("uploaded %s (%s)", name, r)
	return nil
}

func fileOf(msg *tgbot.Message) string {
	switch {
	case msg.Video != nil && msg.Video.FileID != "":
		return msg.Video.FileID
	case msg.Audio != nil && msg.Audio.FileID != "":
		return msg.Audio.FileID
	case msg.Document != nil && msg.Document.FileID != "":
		return msg.Document.FileID
	case msg.Photo != nil && len(*msg.Photo) > 0:
		// Sizes are sorted from smallest to largest
		photos := *msg.Photo
		return photos[len(photos)-1].FileID
	}
	return ""
}

func (s *Store) lookup(ctx context.Context, name string) (ref, error) {
	v, err := s.refs.GetFileRef(ctx, name)
	if err != nil {
		return ref{}, fmt.Errorf("tgstore: couldn't get file %s: %w", name, err)
	}
	return parseRef(v)
}

// Download fetches a previously uploaded file into path.
func (s *Store) Download(ctx context.Context, path, name string) error {
	r, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	file, err := s.bot.GetFile(tgbot.FileConfig{FileID: r.file})
	if err != nil {
		return fmt.Errorf("tgstore: couldn't get file %s: %w", name, err)
	}
	u := file.Link(s.bot.Token)
	if err := s.retry(ctx, func() error {
		return s.download(ctx, u, path)
	}); err != nil {
		return fmt.Errorf("tgstore: couldn't download %s: %w", name, err)
	}
	return nil
}

func (s *Store) download(ctx context.Context, u, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes the message holding a file.
func (s *Store) Delete(ctx context.Context, name string) error {
	r, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	if _, err := s.bot.DeleteMessage(tgbot.DeleteMessageConfig{
		ChatID:    r.chat,
		MessageID: r.message,
	}); err != nil {
		return fmt.Errorf("tgstore: couldn't delete message %d: %w", r.message, err)
	}
	return nil
}

var backoff = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	1 * time.Minute,
}

const maxAttempts = 3

func (s *Store) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff[min(attempt-1, len(backoff)-1)]
			s.log("%v (retrying in %s)", err, wait)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// ref locates an uploaded file: the chat, the message holding it and the
// telegram file id.
type ref struct {
	chat    int64
	message int
	file    string
}

func (r ref) String() string {
	return fmt.Sprintf("%d/%d/%s", r.chat, r.message, r.file)
}

func parseRef(v string) (ref, error) {
	split := strings.Split(v, "/")
	if len(split) != 3 || split[2] == "" {
		return ref{}, fmt.Errorf("tgstore: invalid ref %q", v)
	}
	chat, err := strconv.ParseInt(split[0], 10, 64)
	if err != nil {
		return ref{}, fmt.Errorf("tgstore: invalid ref %q: %w", v, err)
	}
	msg, err := strconv.Atoi(split[1])
	if err != nil {
		return ref{}, fmt.Errorf("tgstore: invalid ref %q: %w", v, err)
	}
	return ref{chat: chat, message: msg, file: split[2]}, nil
}

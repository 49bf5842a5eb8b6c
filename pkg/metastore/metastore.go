package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/igolaizola/lyricvid/pkg/filestore/tgstore"
	"github.com/igolaizola/lyricvid/pkg/jsonstore"
	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/redisstore"
	"github.com/igolaizola/lyricvid/pkg/storage"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Store is the metadata backend for tracks, timing data and videos.
type Store interface {
	timestamps.Store
	GetTrack(ctx context.Context, id string) (*storage.Track, error)
	SetTrack(ctx context.Context, t *storage.Track) error
	DeleteTrack(ctx context.Context, id string) error
	ListTracks(ctx context.Context, page, size int) ([]*storage.Track, error)
	SetVideo(ctx context.Context, v *storage.Video) error
	ListVideos(ctx context.Context, trackID string) ([]*storage.Video, error)
}

type Config struct {
	// DBType is one of json, sqlite, mysql or postgres.
	DBType string
	// DBConn is the json file path or the database connection string.
	DBConn string
	// Redis, if set, is used to cache timing data instead of the database.
	Redis    string
	RedisTTL time.Duration
	Debug    bool
}

// DB is an opened metadata store.
type DB struct {
	Store
	// Refs is nil when the backend can't keep file references.
	Refs   tgstore.RefStore
	closes []func() error
}

// Close releases every connection opened by Open.
func (d *DB) Close() error {
	var first error
	for i := len(d.closes) - 1; i >= 0; i-- {
		if err := d.closes[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens the configured backend, running migrations on sql databases.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	db := &DB{}
	switch cfg.DBType {
	case "json":
		if cfg.DBConn == "" {
			return nil, fmt.Errorf("metastore: json store requires a file path")
		}
		db.Store = jsonstore.New(cfg.DBConn)
	default:
		store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("metastore: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return nil, fmt.Errorf("metastore: %w", err)
		}
		db.closes = append(db.closes, store.Stop)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("metastore: %w", err)
		}
		db.Store = store
		db.Refs = store
	}
	if cfg.Redis != "" {
		rdb, err := redisstore.New(ctx, cfg.Redis, cfg.RedisTTL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("metastore: %w", err)
		}
		db.closes = append(db.closes, rdb.Close)
		db.Store = &withTimestamps{Store: db.Store, ts: rdb}
	}
	return db, nil
}

// withTimestamps overrides where timing data is kept.
type withTimestamps struct {
	Store
	ts timestamps.Store
}

func (w *withTimestamps) GetTimestamps(ctx context.Context, id string) ([]lyrics.TimedWord, error) {
	return w.ts.GetTimestamps(ctx, id)
}

func (w *withTimestamps) SetTimestamps(ctx context.Context, id string, words []lyrics.TimedWord) error {
	return w.ts.SetTimestamps(ctx, id, words)
}

type timestampDeleter interface {
	DeleteTimestamps(ctx context.Context, id string) error
}

// DeleteTrack also drops the timing data kept in the override store.
func (w *withTimestamps) DeleteTrack(ctx context.Context, id string) error {
	if err := w.Store.DeleteTrack(ctx, id); err != nil {
		return err
	}
	if d, ok := w.ts.(timestampDeleter); ok {
		return d.DeleteTimestamps(ctx, id)
	}
	return nil
}

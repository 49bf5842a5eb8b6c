package timestamps

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

var (
	// ErrTimingUnavailable is returned when timing data can't be obtained.
	// Callers are expected to fall back to evenly split intervals.
	ErrTimingUnavailable = errors.New("timestamps: timing unavailable")
	// ErrNotFound must be wrapped by stores when an entry doesn't exist.
	ErrNotFound = errors.New("timestamps: not found")
)

// FetchFunc obtains timing data for a track from an upstream source.
type FetchFunc func(ctx context.Context, trackID string) ([]lyrics.TimedWord, error)

// Store persists timing data keyed by track id.
type Store interface {
	GetTimestamps(ctx context.Context, trackID string) ([]lyrics.TimedWord, error)
	SetTimestamps(ctx context.Context, trackID string, words []lyrics.TimedWord) error
}

// Cache avoids redundant upstream calls for timing data.
// It doesn't serialize concurrent calls for the same track.
type Cache struct {
	store Store
	debug bool
}

func New(store Store, debug bool) *Cache {
	return &Cache{
		store: store,
		debug: debug,
	}
}

func (c *Cache) log(format string, args ...any) {
	if !c.debug {
		return
	}
	format += "\n"
	log.Printf("timestamps: "+format, args...)
}

// GetOrFetch returns the cached timing data for the track or, if there is
// none, fetches and stores it.
func (c *Cache) GetOrFetch(ctx context.Context, trackID string, fetch FetchFunc) ([]lyrics.TimedWord, error) {
	words, err := c.store.GetTimestamps(ctx, trackID)
	switch {
	case err == nil && len(words) > 0:
		c.log("cache hit for %s (%d words)", trackID, len(words))
		return words, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("timestamps: couldn't get %s: %w", trackID, err)
	}
	c.log("cache miss for %s", trackID)
	return c.Refetch(ctx, trackID, fetch)
}

// Refetch fetches timing data and replaces the cached entry. The cache is
// left untouched if the fetch fails or returns unusable data.
func (c *Cache) Refetch(ctx context.Context, trackID string, fetch FetchFunc) ([]lyrics.TimedWord, error) {
	if fetch == nil {
		return nil, fmt.Errorf("%w: no timing source for %s", ErrTimingUnavailable, trackID)
	}
	words, err := fetch(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTimingUnavailable, trackID, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s: no words returned", ErrTimingUnavailable, trackID)
	}
	if err := lyrics.Validate(words); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTimingUnavailable, trackID, err)
	}
	if err := c.store.SetTimestamps(ctx, trackID, words); err != nil {
		return nil, fmt.Errorf("timestamps: couldn't set %s: %w", trackID, err)
	}
	c.log("stored %d words for %s", len(words), trackID)
	return words, nil
}

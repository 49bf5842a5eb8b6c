package redisstore

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Set LYRICVID_TEST_REDIS (e.g. redis://localhost:6379/15) to run against a
// real server.
func newStore(t *testing.T) *Store {
	t.Helper()
	u := os.Getenv("LYRICVID_TEST_REDIS")
	if u == "" {
		t.Skip("LYRICVID_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := New(ctx, u, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKey(t *testing.T) {
	if got := key("song_1"); got != "lyricvid:timestamps:song_1" {
		t.Fatalf("key() = %q; want %q", got, "lyricvid:timestamps:song_1")
	}
}

func TestBadURL(t *testing.T) {
	if _, err := New(context.Background(), "http://nope", 0); err == nil {
		t.Fatal("New() err = nil; want error")
	}
}

func TestTimestamps(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := "test_" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = s.DeleteTimestamps(ctx, id) })

	if _, err := s.GetTimestamps(ctx, id); !errors.Is(err, timestamps.ErrNotFound) {
		t.Fatalf("GetTimestamps() err = %v; want %v", err, timestamps.ErrNotFound)
	}

	cache := timestamps.New(s, false)
	want := []lyrics.TimedWord{{Word: "hello", Start: 0, End: 0.5}, {Word: "world", Start: 0.5, End: 1}}
	calls := 0
	fetch := func(context.Context, string) ([]lyrics.TimedWord, error) {
		calls++
		return want, nil
	}
	for i := 0; i < 2; i++ {
		got, err := cache.GetOrFetch(ctx, id, fetch)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("GetOrFetch() = %v; want %v", got, want)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d; want 1", calls)
	}
}

package jsonstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/storage"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

const legacy = `{
  "lofi_1": {
    "paroles": "[Verse]\nHello world",
    "name": "lofi",
    "taskId": "task-1",
    "audioId": "audio-1",
    "API_KEY": "secret",
    "file_path": "music/lofi_1.mp3",
    "timestamped_lyrics": {
      "code": 200,
      "msg": "success",
      "data": {
        "alignedWords": [
          {"word": "[Verse]\nHello ", "success": true, "startS": 0.1, "endS": 0.5, "palign": 0},
          {"word": "world", "success": false, "startS": 0.5, "endS": 0.9, "palign": 0}
        ]
      }
    }
  },
  "lofi_2": {
    "paroles": "Ã©tÃ©",
    "name": "lofi",
    "taskId": "task-1",
    "audioId": "audio-2",
    "file_path": "music/lofi_2.mp3",
    "timestamped_lyrics": {"code": 429, "msg": "credits insufficient", "data": null}
  }
}`

func newLegacyStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "savedData.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}
	return New(path)
}

func TestLegacyDocument(t *testing.T) {
	ctx := context.Background()
	s := newLegacyStore(t)

	tr, err := s.GetTrack(ctx, "lofi_1")
	if err != nil {
		t.Fatalf("GetTrack() err = %v; want nil", err)
	}
	if tr.TaskID != "task-1" || tr.AudioID != "audio-1" || tr.Audio != "music/lofi_1.mp3" || tr.Title != "lofi" {
		t.Fatalf("GetTrack() = %+v", tr)
	}
	if tr, _ := s.GetTrack(ctx, "lofi_2"); tr.Lyrics != "été" {
		t.Fatalf("GetTrack() lyrics = %q; want %q", tr.Lyrics, "été")
	}
	if _, err := s.GetTrack(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetTrack() err = %v; want %v", err, storage.ErrNotFound)
	}

	words, err := s.GetTimestamps(ctx, "lofi_1")
	if err != nil {
		t.Fatal(err)
	}
	want := []lyrics.TimedWord{{Word: "[Verse]\nHello ", Start: 0.1, End: 0.5}}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("GetTimestamps() = %v; want %v", words, want)
	}

	// Cached error responses are fetched again
	if _, err := s.GetTimestamps(ctx, "lofi_2"); !errors.Is(err, timestamps.ErrNotFound) {
		t.Fatalf("GetTimestamps() err = %v; want %v", err, timestamps.ErrNotFound)
	}
	cache := timestamps.New(s, false)
	fresh := []lyrics.TimedWord{{Word: "été", Start: 1, End: 2}}
	got, err := cache.GetOrFetch(ctx, "lofi_2", func(context.Context, string) ([]lyrics.TimedWord, error) {
		return fresh, nil
	})
	if err != nil || !reflect.DeepEqual(got, fresh) {
		t.Fatalf("GetOrFetch() = %v, %v; want %v", got, err, fresh)
	}
	if got, _ := s.GetTimestamps(ctx, "lofi_2"); !reflect.DeepEqual(got, fresh) {
		t.Fatalf("GetTimestamps() = %v; want %v", got, fresh)
	}

	// Other entries are kept
	if tr, err := s.GetTrack(ctx, "lofi_1"); err != nil || tr.AudioID != "audio-1" {
		t.Fatalf("GetTrack() = %+v, %v", tr, err)
	}
}

func TestTracks(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "savedData.json"))

	if list, err := s.ListTracks(ctx, 1, 0); err != nil || len(list) != 0 {
		t.Fatalf("ListTracks() = %v, %v; want empty", list, err)
	}
	var wg sync.WaitGroup
	for _, id := range []string{"a_1", "a_2", "a_3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.SetTrack(ctx, &storage.Track{ID: id, Lyrics: "la la"}); err != nil {
				t.Error(err)
			}
		}(id)
	}
	wg.Wait()
	list, err := s.ListTracks(ctx, 1, 0)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListTracks() = %v, %v; want 3 tracks", list, err)
	}
	if page, _ := s.ListTracks(ctx, 2, 2); len(page) != 1 {
		t.Fatalf("ListTracks(2, 2) = %v; want 1 track", page)
	}

	if err := s.SetVideo(ctx, &storage.Video{TrackID: "a_1", Path: "video/a_1.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVideo(ctx, &storage.Video{TrackID: "zzz"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("SetVideo() err = %v; want %v", err, storage.ErrNotFound)
	}
	videos, err := s.ListVideos(ctx, "")
	if err != nil || len(videos) != 1 || videos[0].Path != "video/a_1.mp4" {
		t.Fatalf("ListVideos() = %v, %v", videos, err)
	}

	if err := s.DeleteTrack(ctx, "a_2"); err != nil {
		t.Fatal(err)
	}
	if list, _ := s.ListTracks(ctx, 1, 0); len(list) != 2 {
		t.Fatalf("ListTracks() = %v; want 2 tracks", list)
	}
}

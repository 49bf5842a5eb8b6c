package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/storage"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Store keeps track metadata in a single JSON document keyed by track id.
// The format is compatible with the savedData.json files written by earlier
// versions of the application.
type Store struct {
	path string
	lck  sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

// Entry is the JSON representation of a track.
type Entry struct {
	Paroles    string  `json:"paroles"`
	Name       string  `json:"name"`
	Style      string  `json:"style,omitempty"`
	TaskID     string  `json:"taskId"`
	AudioID    string  `json:"audioId"`
	MusicIndex int     `json:"musicIndex,omitempty"`
	Model      string  `json:"model,omitempty"`
	FilePath   string  `json:"file_path"`
	AudioURL   string  `json:"audio_url,omitempty"`
	ImagePath  string  `json:"image_path,omitempty"`
	ImageURL   string  `json:"image_url,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	CreatedAt  int64   `json:"created_at,omitempty"`

	TimestampedLyrics *TimestampedLyrics `json:"timestamped_lyrics,omitempty"`

	VideoURL    string `json:"videoUrl,omitempty"`
	VideoPath   string `json:"video_path,omitempty"`
	VideoStatus string `json:"videoStatus,omitempty"`
}

// TimestampedLyrics mirrors the API response of the timestamped lyrics
// endpoint.
type TimestampedLyrics struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		AlignedWords []AlignedWord `json:"alignedWords"`
	} `json:"data"`
}

type AlignedWord struct {
	Word    string  `json:"word"`
	Success bool    `json:"success"`
	StartS  float64 `json:"startS"`
	EndS    float64 `json:"endS"`
	PAlign  float64 `json:"palign"`
}

func (s *Store) load() (map[string]*Entry, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonstore: couldn't read %s: %w", s.path, err)
	}
	entries := map[string]*Entry{}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("jsonstore: couldn't decode %s: %w", s.path, err)
	}
	return entries, nil
}

// save writes the document to a temporary file and renames it, so readers
// never see a partial document.
func (s *Store) save(entries map[string]*Entry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: couldn't encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("jsonstore: couldn't create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonstore: couldn't create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: couldn't write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: couldn't close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: couldn't rename %s: %w", tmp, err)
	}
	return nil
}

// update runs fn on the loaded document and saves it if fn succeeds.
func (s *Store) update(fn func(map[string]*Entry) error) error {
	s.lck.Lock()
	defer s.lck.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(entries); err != nil {
		return err
	}
	return s.save(entries)
}

func (s *Store) get(id string) (*Entry, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[id]
	if !ok || e == nil {
		return nil, nil
	}
	return e, nil
}

func toTrack(id string, e *Entry) *storage.Track {
	t := &storage.Track{
		ID:         id,
		TaskID:     e.TaskID,
		AudioID:    e.AudioID,
		MusicIndex: e.MusicIndex,
		Title:      e.Name,
		Style:      e.Style,
		Lyrics:     lyrics.Repair(e.Paroles),
		Model:      e.Model,
		Audio:      e.FilePath,
		AudioURL:   e.AudioURL,
		Image:      e.ImagePath,
		ImageURL:   e.ImageURL,
		Duration:   e.Duration,
	}
	if e.CreatedAt > 0 {
		t.CreatedAt = time.Unix(e.CreatedAt, 0).UTC()
		t.UpdatedAt = t.CreatedAt
	}
	return t
}

func (s *Store) GetTrack(ctx context.Context, id string) (*storage.Track, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("jsonstore: track %s: %w", id, storage.ErrNotFound)
	}
	return toTrack(id, e), nil
}

func (s *Store) SetTrack(ctx context.Context, t *storage.Track) error {
	return s.update(func(entries map[string]*Entry) error {
		e, ok := entries[t.ID]
		if !ok || e == nil {
			e = &Entry{}
			entries[t.ID] = e
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		e.Paroles = t.Lyrics
		e.Name = t.Title
		e.Style = t.Style
		e.TaskID = t.TaskID
		e.AudioID = t.AudioID
		e.MusicIndex = t.MusicIndex
		e.Model = t.Model
		e.FilePath = t.Audio
		e.AudioURL = t.AudioURL
		e.ImagePath = t.Image
		e.ImageURL = t.ImageURL
		e.Duration = t.Duration
		e.CreatedAt = t.CreatedAt.Unix()
		return nil
	})
}

func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	return s.update(func(entries map[string]*Entry) error {
		delete(entries, id)
		return nil
	})
}

// ListTracks returns tracks from newest to oldest. A size of zero returns
// all of them.
func (s *Store) ListTracks(ctx context.Context, page, size int) ([]*storage.Track, error) {
	s.lck.Lock()
	entries, err := s.load()
	s.lck.Unlock()
	if err != nil {
		return nil, err
	}
	var tracks []*storage.Track
	for id, e := range entries {
		if e == nil {
			continue
		}
		tracks = append(tracks, toTrack(id, e))
	}
	sort.Slice(tracks, func(i, j int) bool {
		if !tracks[i].CreatedAt.Equal(tracks[j].CreatedAt) {
			return tracks[i].CreatedAt.After(tracks[j].CreatedAt)
		}
		return tracks[i].ID < tracks[j].ID
	})
	if size <= 0 {
		return tracks, nil
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(tracks) {
		return nil, nil
	}
	return tracks[start:min(start+size, len(tracks))], nil
}

// GetTimestamps returns the cached timing data of a track. Cached error
// responses are reported as not found so they get fetched again.
func (s *Store) GetTimestamps(ctx context.Context, id string) ([]lyrics.TimedWord, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.TimestampedLyrics == nil || e.TimestampedLyrics.Data == nil || len(e.TimestampedLyrics.Data.AlignedWords) == 0 {
		return nil, fmt.Errorf("jsonstore: timestamps %s: %w", id, timestamps.ErrNotFound)
	}
	var words []lyrics.TimedWord
	for _, w := range e.TimestampedLyrics.Data.AlignedWords {
		if !w.Success {
			continue
		}
		words = append(words, lyrics.TimedWord{Word: lyrics.Repair(w.Word), Start: w.StartS, End: w.EndS})
	}
	return words, nil
}

func (s *Store) SetTimestamps(ctx context.Context, id string, words []lyrics.TimedWord) error {
	return s.update(func(entries map[string]*Entry) error {
		e, ok := entries[id]
		if !ok || e == nil {
			e = &Entry{}
			entries[id] = e
		}
		tl := &TimestampedLyrics{Code: 200, Msg: "success"}
		tl.Data = &struct {
			AlignedWords []AlignedWord `json:"alignedWords"`
		}{}
		for _, w := range words {
			tl.Data.AlignedWords = append(tl.Data.AlignedWords, AlignedWord{
				Word:    w.Word,
				Success: true,
				StartS:  w.Start,
				EndS:    w.End,
			})
		}
		e.TimestampedLyrics = tl
		return nil
	})
}

// SetVideo records the last video of a track.
func (s *Store) SetVideo(ctx context.Context, v *storage.Video) error {
	return s.update(func(entries map[string]*Entry) error {
		e, ok := entries[v.TrackID]
		if !ok || e == nil {
			return fmt.Errorf("jsonstore: track %s: %w", v.TrackID, storage.ErrNotFound)
		}
		e.VideoPath = v.Path
		e.VideoURL = v.URL
		e.VideoStatus = "completed"
		return nil
	})
}

func (s *Store) ListVideos(ctx context.Context, trackID string) ([]*storage.Video, error) {
	s.lck.Lock()
	entries, err := s.load()
	s.lck.Unlock()
	if err != nil {
		return nil, err
	}
	var videos []*storage.Video
	for id, e := range entries {
		if e == nil || (trackID != "" && id != trackID) {
			continue
		}
		if e.VideoPath == "" && e.VideoURL == "" {
			continue
		}
		videos = append(videos, &storage.Video{
			ID:      id,
			TrackID: id,
			Path:    e.VideoPath,
			URL:     e.VideoURL,
		})
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	return videos, nil
}

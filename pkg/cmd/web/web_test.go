package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/igolaizola/lyricvid/pkg/jsonstore"
	"github.com/igolaizola/lyricvid/pkg/pipeline"
	"github.com/igolaizola/lyricvid/pkg/storage"
)

type fakeRunner struct {
	fail    bool
	deleted []string
}

func (f *fakeRunner) Generate(ctx context.Context, song *pipeline.Song, progress pipeline.Progress) ([]*storage.Track, error) {
	progress("generating %s", song.Title)
	return []*storage.Track{{ID: "song_1", Title: song.Title}}, nil
}

func (f *fakeRunner) Video(ctx context.Context, trackID string, progress pipeline.Progress) (*storage.Video, error) {
	progress("aligning %s", trackID)
	progress("rendering %s", trackID)
	if f.fail {
		return nil, errors.New("encoder exploded")
	}
	return &storage.Video{TrackID: trackID, Path: trackID + ".mp4"}, nil
}

func (f *fakeRunner) RemoteVideo(ctx context.Context, trackID, author string, progress pipeline.Progress) (*storage.Video, error) {
	return &storage.Video{TrackID: trackID, Remote: true}, nil
}

func (f *fakeRunner) Delete(ctx context.Context, trackID string) error {
	if trackID != "song_1" {
		return fmt.Errorf("track %s: %w", trackID, storage.ErrNotFound)
	}
	f.deleted = append(f.deleted, trackID)
	return nil
}

func newTestServer(t *testing.T, runner *fakeRunner, creds map[string]string) (*httptest.Server, *server) {
	t.Helper()
	dir := t.TempDir()
	store := jsonstore.New(filepath.Join(dir, "savedData.json"))
	if err := store.SetTrack(context.Background(), &storage.Track{
		ID:       "song_1",
		Title:    "Song",
		Audio:    filepath.Join(dir, "song_1.mp3"),
		ImageURL: "https://cdn.example.com/song_1.jpg",
		Duration: 120,
	}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &server{
		ctx:         ctx,
		store:       store,
		runner:      runner,
		jobs:        newJobs(),
		output:      dir,
		credentials: creds,
	}
	h, err := s.router()
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		s.jobs.wait()
	})
	return srv, s
}

func TestListTracks(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, nil)
	resp, err := http.Get(srv.URL + "/api/tracks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var tracks []*Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 {
		t.Fatalf("tracks = %d; want 1", len(tracks))
	}
	got := tracks[0]
	if got.Audio != "/files/song_1.mp3" || got.Image != "https://cdn.example.com/song_1.jpg" {
		t.Fatalf("track = %+v", got)
	}
}

func readEvents(t *testing.T, srv *httptest.Server, id string) []Event {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var events []Event
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() err = %v after %v", err, events)
		}
		events = append(events, ev)
		if ev.Status != Running {
			return events
		}
	}
}

func startVideo(t *testing.T, srv *httptest.Server, id string) (*Job, int) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/tracks/"+id+"/video", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var job Job
	_ = json.NewDecoder(resp.Body).Decode(&job)
	return &job, resp.StatusCode
}

func TestVideoJob(t *testing.T) {
	tests := []struct {
		name   string
		fail   bool
		status Status
	}{
		{"done", false, Done},
		{"failed", true, Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, s := newTestServer(t, &fakeRunner{fail: tt.fail}, nil)
			job, code := startVideo(t, srv, "song_1")
			if code != http.StatusAccepted {
				t.Fatalf("status = %d; want %d", code, http.StatusAccepted)
			}
			if job.ID == "" || job.TrackID != "song_1" {
				t.Fatalf("job = %+v", job)
			}
			events := readEvents(t, srv, job.ID)
			if len(events) != 3 {
				t.Fatalf("events = %+v; want 3", events)
			}
			if events[0].Message != "aligning song_1" || events[1].Message != "rendering song_1" {
				t.Fatalf("events = %+v", events)
			}
			last := events[2]
			if last.Status != tt.status {
				t.Fatalf("last status = %s; want %s", last.Status, tt.status)
			}
			if tt.fail && last.Error != "encoder exploded" {
				t.Fatalf("last error = %q", last.Error)
			}
			got, _, ok := s.jobs.get(job.ID)
			if !ok || got.Status != tt.status {
				t.Fatalf("job = %+v; want status %s", got, tt.status)
			}
		})
	}
}

func TestVideoUnknownTrack(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, nil)
	if _, code := startVideo(t, srv, "nope"); code != http.StatusNotFound {
		t.Fatalf("status = %d; want %d", code, http.StatusNotFound)
	}
	resp, err := http.Get(srv.URL + "/api/jobs/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("job status = %d; want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestGenerate(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, nil)
	tests := []struct {
		body string
		code int
	}{
		{`{"title":"x"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"title":"Rain","lyrics":"It rains"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+"/api/generate", "application/json", bytes.NewBufferString(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		var job Job
		_ = json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if resp.StatusCode != tt.code {
			t.Fatalf("POST %s status = %d; want %d", tt.body, resp.StatusCode, tt.code)
		}
		if tt.code != http.StatusAccepted {
			continue
		}
		events := readEvents(t, srv, job.ID)
		if events[0].Message != "generating Rain" || events[len(events)-1].Status != Done {
			t.Fatalf("events = %+v", events)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, map[string]string{"user": "pass"})
	resp, err := http.Get(srv.URL + "/api/tracks")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	req, _ := http.NewRequest("GET", srv.URL+"/api/tracks", nil)
	req.SetBasicAuth("user", "pass")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "<title>lyricvid</title>") {
		t.Fatalf("index = %q", buf.String())
	}
}

func TestDeleteTrack(t *testing.T) {
	runner := &fakeRunner{}
	srv, _ := newTestServer(t, runner, nil)
	tests := []struct {
		id   string
		code int
	}{
		{"song_1", http.StatusNoContent},
		{"nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/tracks/"+tt.id, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.code {
			t.Fatalf("DELETE %s status = %d; want %d", tt.id, resp.StatusCode, tt.code)
		}
	}
	if len(runner.deleted) != 1 || runner.deleted[0] != "song_1" {
		t.Fatalf("deleted = %v; want [song_1]", runner.deleted)
	}
}

func TestWatchJobOrigin(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{}, nil)
	job, code := startVideo(t, srv, "song_1")
	if code != http.StatusAccepted {
		t.Fatalf("status = %d; want %d", code, http.StatusAccepted)
	}
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + job.ID + "/ws"
	tests := []struct {
		origin string
		ok     bool
	}{
		{"http://attacker.example", false},
		{srv.URL, true},
	}
	for _, tt := range tests {
		conn, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{tt.origin}})
		if tt.ok {
			if err != nil {
				t.Fatalf("Dial(origin %s) err = %v; want nil", tt.origin, err)
			}
			conn.Close()
			continue
		}
		if !errors.Is(err, websocket.ErrBadHandshake) {
			t.Fatalf("Dial(origin %s) err = %v; want %v", tt.origin, err, websocket.ErrBadHandshake)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("Dial(origin %s) response = %v; want status 403", tt.origin, resp)
		}
	}
}

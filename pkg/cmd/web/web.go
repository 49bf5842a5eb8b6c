package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/browser"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/metastore"
	"github.com/igolaizola/lyricvid/pkg/pipeline"
	"github.com/igolaizola/lyricvid/pkg/storage"
)

type Config struct {
	common.Config

	Addr        string
	Credentials map[string]string
	Open        bool
	Author      string
}

//go:embed static/*
var staticContent embed.FS

// runner is the part of the pipeline exposed through the web UI.
type runner interface {
	Generate(ctx context.Context, song *pipeline.Song, progress pipeline.Progress) ([]*storage.Track, error)
	Video(ctx context.Context, trackID string, progress pipeline.Progress) (*storage.Video, error)
	RemoteVideo(ctx context.Context, trackID, author string, progress pipeline.Progress) (*storage.Video, error)
	Delete(ctx context.Context, trackID string) error
}

type server struct {
	ctx         context.Context
	store       metastore.Store
	runner      runner
	jobs        *jobs
	output      string
	author      string
	debug       bool
	credentials map[string]string
}

// Serve starts the web UI.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	defer env.Close()

	s := &server{
		ctx:         ctx,
		store:       env.Store,
		runner:      env.Pipeline,
		jobs:        newJobs(),
		output:      cfg.Output,
		author:      cfg.Author,
		debug:       cfg.Debug,
		credentials: cfg.Credentials,
	}
	defer s.jobs.wait()
	mux, err := s.router()
	if err != nil {
		return err
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("http://localhost:%d", port)
		}
		log.Printf("web: listening on %s\n", note)
		if cfg.Open {
			if err := browser.OpenURL(note); err != nil {
				log.Printf("web: couldn't open browser: %v\n", err)
			}
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("web: failed to start server: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("web: couldn't shutdown server: %v\n", err)
	}
	return nil
}

func (s *server) router() (http.Handler, error) {
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't load static content: %w", err)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	if len(s.credentials) > 0 {
		mux.Use(middleware.BasicAuth("lyricvid", s.credentials))
	}
	if s.debug {
		mux.Use(middleware.Logger)
	}

	mux.Get("/*", http.StripPrefix("/", http.FileServer(http.FS(staticFS))).ServeHTTP)
	mux.Get("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(s.output))).ServeHTTP)

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/api/tracks", s.listTracks)
		r.Get("/api/tracks/{id}/videos", s.listVideos)
		r.Post("/api/generate", s.generate)
		r.Post("/api/tracks/{id}/video", s.video)
		r.Delete("/api/tracks/{id}", s.deleteTrack)
		r.Get("/api/jobs", s.listJobs)
		r.Get("/api/jobs/{id}", s.getJob)
	})
	mux.Get("/api/jobs/{id}/ws", s.watchJob)
	return mux, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Style    string  `json:"style"`
	Lyrics   string  `json:"lyrics"`
	Duration float64 `json:"duration"`
	Audio    string  `json:"audio_url"`
	Image    string  `json:"image_url"`
}

func (s *server) listTracks(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 100
	}
	tracks, err := s.store.ListTracks(r.Context(), page, size)
	if err != nil {
		log.Println("web: couldn't list tracks:", err)
		httpError(w, http.StatusInternalServerError, "couldn't list tracks: %v", err)
		return
	}
	resp := []*Track{}
	for _, t := range tracks {
		resp = append(resp, &Track{
			ID:       t.ID,
			Title:    t.Title,
			Style:    t.Style,
			Lyrics:   t.Lyrics,
			Duration: t.Duration,
			Audio:    s.fileURL(t.Audio, t.AudioURL),
			Image:    s.fileURL(t.Image, t.ImageURL),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) listVideos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	videos, err := s.store.ListVideos(r.Context(), id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "couldn't list videos: %v", err)
		return
	}
	for _, v := range videos {
		v.URL = s.fileURL(v.Path, v.URL)
	}
	writeJSON(w, http.StatusOK, videos)
}

// fileURL returns the local route of a produced file or its remote url.
func (s *server) fileURL(path, remote string) string {
	if path == "" {
		return remote
	}
	rel, ok := strings.CutPrefix(strings.ReplaceAll(path, "\\", "/"), strings.TrimSuffix(strings.ReplaceAll(s.output, "\\", "/"), "/")+"/")
	if !ok {
		return remote
	}
	return "/files/" + rel
}

func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pipeline.Song
		Video bool `json:"video"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if strings.TrimSpace(req.Lyrics) == "" && !req.Instrumental {
		httpError(w, http.StatusBadRequest, "lyrics are required")
		return
	}
	song := req.Song
	video := req.Video
	job := s.jobs.start(s.ctx, "generate", "", func(ctx context.Context, progress func(string, ...any)) (any, error) {
		tracks, err := s.runner.Generate(ctx, &song, progress)
		if err != nil {
			return nil, err
		}
		if !video {
			return tracks, nil
		}
		var videos []*storage.Video
		for _, t := range tracks {
			v, err := s.runner.Video(ctx, t.ID, progress)
			if err != nil {
				return nil, err
			}
			videos = append(videos, v)
		}
		return videos, nil
	})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *server) video(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTrack(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "track %s not found", id)
			return
		}
		httpError(w, http.StatusInternalServerError, "couldn't get track: %v", err)
		return
	}
	remote := r.URL.Query().Get("remote") == "true"
	kind := "video"
	if remote {
		kind = "remote-video"
	}
	job := s.jobs.start(s.ctx, kind, id, func(ctx context.Context, progress func(string, ...any)) (any, error) {
		if remote {
			return s.runner.RemoteVideo(ctx, id, s.author, progress)
		}
		return s.runner.Video(ctx, id, progress)
	})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *server) deleteTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.runner.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "track %s not found", id)
			return
		}
		httpError(w, http.StatusInternalServerError, "couldn't delete track: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.list()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if jobs == nil {
		jobs = []*Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cross origin requests are rejected, the default origin check applies.
var upgrader = websocket.Upgrader{}

// Event is sent through the job websocket.
type Event struct {
	Job     string `json:"job"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// watchJob streams the messages of a job until it finishes.
func (s *server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := s.jobs.get(id); !ok {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("web: couldn't upgrade connection:", err)
		return
	}
	defer conn.Close()

	// Detect closed connections
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var sent int
	for {
		job, changed, _ := s.jobs.get(id)
		for ; sent < len(job.Messages); sent++ {
			if err := conn.WriteJSON(&Event{Job: id, Status: Running, Message: job.Messages[sent]}); err != nil {
				return
			}
		}
		if job.finished() {
			_ = conn.WriteJSON(&Event{Job: id, Status: job.Status, Error: job.Error})
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		select {
		case <-changed:
		case <-closed:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

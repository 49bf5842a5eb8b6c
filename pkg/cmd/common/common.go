package common

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/igolaizola/lyricvid/pkg/ffmpeg"
	"github.com/igolaizola/lyricvid/pkg/filestore"
	"github.com/igolaizola/lyricvid/pkg/metastore"
	"github.com/igolaizola/lyricvid/pkg/overlay"
	"github.com/igolaizola/lyricvid/pkg/pipeline"
	"github.com/igolaizola/lyricvid/pkg/suno"
	"github.com/igolaizola/lyricvid/pkg/whisper"
)

// Config holds the settings shared by every command that touches tracks.
type Config struct {
	Debug    bool
	DBType   string
	DBConn   string
	Redis    string
	RedisTTL time.Duration
	FSType   string
	FSConn   string
	Proxy    string
	Output   string

	APIKey      string
	BaseURL     string
	Wait        time.Duration
	Poll        time.Duration
	CallbackURL string

	Timing       string
	WhisperToken string
	WhisperURL   string
	WhisperModel string

	FFmpeg    string
	GPU       bool
	StyleFile string
	Style     overlay.Style
	Markers   string
	Window    int
	Gap       float64
	Thumbnail bool
}

// Env is the set of services built from a Config.
type Env struct {
	Store    metastore.Store
	API      *suno.Client
	Pipeline *pipeline.Pipeline
	db       *metastore.DB
}

func (e *Env) Close() {
	if err := e.db.Close(); err != nil {
		log.Printf("couldn't close store: %v\n", err)
	}
}

// HTTPClient returns an http client that goes through the configured proxy.
func HTTPClient(proxy string) (*http.Client, error) {
	client := &http.Client{
		Timeout: 2 * time.Minute,
	}
	if proxy == "" {
		return client, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	client.Transport = &http.Transport{
		Proxy: http.ProxyURL(u),
	}
	return client, nil
}

// LoadStyle reads a yaml style file on top of the given style.
func LoadStyle(path string, style overlay.Style) (overlay.Style, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return style, fmt.Errorf("couldn't read style file: %w", err)
	}
	if err := yaml.Unmarshal(b, &style); err != nil {
		return style, fmt.Errorf("couldn't parse style file %s: %w", path, err)
	}
	return style, nil
}

// Open opens the stores and builds the pipeline.
func Open(ctx context.Context, cfg *Config) (*Env, error) {
	db, err := metastore.Open(ctx, &metastore.Config{
		DBType:   cfg.DBType,
		DBConn:   cfg.DBConn,
		Redis:    cfg.Redis,
		RedisTTL: cfg.RedisTTL,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return nil, err
	}
	env := &Env{Store: db, db: db}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	httpClient, err := HTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	env.API = suno.New(&suno.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Wait:        cfg.Wait,
		Poll:        cfg.Poll,
		CallbackURL: cfg.CallbackURL,
		Debug:       cfg.Debug,
		Client:      httpClient,
	})

	style := cfg.Style
	if cfg.StyleFile != "" {
		style, err = LoadStyle(cfg.StyleFile, style)
		if err != nil {
			return nil, err
		}
	}
	var markers []string
	for _, m := range strings.Split(cfg.Markers, ",") {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}

	var opts []pipeline.Option
	if cfg.Timing == pipeline.TimingWhisper {
		opts = append(opts, pipeline.WithTranscriber(whisper.New(&whisper.Config{
			Token:   cfg.WhisperToken,
			BaseURL: cfg.WhisperURL,
			Model:   cfg.WhisperModel,
			Debug:   cfg.Debug,
		})))
	}
	if cfg.FSType != "" {
		fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug, db.Refs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithFiles(fs))
	}

	env.Pipeline = pipeline.New(&pipeline.Config{
		Output:    cfg.Output,
		Timing:    cfg.Timing,
		Window:    cfg.Window,
		Gap:       cfg.Gap,
		Markers:   markers,
		Style:     style,
		Thumbnail: cfg.Thumbnail,
		Debug:     cfg.Debug,
	}, db, env.API, ffmpeg.New(cfg.FFmpeg, cfg.GPU, cfg.Debug), opts...)
	ok = true
	return env, nil
}

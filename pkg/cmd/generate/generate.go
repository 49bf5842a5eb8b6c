package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/pipeline"
	"github.com/igolaizola/lyricvid/pkg/suno"
)

type Config struct {
	common.Config

	Input       string
	Concurrency int
	Video       bool

	Name         string
	Title        string
	Lyrics       string
	LyricsFile   string
	MusicStyle   string
	Model        string
	Instrumental bool
}

// Run generates the requested songs and, optionally, their videos.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("generate: process started")
	defer log.Println("generate: process ended")

	songs, err := songs(cfg)
	if err != nil {
		return err
	}

	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	defer env.Close()

	start := time.Now()
	defer func() {
		log.Printf("generate: total time %s\n", time.Since(start))
	}()

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var lck sync.Mutex
	var errs []error

	for _, song := range songs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return fmt.Errorf("generate: %w", ctx.Err())
		case sem <- struct{}{}:
		}
		wg.Add(1)
		song := song
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			err := generate(ctx, env.Pipeline, song, cfg.Video)
			if err == nil {
				return
			}
			log.Println(err)
			lck.Lock()
			errs = append(errs, err)
			lck.Unlock()
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func generate(ctx context.Context, p *pipeline.Pipeline, song *pipeline.Song, video bool) error {
	progress := func(format string, args ...any) {
		log.Printf("generate: "+format+"\n", args...)
	}
	tracks, err := p.Generate(ctx, song, progress)
	if errors.Is(err, suno.ErrQuota) {
		return fmt.Errorf("generate: no credits left: %w", err)
	}
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	for _, t := range tracks {
		fmt.Printf("%s\t%s\t%s\n", t.ID, t.Title, t.Audio)
		if !video {
			continue
		}
		v, err := p.Video(ctx, t.ID, progress)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		fmt.Printf("%s\t%s\n", t.ID, v.Path)
	}
	return nil
}

// songs returns the songs to be generated from the input file or from the
// command flags.
func songs(cfg *Config) ([]*pipeline.Song, error) {
	if cfg.Input != "" {
		return readInput(cfg.Input)
	}
	lyrics := cfg.Lyrics
	if cfg.LyricsFile != "" {
		b, err := os.ReadFile(cfg.LyricsFile)
		if err != nil {
			return nil, fmt.Errorf("generate: couldn't read lyrics file: %w", err)
		}
		lyrics = string(b)
	}
	if lyrics == "" && !cfg.Instrumental {
		return nil, errors.New("generate: lyrics or input file required")
	}
	return []*pipeline.Song{{
		Name:         cfg.Name,
		Title:        cfg.Title,
		Lyrics:       lyrics,
		Style:        cfg.MusicStyle,
		Model:        cfg.Model,
		Instrumental: cfg.Instrumental,
	}}, nil
}

func readInput(path string) ([]*pipeline.Song, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("generate: couldn't read input file: %w", err)
	}
	var songs []*pipeline.Song
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, &songs); err != nil {
			return nil, fmt.Errorf("generate: couldn't unmarshal json input: %w", err)
		}
	case ".csv":
		if err := gocsv.UnmarshalBytes(b, &songs); err != nil {
			return nil, fmt.Errorf("generate: couldn't unmarshal csv input: %w", err)
		}
	default:
		return nil, fmt.Errorf("generate: unsupported input format %q", filepath.Ext(path))
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("generate: no songs in %s", path)
	}
	return songs, nil
}

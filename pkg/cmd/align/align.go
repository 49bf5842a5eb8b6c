package align

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

type Config struct {
	common.Config
	Track   string
	Format  string
	Refresh bool
	File    string
}

// Run prints the display interval of every lyric line of a track.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Track == "" {
		return fmt.Errorf("align: track is required")
	}
	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	defer env.Close()

	if cfg.Refresh {
		t, err := env.Store.GetTrack(ctx, cfg.Track)
		if err != nil {
			return fmt.Errorf("align: %w", err)
		}
		if _, err := env.Pipeline.Timing(ctx, t, true); err != nil {
			return fmt.Errorf("align: %w", err)
		}
	}
	_, al, err := env.Pipeline.Align(ctx, cfg.Track)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.Create(cfg.File)
		if err != nil {
			return fmt.Errorf("align: couldn't create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Write(w, cfg.Format, al)
}

// Write encodes an alignment as json, yaml, csv or plain text.
func Write(w io.Writer, format string, al *lyrics.Alignment) error {
	switch strings.ToLower(format) {
	case "", "text":
		for _, l := range al.Lines {
			if _, err := fmt.Fprintf(w, "%7.2f %7.2f  %s\n", l.Start, l.End, l.Text); err != nil {
				return fmt.Errorf("align: couldn't write: %w", err)
			}
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(al); err != nil {
			return fmt.Errorf("align: couldn't encode json: %w", err)
		}
	case "yaml":
		doc := struct {
			Matched  int                  `yaml:"matched"`
			Degraded bool                 `yaml:"degraded"`
			Lines    []lyrics.AlignedLine `yaml:"lines"`
		}{al.Matched, al.Degraded, al.Lines}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("align: couldn't encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("align: couldn't encode yaml: %w", err)
		}
	case "csv":
		if err := gocsv.Marshal(al.Lines, w); err != nil {
			return fmt.Errorf("align: couldn't encode csv: %w", err)
		}
	default:
		return fmt.Errorf("align: unknown format %q", format)
	}
	return nil
}

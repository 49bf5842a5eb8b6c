package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/igolaizola/lyricvid/pkg/filestore"
	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/metastore"
	"github.com/igolaizola/lyricvid/pkg/overlay"
	"github.com/igolaizola/lyricvid/pkg/suno"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Timing sources.
const (
	TimingSuno    = "suno"
	TimingWhisper = "whisper"
	TimingNone    = "none"
)

// API is the subset of the music API used by the pipeline.
type API interface {
	Generate(ctx context.Context, req *suno.GenerateRequest) (string, error)
	Wait(ctx context.Context, taskID string) (*suno.Record, error)
	TimestampedLyrics(ctx context.Context, taskID, audioID string, index int) ([]lyrics.TimedWord, error)
	GenerateVideo(ctx context.Context, taskID, audioID, author string) (string, error)
	WaitVideo(ctx context.Context, taskID string) (string, error)
	Download(ctx context.Context, u, output string) error
}

// Transcriber extracts timed words from an audio file.
type Transcriber interface {
	Words(ctx context.Context, audio string) ([]lyrics.TimedWord, error)
}

// Progress receives human readable status messages.
type Progress func(format string, args ...any)

type Config struct {
	// Output is the directory where audio, images and videos are written.
	Output string
	// Timing is the source of word timestamps: suno, whisper or none.
	Timing  string
	Window  int
	Gap     float64
	Markers []string
	Style   overlay.Style
	// Thumbnail enables writing a cover with the track title.
	Thumbnail bool
	Debug     bool
}

type Pipeline struct {
	cfg         Config
	store       metastore.Store
	api         API
	transcriber Transcriber
	files       *filestore.Store
	cache       *timestamps.Cache
	renderer    *overlay.Renderer
	idLck       sync.Mutex
}

type Option func(*Pipeline)

func WithTranscriber(t Transcriber) Option {
	return func(p *Pipeline) {
		p.transcriber = t
	}
}

// WithFiles uploads every produced file to the given file store.
func WithFiles(fs *filestore.Store) Option {
	return func(p *Pipeline) {
		p.files = fs
	}
}

func New(cfg *Config, store metastore.Store, api API, encoder overlay.Encoder, opts ...Option) *Pipeline {
	c := *cfg
	if c.Output == "" {
		c.Output = "."
	}
	if c.Timing == "" {
		c.Timing = TimingSuno
	}
	p := &Pipeline{
		cfg:      c,
		store:    store,
		api:      api,
		cache:    timestamps.New(store, c.Debug),
		renderer: overlay.New(encoder, c.Debug),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) log(format string, args ...any) {
	if !p.cfg.Debug {
		return
	}
	format += "\n"
	log.Printf(format, args...)
}

func (p Progress) step(format string, args ...any) {
	if p == nil {
		return
	}
	p(format, args...)
}

func (p *Pipeline) validate() error {
	switch p.cfg.Timing {
	case TimingSuno, TimingNone:
	case TimingWhisper:
		if p.transcriber == nil {
			return fmt.Errorf("pipeline: whisper timing requires a transcriber")
		}
	default:
		return fmt.Errorf("pipeline: unknown timing source %q", p.cfg.Timing)
	}
	return nil
}

package overlay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

var (
	// ErrRenderFailed is returned when the video couldn't be encoded. No
	// output file is left in place.
	ErrRenderFailed = errors.New("overlay: render failed")
	ErrInvalidInput = lyrics.ErrInvalidInput
)

// Style holds the rendering parameters shared by every overlay.
type Style struct {
	// Font is the path to a TrueType/OpenType font file. If empty the
	// encoder default is used.
	Font string `yaml:"font"`
	// FontSize is expressed for a 1080 pixel high frame and scaled to the
	// actual frame height.
	FontSize    float64 `yaml:"font-size"`
	Color       string  `yaml:"color"`
	BorderColor string  `yaml:"border-color"`
	BorderWidth int     `yaml:"border-width"`
	// Position is the vertical position of the text as a fraction of the
	// frame height.
	Position float64 `yaml:"position"`
	// Fade is the requested fade in and fade out duration in seconds.
	Fade float64 `yaml:"fade"`
	// MaxChars is the maximum number of characters per text row.
	MaxChars int `yaml:"max-chars"`
}

func DefaultStyle() Style {
	return Style{
		FontSize:    60,
		Color:       "white",
		BorderColor: "black",
		BorderWidth: 2,
		Position:    0.75,
		Fade:        0.5,
		MaxChars:    40,
	}
}

// Spec is a single text overlay.
type Spec struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	FadeIn  float64 `json:"fade_in"`
	FadeOut float64 `json:"fade_out"`
}

// Fade clamps the requested fade duration to half of the interval length.
func Fade(requested, length float64) float64 {
	if requested <= 0 || length <= 0 || math.IsNaN(requested) {
		return 0
	}
	return math.Min(requested, length/2)
}

// Build computes the overlays for the aligned lines. Lines with an empty
// interval are never visible and are skipped.
func Build(lines []lyrics.AlignedLine, style Style) []Spec {
	var specs []Spec
	for _, l := range lines {
		length := l.End - l.Start
		if length <= 0 || l.Text == "" {
			continue
		}
		fade := Fade(style.Fade, length)
		specs = append(specs, Spec{
			Text:    l.Text,
			Start:   l.Start,
			End:     l.End,
			FadeIn:  fade,
			FadeOut: fade,
		})
	}
	return specs
}

// EncodeRequest describes the video to be produced by an Encoder.
type EncodeRequest struct {
	Image    string
	Audio    string
	Output   string
	Specs    []Spec
	Style    Style
	Duration float64
}

// Encoder produces a video file from an encoding request.
type Encoder interface {
	Encode(ctx context.Context, req *EncodeRequest) error
}

// Request is a render request for a track.
type Request struct {
	Image    string
	Audio    string
	Output   string
	Lines    []lyrics.AlignedLine
	Style    Style
	Duration float64
}

type Renderer struct {
	encoder Encoder
	debug   bool
}

func New(encoder Encoder, debug bool) *Renderer {
	return &Renderer{
		encoder: encoder,
		debug:   debug,
	}
}

// Render builds the overlays and hands them to the encoder. The encoder
// writes to a staging file that is moved to the output path only if encoding
// succeeds.
func (r *Renderer) Render(ctx context.Context, req *Request) error {
	if req.Image == "" || req.Audio == "" || req.Output == "" {
		return fmt.Errorf("%w: image, audio and output are required", ErrInvalidInput)
	}
	for _, f := range []string{req.Image, req.Audio} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	if req.Duration < 0 || math.IsNaN(req.Duration) {
		return fmt.Errorf("%w: invalid duration %v", ErrInvalidInput, req.Duration)
	}

	specs := Build(req.Lines, req.Style)
	if r.debug {
		log.Printf("overlay: %d overlays for %s\n", len(specs), req.Output)
	}

	ext := filepath.Ext(req.Output)
	staging := fmt.Sprintf("%s.staging%s", req.Output, ext)
	if err := r.encoder.Encode(ctx, &EncodeRequest{
		Image:    req.Image,
		Audio:    req.Audio,
		Output:   staging,
		Specs:    specs,
		Style:    req.Style,
		Duration: req.Duration,
	}); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if _, err := os.Stat(staging); err != nil {
		return fmt.Errorf("%w: encoder didn't produce output: %w", ErrRenderFailed, err)
	}

	if err := os.Rename(staging, req.Output); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: couldn't rename staging file: %w", ErrRenderFailed, err)
	}
	return nil
}

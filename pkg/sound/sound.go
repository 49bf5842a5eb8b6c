package sound

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Duration returns the length of an mp3 file without decoding its samples.
func Duration(file string) (time.Duration, error) {
	decoder, closer, err := open(file)
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	n := decoder.Length()
	if n <= 0 {
		return 0, fmt.Errorf("sound: couldn't get length of %s", file)
	}
	// 16-bit stereo samples
	samples := float64(n) / 4
	return time.Duration(samples / float64(decoder.SampleRate()) * float64(time.Second)), nil
}

// Analyzer holds the decoded samples of a song mixed down to mono.
type Analyzer struct {
	mono     []float64
	rate     int
	duration time.Duration
}

func NewAnalyzer(file string) (*Analyzer, error) {
	decoder, closer, err := open(file)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The decoder always outputs 16-bit little endian stereo
	r := bufio.NewReader(decoder)
	var mono []float64
	buf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("sound: couldn't read sample: %w", err)
		}
		left := int16(buf[0]) | int16(buf[1])<<8
		right := int16(buf[2]) | int16(buf[3])<<8
		mono = append(mono, (float64(left)+float64(right))/2/32768)
	}
	return newAnalyzer(mono, decoder.SampleRate()), nil
}

func newAnalyzer(mono []float64, rate int) *Analyzer {
	return &Analyzer{
		mono:     mono,
		rate:     rate,
		duration: time.Duration(float64(len(mono)) / float64(rate) * float64(time.Second)),
	}
}

func (a *Analyzer) Duration() time.Duration {
	return a.duration
}

func (a *Analyzer) windows(size time.Duration, fn func([]float64)) {
	n := max(1, int(float64(a.rate)*size.Seconds()))
	for i := 0; i < len(a.mono); i += n {
		fn(a.mono[i:min(i+n, len(a.mono))])
	}
}

// Resample returns the minimum and maximum values of each window.
func (a *Analyzer) Resample(window time.Duration) []float64 {
	var out []float64
	a.windows(window, func(w []float64) {
		var lo, hi float64
		for _, v := range w {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		out = append(out, lo, hi)
	})
	return out
}

// RMS returns the loudness of each window.
func (a *Analyzer) RMS(window time.Duration) []float64 {
	var out []float64
	a.windows(window, func(w []float64) {
		var sum float64
		for _, v := range w {
			sum += v * v
		}
		out = append(out, math.Sqrt(sum/float64(len(w))))
	})
	return out
}

// Background draws the loudness envelope of the song as a 1920x1080 image.
// It is used as video background when a track has no cover.
func (a *Analyzer) Background(title, output string) error {
	rms := a.RMS(100 * time.Millisecond)
	if len(rms) == 0 {
		return fmt.Errorf("sound: no samples to draw")
	}
	peak := 0.0
	for _, v := range rms {
		peak = math.Max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}

	// Mirrored envelope: upper edge forwards, lower edge backwards
	pts := make(plotter.XYs, 0, 2*len(rms))
	for i, v := range rms {
		pts = append(pts, plotter.XY{X: float64(i), Y: v / peak})
	}
	for i := len(rms) - 1; i >= 0; i-- {
		pts = append(pts, plotter.XY{X: float64(i), Y: -rms[i] / peak})
	}

	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Color = color.White
	p.Title.TextStyle.Font.Size = vg.Points(36)
	p.BackgroundColor = color.RGBA{R: 16, G: 16, B: 24, A: 255}
	p.HideAxes()
	// Leave the lower band free for the lyrics
	p.Y.Min = -2.5
	p.Y.Max = 1.2

	poly, err := plotter.NewPolygon(pts)
	if err != nil {
		return fmt.Errorf("sound: couldn't create envelope: %w", err)
	}
	poly.Color = color.RGBA{R: 70, G: 100, B: 200, A: 255}
	poly.LineStyle.Width = 0
	p.Add(poly)

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
	if format == "jpg" {
		format = "jpeg"
	}
	// 0.75 points per pixel at 96 dpi
	c, err := p.WriterTo(vg.Points(1920*0.75), vg.Points(1080*0.75), format)
	if err != nil {
		return fmt.Errorf("sound: couldn't create plot: %w", err)
	}
	tmp := output + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("sound: couldn't create %s: %w", tmp, err)
	}
	if _, err := c.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sound: couldn't write plot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sound: couldn't write %s: %w", tmp, err)
	}
	return os.Rename(tmp, output)
}

func open(file string) (*mp3.Decoder, io.Closer, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("sound: couldn't open %s: %w", file, err)
	}
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("sound: couldn't decode %s: %w", file, err)
	}
	return decoder, f, nil
}

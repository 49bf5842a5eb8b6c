package ffmpeg

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/igolaizola/lyricvid/pkg/image"
	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/overlay"
)

const (
	maxWidth  = 1280
	maxHeight = 720
	fps       = 24
)

type ffmpeg struct {
	bin   string
	gpu   bool
	debug bool
}

// New returns an overlay encoder backed by the ffmpeg binary. When gpu is
// enabled h264_nvenc is tried first, falling back to libx264.
func New(bin string, gpu, debug bool) *ffmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &ffmpeg{bin: bin, gpu: gpu, debug: debug}
}

func (f *ffmpeg) log(format string, args ...any) {
	if !f.debug {
		return
	}
	log.Printf("ffmpeg: "+format+"\n", args...)
}

type codec struct {
	name string
	args []string
}

var (
	nvenc = codec{"h264_nvenc", []string{"-c:v", "h264_nvenc", "-preset", "p4", "-cq", "23"}}
	x264  = codec{"libx264", []string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-tune", "stillimage"}}
)

func (f *ffmpeg) Encode(ctx context.Context, req *overlay.EncodeRequest) error {
	w, h, err := image.Size(req.Image)
	if err != nil {
		f.log("couldn't get image size, using %dx%d: %v", maxWidth, maxHeight, err)
	}
	w, h = image.Fit(w, h, maxWidth, maxHeight)

	dir, err := os.MkdirTemp("", "lyricvid-*")
	if err != nil {
		return fmt.Errorf("ffmpeg: couldn't create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	graph, err := filterGraph(dir, w, h, req.Specs, req.Style)
	if err != nil {
		return err
	}
	script := filepath.Join(dir, "filter.txt")
	if err := os.WriteFile(script, []byte(graph), 0644); err != nil {
		return fmt.Errorf("ffmpeg: couldn't write filter script: %w", err)
	}

	codecs := []codec{x264}
	if f.gpu {
		codecs = []codec{nvenc, x264}
	}
	var errs []string
	for _, c := range codecs {
		args := encodeArgs(req, script, c)
		f.log("%s %s", f.bin, strings.Join(args, " "))
		cmd := exec.CommandContext(ctx, f.bin, args...)
		data, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		_ = os.Remove(req.Output)
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: couldn't encode: %w", ctx.Err())
		}
		f.log("%s failed: %v", c.name, err)
		errs = append(errs, fmt.Sprintf("%s: %v: %s", c.name, err, lastLines(string(data), 5)))
	}
	return fmt.Errorf("ffmpeg: couldn't encode: %s", strings.Join(errs, "; "))
}

func encodeArgs(req *overlay.EncodeRequest, script string, c codec) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1", "-framerate", fmt.Sprint(fps), "-i", req.Image,
		"-i", req.Audio,
		"-filter_complex_script", script,
		"-map", "[v]", "-map", "1:a",
	}
	args = append(args, c.args...)
	args = append(args,
		"-pix_fmt", "yuv420p", "-r", fmt.Sprint(fps),
		"-c:a", "aac", "-b:a", "256k", "-ar", "48000", "-ac", "2",
		"-shortest",
	)
	if req.Duration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", req.Duration))
	}
	return append(args, "-movflags", "+faststart", req.Output)
}

// filterGraph builds a filter graph that scales the background and draws
// every overlay. Text is written to files inside dir so it doesn't need
// escaping.
func filterGraph(dir string, w, h int, specs []overlay.Spec, style overlay.Style) (string, error) {
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = overlay.DefaultStyle().FontSize
	}
	fontSize = fontSize * float64(h) / 1080
	lineHeight := fontSize * 1.2
	position := style.Position
	if position <= 0 || position > 1 {
		position = overlay.DefaultStyle().Position
	}
	color := style.Color
	if color == "" {
		color = "white"
	}

	filters := []string{fmt.Sprintf("[0:v]scale=%d:%d,setsar=1,format=yuv420p", w, h)}
	for i, s := range specs {
		rows := lyrics.WrapText(s.Text, style.MaxChars)
		top := position*float64(h) - lineHeight*float64(len(rows))/2
		for j, row := range rows {
			file := filepath.Join(dir, fmt.Sprintf("text-%d-%d.txt", i, j))
			if err := os.WriteFile(file, []byte(row), 0644); err != nil {
				return "", fmt.Errorf("ffmpeg: couldn't write text file: %w", err)
			}
			opts := []string{
				fmt.Sprintf("textfile='%s'", escape(file)),
				"expansion=none",
				fmt.Sprintf("fontsize=%.0f", fontSize),
				fmt.Sprintf("fontcolor=%s", color),
			}
			if style.Font != "" {
				opts = append(opts, fmt.Sprintf("fontfile='%s'", escape(style.Font)))
			}
			if style.BorderWidth > 0 {
				border := style.BorderColor
				if border == "" {
					border = "black"
				}
				opts = append(opts, fmt.Sprintf("borderw=%d", style.BorderWidth), fmt.Sprintf("bordercolor=%s", border))
			}
			opts = append(opts,
				"x=(w-text_w)/2",
				fmt.Sprintf("y=%.0f", top+lineHeight*float64(j)),
				fmt.Sprintf("enable='between(t,%.3f,%.3f)'", s.Start, s.End),
			)
			if alpha := alphaExpr(s); alpha != "" {
				opts = append(opts, fmt.Sprintf("alpha='%s'", alpha))
			}
			filters = append(filters, "drawtext="+strings.Join(opts, ":"))
		}
	}
	return strings.Join(filters, ",") + "[v]", nil
}

// alphaExpr returns the opacity expression for the fade in and fade out of an
// overlay.
func alphaExpr(s overlay.Spec) string {
	if s.FadeIn <= 0 && s.FadeOut <= 0 {
		return ""
	}
	in, out := "1", "1"
	if s.FadeIn > 0 {
		in = fmt.Sprintf("if(lt(t,%.3f),(t-%.3f)/%.3f,1)", s.Start+s.FadeIn, s.Start, s.FadeIn)
	}
	if s.FadeOut > 0 {
		out = fmt.Sprintf("if(gt(t,%.3f),(%.3f-t)/%.3f,1)", s.End-s.FadeOut, s.End, s.FadeOut)
	}
	return fmt.Sprintf("min(%s,%s)", in, out)
}

// escape escapes a value to be used inside single quotes in a filter graph.
func escape(s string) string {
	s = filepath.ToSlash(s)
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `'\''`,
		`:`, `\:`,
	)
	return r.Replace(s)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

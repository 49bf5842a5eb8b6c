package overlay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

func TestFade(t *testing.T) {
	tests := []struct {
		requested, length float64
		want              float64
	}{
		{2.0, 1.0, 0.5},
		{0.5, 4.0, 0.5},
		{0.5, 0.6, 0.3},
		{0, 3, 0},
		{-1, 3, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		if got := Fade(tt.requested, tt.length); got != tt.want {
			t.Fatalf("Fade(%v, %v) = %v; want %v", tt.requested, tt.length, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	style := DefaultStyle()
	style.Fade = 2.0
	lines := []lyrics.AlignedLine{
		{Text: "Hello world", Start: 0, End: 1.0},
		{Text: "never shown", Start: 1.0, End: 1.0},
		{Text: "Goodbye now", Start: 5.0, End: 15.0},
	}
	got := Build(lines, style)
	want := []Spec{
		{Text: "Hello world", Start: 0, End: 1.0, FadeIn: 0.5, FadeOut: 0.5},
		{Text: "Goodbye now", Start: 5.0, End: 15.0, FadeIn: 2.0, FadeOut: 2.0},
	}
	if len(got) != len(want) {
		t.Fatalf("Build() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Build()[%d] = %+v; want %+v", i, got[i], want[i])
		}
		if got[i].FadeIn > (got[i].End-got[i].Start)/2 {
			t.Fatalf("Build()[%d] fade %v exceeds half interval", i, got[i].FadeIn)
		}
	}
}

type fakeEncoder struct {
	err  error
	req  *EncodeRequest
	data string
}

func (e *fakeEncoder) Encode(ctx context.Context, req *EncodeRequest) error {
	e.req = req
	if err := os.WriteFile(req.Output, []byte(e.data), 0644); err != nil {
		return err
	}
	return e.err
}

func inputs(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "cover.jpg")
	audio := filepath.Join(dir, "song.mp3")
	for _, f := range []string{img, audio} {
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return img, audio, filepath.Join(dir, "song.mp4")
}

func TestRender(t *testing.T) {
	img, audio, output := inputs(t)
	enc := &fakeEncoder{data: "video"}
	r := New(enc, false)
	err := r.Render(context.Background(), &Request{
		Image:    img,
		Audio:    audio,
		Output:   output,
		Lines:    []lyrics.AlignedLine{{Text: "Hello", Start: 0, End: 2}},
		Style:    DefaultStyle(),
		Duration: 2,
	})
	if err != nil {
		t.Fatalf("Render() err = %v; want nil", err)
	}
	if enc.req.Output == output {
		t.Fatalf("encoder wrote directly to %s; want staging path", output)
	}
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "video" {
		t.Fatalf("output = %q, %v; want %q", data, err, "video")
	}
	if _, err := os.Stat(enc.req.Output); !os.IsNotExist(err) {
		t.Fatalf("staging file still exists: %v", err)
	}
	if len(enc.req.Specs) != 1 || enc.req.Specs[0].FadeIn != 0.5 {
		t.Fatalf("encoder specs = %+v", enc.req.Specs)
	}
}

func TestRenderFailed(t *testing.T) {
	img, audio, output := inputs(t)
	if err := os.WriteFile(output, []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}
	enc := &fakeEncoder{data: "partial", err: errors.New("ffmpeg exited with status 1")}
	r := New(enc, false)
	err := r.Render(context.Background(), &Request{Image: img, Audio: audio, Output: output, Style: DefaultStyle()})
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("Render() err = %v; want %v", err, ErrRenderFailed)
	}
	if _, err := os.Stat(enc.req.Output); !os.IsNotExist(err) {
		t.Fatalf("staging file still exists: %v", err)
	}
	if data, _ := os.ReadFile(output); string(data) != "previous" {
		t.Fatalf("output = %q; want untouched", data)
	}
}

func TestRenderReplacesOutput(t *testing.T) {
	img, audio, output := inputs(t)
	if err := os.WriteFile(output, []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}
	r := New(&fakeEncoder{data: "video"}, false)
	if err := r.Render(context.Background(), &Request{Image: img, Audio: audio, Output: output, Style: DefaultStyle()}); err != nil {
		t.Fatalf("Render() err = %v; want nil", err)
	}
	if data, _ := os.ReadFile(output); string(data) != "video" {
		t.Fatalf("output = %q; want %q", data, "video")
	}
}

func TestRenderRenameFailed(t *testing.T) {
	img, audio, output := inputs(t)
	// A non empty directory can't be replaced by a file
	kept := filepath.Join(output, "kept.txt")
	if err := os.MkdirAll(output, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(kept, []byte("kept"), 0644); err != nil {
		t.Fatal(err)
	}
	enc := &fakeEncoder{data: "video"}
	r := New(enc, false)
	err := r.Render(context.Background(), &Request{Image: img, Audio: audio, Output: output, Style: DefaultStyle()})
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("Render() err = %v; want %v", err, ErrRenderFailed)
	}
	if _, err := os.Stat(enc.req.Output); !os.IsNotExist(err) {
		t.Fatalf("staging file still exists: %v", err)
	}
	if data, _ := os.ReadFile(kept); string(data) != "kept" {
		t.Fatalf("existing output = %q; want untouched", data)
	}
}

func TestRenderInvalidInput(t *testing.T) {
	img, audio, output := inputs(t)
	tests := []struct {
		name string
		req  Request
	}{
		{"no image", Request{Audio: audio, Output: output}},
		{"no output", Request{Image: img, Audio: audio}},
		{"missing audio", Request{Image: img, Audio: audio + ".missing", Output: output}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &fakeEncoder{}
			err := New(enc, false).Render(context.Background(), &tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Render() err = %v; want %v", err, ErrInvalidInput)
			}
			if enc.req != nil {
				t.Fatalf("encoder was called")
			}
		})
	}
}

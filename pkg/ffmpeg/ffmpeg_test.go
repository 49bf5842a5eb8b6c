package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igolaizola/lyricvid/pkg/overlay"
)

func TestFilterGraph(t *testing.T) {
	dir := t.TempDir()
	style := overlay.DefaultStyle()
	style.MaxChars = 12
	style.Font = "/fonts/My Font.ttf"
	specs := []overlay.Spec{
		{Text: "Hello world", Start: 0, End: 1.2, FadeIn: 0.5, FadeOut: 0.5},
		{Text: "It's 100% a long line", Start: 5, End: 6},
	}
	graph, err := filterGraph(dir, 1280, 720, specs, style)
	if err != nil {
		t.Fatalf("filterGraph() err = %v; want nil", err)
	}
	if !strings.HasPrefix(graph, "[0:v]scale=1280:720,") || !strings.HasSuffix(graph, "[v]") {
		t.Fatalf("filterGraph() = %q; want scaled input and [v] output", graph)
	}
	if n := strings.Count(graph, "drawtext="); n != 3 {
		t.Fatalf("filterGraph() drawtext count = %d; want 3", n)
	}
	for _, want := range []string{
		"enable='between(t,0.000,1.200)'",
		"enable='between(t,5.000,6.000)'",
		"alpha='min(if(lt(t,0.500),(t-0.000)/0.500,1),if(gt(t,0.700),(1.200-t)/0.500,1))'",
		"fontfile='/fonts/My Font.ttf'",
		"fontsize=40",
		"x=(w-text_w)/2",
	} {
		if !strings.Contains(graph, want) {
			t.Fatalf("filterGraph() = %q; want it to contain %q", graph, want)
		}
	}

	// Text is passed through files, untouched
	var rows []string
	for _, name := range []string{"text-1-0.txt", "text-1-1.txt"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, string(b))
	}
	if got, want := strings.Join(rows, "|"), "It's 100% a|long line"; got != want {
		t.Fatalf("text files = %q; want %q", got, want)
	}
}

func TestAlphaExpr(t *testing.T) {
	if got := alphaExpr(overlay.Spec{Start: 1, End: 2}); got != "" {
		t.Fatalf("alphaExpr() = %q; want empty", got)
	}
	got := alphaExpr(overlay.Spec{Start: 1, End: 3, FadeIn: 0.25})
	want := "min(if(lt(t,1.250),(t-1.000)/0.250,1),1)"
	if got != want {
		t.Fatalf("alphaExpr() = %q; want %q", got, want)
	}
}

func TestEncodeArgs(t *testing.T) {
	req := &overlay.EncodeRequest{Image: "cover.jpg", Audio: "song.mp3", Output: "out.mp4", Duration: 12.5}
	args := strings.Join(encodeArgs(req, "filter.txt", nvenc), " ")
	for _, want := range []string{
		"-loop 1 -framerate 24 -i cover.jpg -i song.mp3",
		"-filter_complex_script filter.txt",
		"-c:v h264_nvenc",
		"-c:a aac -b:a 256k -ar 48000 -ac 2",
		"-t 12.500",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("encodeArgs() = %q; want it to contain %q", args, want)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Fatalf("encodeArgs() = %q; want output last", args)
	}
}

func TestEscape(t *testing.T) {
	if got, want := escape("C:/fonts/a.ttf"), `C\:/fonts/a.ttf`; got != want {
		t.Fatalf("escape() = %q; want %q", got, want)
	}
}

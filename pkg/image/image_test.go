package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFit(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{1920, 1080, 1280, 720},
		{1024, 1024, 720, 720},
		{640, 481, 640, 480},
		{3000, 1000, 1280, 426},
		{0, 0, 1280, 720},
	}
	for _, tt := range tests {
		w, h := Fit(tt.w, tt.h, 1280, 720)
		if w != tt.wantW || h != tt.wantH {
			t.Fatalf("Fit(%d, %d) = %d, %d; want %d, %d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestSize(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cover.png")
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 36))); err != nil {
		t.Fatal(err)
	}
	f.Close()
	w, h, err := Size(file)
	if err != nil {
		t.Fatalf("Size() err = %v; want nil", err)
	}
	if w != 64 || h != 36 {
		t.Fatalf("Size() = %d, %d; want 64, 36", w, h)
	}
}

func TestContrastColor(t *testing.T) {
	tests := []struct {
		bg   color.Color
		want color.Color
	}{
		{color.White, color.Black},
		{color.Black, color.White},
		{color.RGBA{R: 255, G: 255, B: 0, A: 255}, color.Black},
		{color.RGBA{R: 0, G: 0, B: 128, A: 255}, color.White},
	}
	for _, tt := range tests {
		if got := ContrastColor(tt.bg); got != tt.want {
			t.Fatalf("ContrastColor(%v) = %v; want %v", tt.bg, got, tt.want)
		}
	}
}

func TestThumbnail(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cover.png")
	f, err := os.Create(input)
	if err != nil {
		t.Fatal(err)
	}
	bg := image.NewRGBA(image.Rect(0, 0, 320, 180))
	for i := range bg.Pix {
		bg.Pix[i] = 255
	}
	if err := png.Encode(f, bg); err != nil {
		t.Fatal(err)
	}
	f.Close()

	output := filepath.Join(dir, "thumbnail.png")
	if err := Thumbnail(input, output, &Caption{
		Title:    "A rather long song title",
		Subtitle: "synthwave",
		MaxChars: 12,
		Position: Center,
	}); err != nil {
		t.Fatalf("Thumbnail() err = %v; want nil", err)
	}
	out, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	img, err := png.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	// Dark text on a white background
	dark := 0
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x4000 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatal("Thumbnail() didn't draw any text")
	}

	tests := []struct {
		name    string
		input   string
		output  string
		caption *Caption
	}{
		{"empty caption", input, output, &Caption{}},
		{"unsupported output", input, filepath.Join(dir, "thumb.gif"), &Caption{Title: "x"}},
		{"missing font", input, output, &Caption{Title: "x", Font: filepath.Join(dir, "missing.ttf")}},
		{"missing input", filepath.Join(dir, "missing.png"), output, &Caption{Title: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Thumbnail(tt.input, tt.output, tt.caption); err == nil {
				t.Fatal("Thumbnail() err = nil; want error")
			}
		})
	}
}

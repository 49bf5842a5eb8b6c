package image

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/webp"
)

type Decode func(io.Reader) (image.Image, error)

func getDecoder(file string) (Decode, error) {
	ext := strings.ToLower(filepath.Ext(file))
	switch ext {
	case ".png":
		return png.Decode, nil
	case ".jpg", ".jpeg":
		return jpeg.Decode, nil
	case ".webp":
		return webp.Decode, nil
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", ext)
	}
}

type Encode func(io.Writer, image.Image) error

func getEncoder(file string) (Encode, error) {
	ext := strings.ToLower(filepath.Ext(file))
	switch ext {
	case ".png":
		return png.Encode, nil
	case ".jpg", ".jpeg":
		return func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: 90})
		}, nil
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", ext)
	}
}

// Size returns the dimensions of an image file without decoding it fully.
func Size(file string) (int, int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, 0, fmt.Errorf("image: couldn't open %s: %w", file, err)
	}
	defer f.Close()

	var cfg image.Config
	switch strings.ToLower(filepath.Ext(file)) {
	case ".webp":
		cfg, err = webp.DecodeConfig(f)
	case ".png":
		cfg, err = png.DecodeConfig(f)
	default:
		cfg, err = jpeg.DecodeConfig(f)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("image: couldn't decode %s: %w", file, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Fit scales width and height down to fit inside maxWidth x maxHeight,
// keeping the aspect ratio. Results are rounded down to even numbers.
func Fit(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return maxWidth &^ 1, maxHeight &^ 1
	}
	w, h := width, height
	if w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	if h > maxHeight {
		w = w * maxHeight / h
		h = maxHeight
	}
	return max(2, w&^1), max(2, h&^1)
}

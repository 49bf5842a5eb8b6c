package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

type Position int

const (
	Top Position = iota
	Center
	Bottom
)

// Caption is the text drawn on a thumbnail.
type Caption struct {
	Title    string
	Subtitle string
	// Font is a ttf or otf file. The Go fonts are used if empty.
	Font     string
	MaxChars int
	Position Position
}

// Thumbnail draws a caption on a copy of the input image. Rows are centered,
// wrapped to MaxChars characters and painted in the color that contrasts
// most with the pixels under them.
func Thumbnail(input, output string, c *Caption) error {
	decode, err := getDecoder(input)
	if err != nil {
		return err
	}
	encode, err := getEncoder(output)
	if err != nil {
		return err
	}
	if c.Title == "" && c.Subtitle == "" {
		return fmt.Errorf("image: empty caption")
	}

	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("image: couldn't open %s: %w", input, err)
	}
	img, err := decode(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("image: couldn't decode %s: %w", input, err)
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	// Sizes are relative to the shorter side
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	short := float64(min(w, h))
	var blocks []textBlock
	if c.Title != "" {
		face, err := loadFace(c.Font, gobold.TTF, short*7/100)
		if err != nil {
			return err
		}
		defer face.Close()
		blocks = append(blocks, newBlock(face, lyrics.WrapText(c.Title, c.MaxChars)))
	}
	if c.Subtitle != "" {
		face, err := loadFace(c.Font, goregular.TTF, short*4/100)
		if err != nil {
			return err
		}
		defer face.Close()
		blocks = append(blocks, newBlock(face, lyrics.WrapText(c.Subtitle, c.MaxChars*2)))
	}

	total := 0
	for _, b := range blocks {
		total += b.height()
	}
	margin := h * 5 / 100
	var y int
	switch c.Position {
	case Top:
		y = margin
	case Center:
		y = (h - total) / 2
	default:
		y = h - margin - total
	}
	for _, b := range blocks {
		for _, row := range b.rows {
			drawCentered(rgba, row, b.face, y+b.face.Metrics().Ascent.Ceil())
			y += b.lineHeight
		}
	}

	tmp := output + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("image: couldn't create %s: %w", tmp, err)
	}
	if err := encode(out, rgba); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("image: couldn't encode %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("image: couldn't write %s: %w", output, err)
	}
	return os.Rename(tmp, output)
}

type textBlock struct {
	face       font.Face
	rows       []string
	lineHeight int
}

func newBlock(face font.Face, rows []string) textBlock {
	m := face.Metrics()
	return textBlock{
		face:       face,
		rows:       rows,
		lineHeight: (m.Ascent + m.Descent).Ceil() * 6 / 5,
	}
}

func (b textBlock) height() int {
	return b.lineHeight * len(b.rows)
}

func loadFace(path string, fallback []byte, size float64) (font.Face, error) {
	data := fallback
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("image: couldn't read font %s: %w", path, err)
		}
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't parse font %s: %w", path, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("image: couldn't create font face: %w", err)
	}
	return face, nil
}

func drawCentered(img *image.RGBA, label string, face font.Face, y int) {
	advance := font.MeasureString(face, label).Ceil()
	x := (img.Bounds().Dx() - advance) / 2

	textColor := ContrastColor(averageUnder(img, x, y, label, face))
	shadowColor := color.Black
	if textColor == color.Black {
		shadowColor = color.White
	}
	offset := max(1, face.Metrics().Height.Ceil()/20)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(shadowColor),
		Face: face,
		Dot:  fixed.P(x+offset, y+offset),
	}
	d.DrawString(label)

	d.Src = image.NewUniform(textColor)
	d.Dot = fixed.P(x, y)
	d.DrawString(label)
}

// averageUnder returns the average color of the pixels the label would
// cover.
func averageUnder(img image.Image, x, y int, label string, face font.Face) color.Color {
	mask := image.NewAlpha(img.Bounds())
	dr := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	dr.DrawString(label)

	var r, g, b, n uint64
	bounds, _ := font.BoundString(face, label)
	area := image.Rect(x+bounds.Min.X.Floor(), y+bounds.Min.Y.Floor(), x+bounds.Max.X.Ceil(), y+bounds.Max.Y.Ceil()).Intersect(mask.Bounds())
	for i := area.Min.X; i < area.Max.X; i++ {
		for j := area.Min.Y; j < area.Max.Y; j++ {
			if mask.AlphaAt(i, j).A == 0 {
				continue
			}
			pr, pg, pb, _ := img.At(i, j).RGBA()
			r += uint64(pr)
			g += uint64(pg)
			b += uint64(pb)
			n++
		}
	}
	if n == 0 {
		return color.Black
	}
	return color.RGBA64{
		R: uint16(r / n),
		G: uint16(g / n),
		B: uint16(b / n),
		A: 0xffff,
	}
}

// ContrastColor returns black for light backgrounds and white for dark ones.
func ContrastColor(bg color.Color) color.Color {
	r, g, b, _ := bg.RGBA()
	// Relative luminance according to ITU-R BT.709
	luminance := 0.2126*linearize(float64(r)/65535) +
		0.7152*linearize(float64(g)/65535) +
		0.0722*linearize(float64(b)/65535)
	if luminance > 0.179 {
		return color.Black
	}
	return color.White
}

// linearize converts a color channel from sRGB to linear space
func linearize(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

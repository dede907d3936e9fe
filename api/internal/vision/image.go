package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Image is what we learn about an upload without fully decoding it.
type Image struct {
	Format string
	Width  int
	Height int
}

func (i Image) MIME() string {
	switch i.Format {
	case "":
		return "image/png"
	default:
		return "image/" + i.Format
	}
}

// Inspect checks that b is a raster image in a supported format.
func Inspect(b []byte) (Image, error) {
	if len(b) == 0 {
		return Image{}, errors.New("empty image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	return Image{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// BlankPNG renders a white w×h PNG.
func BlankPNG(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

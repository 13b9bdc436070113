package generator

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
)

const dataURIPrefix = "data:image/png;base64,"

// palette for backgrounds and decoys
var palette = []string{
	"#2E86AB", "#A23B72", "#F18F01", "#C73E1D", "#3B1F2B",
	"#44AF69", "#F8333C", "#FCAB10", "#2B9EB3", "#6C464F",
}

func (s *source) color() string {
	return palette[s.between(0, len(palette)-1)]
}

// paintBackground fills dc with a gradient and random noise shapes so that
// the answer cannot be found by looking for a flat region
func paintBackground(dc *gg.Context, src *source) {
	w, h := float64(dc.Width()), float64(dc.Height())

	grad := gg.NewLinearGradient(0, 0, w, h)
	grad.AddColorStop(0, hexColor(src.color()))
	grad.AddColorStop(1, hexColor(src.color()))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	for i := 0; i < 24; i++ {
		dc.SetHexColor(src.color())
		x := src.float() * w
		y := src.float() * h
		r := 4 + src.float()*w/10
		switch i % 3 {
		case 0:
			dc.DrawCircle(x, y, r)
		case 1:
			dc.DrawRectangle(x, y, r, r/2)
		default:
			dc.DrawRegularPolygon(3, x, y, r, src.float())
		}
		dc.Fill()
	}

	dc.SetRGBA(1, 1, 1, 0.35)
	dc.SetLineWidth(1)
	for i := 0; i < 8; i++ {
		dc.DrawLine(0, src.float()*h, w, src.float()*h)
		dc.Stroke()
	}
}

func hexColor(hex string) color.Color {
	var r, g, b uint8
	_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// encodeDataURI encodes img as a base64 PNG data URI
func encodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURI is the inverse of encodeDataURI
func DecodeDataURI(uri string) (image.Image, error) {
	if len(uri) < len(dataURIPrefix) || uri[:len(dataURIPrefix)] != dataURIPrefix {
		return nil, fmt.Errorf("not a png data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[len(dataURIPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return png.Decode(bytes.NewReader(raw))
}

func encodePair(background, puzzle image.Image) (string, string, error) {
	bg, err := encodeDataURI(background)
	if err != nil {
		return "", "", err
	}
	pz, err := encodeDataURI(puzzle)
	if err != nil {
		return "", "", err
	}
	return bg, pz, nil
}

package generator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const pieceSize = 40

// SliderGenerator cuts a square piece out of the background. The client
// drags the piece horizontally until it covers the notch.
type SliderGenerator struct {
	cfg Config
	src *source
}

func NewSliderGenerator(cfg Config) *SliderGenerator {
	cfg = cfg.withDefaults()
	return &SliderGenerator{cfg: cfg, src: newSource(cfg.Rand)}
}

func (g *SliderGenerator) Name() string { return "slider" }

func (g *SliderGenerator) Supports(t domain.ChallengeType) bool {
	return t == domain.ChallengeTypeSlider
}

func (g *SliderGenerator) Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error) {
	if err := checkType(g, t); err != nil {
		return domain.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Challenge{}, err
	}

	w, h := g.cfg.Width, g.cfg.Height
	// keep the notch clear of the start position of the piece
	x := g.src.between(pieceSize+10, w-pieceSize-10)
	y := g.src.between(10, h-pieceSize-10)

	bg := gg.NewContext(w, h)
	paintBackground(bg, g.src)
	scene := bg.Image()

	piece := gg.NewContext(pieceSize, h)
	piece.DrawRoundedRectangle(0, float64(y), pieceSize, pieceSize, 6)
	piece.Clip()
	piece.DrawImage(scene, -x, 0)
	piece.ResetClip()
	piece.SetRGBA(1, 1, 1, 0.9)
	piece.SetLineWidth(2)
	piece.DrawRoundedRectangle(1, float64(y)+1, pieceSize-2, pieceSize-2, 6)
	piece.Stroke()

	bg.SetRGBA(0, 0, 0, 0.55)
	bg.DrawRoundedRectangle(float64(x), float64(y), pieceSize, pieceSize, 6)
	bg.Fill()

	background, puzzle, err := encodePair(bg.Image(), piece.Image())
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("render slider: %w", err)
	}

	opts := append(baseOptions(g.Name(), g.cfg),
		domain.WithCorrectPosition(domain.NewCoordinate(x, y)),
		domain.WithImages(background, puzzle),
		domain.WithMetadata("piece_size", strconv.Itoa(pieceSize)),
		domain.WithMetadata("piece_y", strconv.Itoa(y)),
	)
	return domain.NewChallenge(t, opts...)
}

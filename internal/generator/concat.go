package generator

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// ConcatGenerator splits one image at a horizontal seam. The lower strip
// is shifted with wrap-around; the client slides it back by CorrectPosition.X.
// CorrectPosition.Y is the seam row.
type ConcatGenerator struct {
	cfg Config
	src *source
}

func NewConcatGenerator(cfg Config) *ConcatGenerator {
	cfg = cfg.withDefaults()
	return &ConcatGenerator{cfg: cfg, src: newSource(cfg.Rand)}
}

func (g *ConcatGenerator) Name() string { return "concat" }

func (g *ConcatGenerator) Supports(t domain.ChallengeType) bool {
	return t == domain.ChallengeTypeConcat
}

func (g *ConcatGenerator) Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error) {
	if err := checkType(g, t); err != nil {
		return domain.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Challenge{}, err
	}

	w, h := g.cfg.Width, g.cfg.Height
	seam := h / 2
	offset := g.src.between(w/8, w-w/8)

	full := gg.NewContext(w, h)
	paintBackground(full, g.src)
	img := full.Image()

	top := image.NewRGBA(image.Rect(0, 0, w, seam))
	draw.Draw(top, top.Bounds(), img, image.Point{}, draw.Src)

	bottom := image.NewRGBA(image.Rect(0, 0, w, h-seam))
	// shift right by offset, wrapping the overflow to the left edge
	draw.Draw(bottom, image.Rect(offset, 0, w, h-seam), img, image.Pt(0, seam), draw.Src)
	draw.Draw(bottom, image.Rect(0, 0, offset, h-seam), img, image.Pt(w-offset, seam), draw.Src)

	background, puzzle, err := encodePair(top, bottom)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("render concat: %w", err)
	}

	opts := append(baseOptions(g.Name(), g.cfg),
		domain.WithCorrectPosition(domain.NewCoordinate(offset, seam)),
		domain.WithImages(background, puzzle),
		domain.WithMetadata("seam", strconv.Itoa(seam)),
	)
	return domain.NewChallenge(t, opts...)
}

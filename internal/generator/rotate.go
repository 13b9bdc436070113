package generator

import (
	"context"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// RotateGenerator draws a disc turned away from upright by the secret
// angle. Rotating it clockwise by CorrectAngle restores it.
type RotateGenerator struct {
	cfg Config
	src *source
}

func NewRotateGenerator(cfg Config) *RotateGenerator {
	cfg = cfg.withDefaults()
	return &RotateGenerator{cfg: cfg, src: newSource(cfg.Rand)}
}

func (g *RotateGenerator) Name() string { return "rotate" }

func (g *RotateGenerator) Supports(t domain.ChallengeType) bool {
	return t == domain.ChallengeTypeRotate
}

func (g *RotateGenerator) Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error) {
	if err := checkType(g, t); err != nil {
		return domain.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Challenge{}, err
	}

	// angles close to upright are too easy
	angle := float64(g.src.between(30, 330))

	size := g.cfg.Height
	if g.cfg.Width < size {
		size = g.cfg.Width
	}
	center := float64(size) / 2
	radius := center - 4

	art := gg.NewContext(size, size)
	paintBackground(art, g.src)
	drawUprightMarker(art, center, radius)
	upright := art.Image()

	disc := gg.NewContext(size, size)
	disc.DrawCircle(center, center, radius)
	disc.Clip()
	disc.RotateAbout(gg.Radians(-angle), center, center)
	disc.DrawImage(upright, 0, 0)
	disc.Identity()
	disc.ResetClip()

	bg := gg.NewContext(g.cfg.Width, g.cfg.Height)
	paintBackground(bg, g.src)
	bg.SetRGBA(0, 0, 0, 0.4)
	bg.DrawCircle(float64(g.cfg.Width)/2, float64(g.cfg.Height)/2, radius+2)
	bg.Fill()

	background, puzzle, err := encodePair(bg.Image(), disc.Image())
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("render rotate: %w", err)
	}

	opts := append(baseOptions(g.Name(), g.cfg),
		domain.WithCorrectAngle(angle),
		domain.WithImages(background, puzzle),
	)
	return domain.NewChallenge(t, opts...)
}

// drawUprightMarker paints an arrow pointing up so orientation is visible
func drawUprightMarker(dc *gg.Context, center, radius float64) {
	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawRegularPolygon(3, center, center-radius/2, radius/4, -math.Pi/2)
	dc.Fill()
	dc.SetLineWidth(radius / 8)
	dc.DrawLine(center, center-radius/3, center, center+radius/2)
	dc.Stroke()
}

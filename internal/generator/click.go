package generator

import (
	"context"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	glyphRadius = 14
	decoyCount  = 5
)

// ClickGenerator hides a star among decoy shapes. The puzzle image shows
// the star alone; the client clicks where it appears on the background.
type ClickGenerator struct {
	cfg Config
	src *source
}

func NewClickGenerator(cfg Config) *ClickGenerator {
	cfg = cfg.withDefaults()
	return &ClickGenerator{cfg: cfg, src: newSource(cfg.Rand)}
}

func (g *ClickGenerator) Name() string { return "click" }

func (g *ClickGenerator) Supports(t domain.ChallengeType) bool {
	return t == domain.ChallengeTypeClick
}

func (g *ClickGenerator) Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error) {
	if err := checkType(g, t); err != nil {
		return domain.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Challenge{}, err
	}

	w, h := g.cfg.Width, g.cfg.Height
	margin := glyphRadius + 4
	x := g.src.between(margin, w-margin)
	y := g.src.between(margin, h-margin)
	target := g.src.color()

	bg := gg.NewContext(w, h)
	paintBackground(bg, g.src)

	for i := 0; i < decoyCount; i++ {
		dx := g.src.between(margin, w-margin)
		dy := g.src.between(margin, h-margin)
		bg.SetHexColor(g.src.color())
		bg.DrawRegularPolygon(4+i%3, float64(dx), float64(dy), glyphRadius, g.src.float()*math.Pi)
		bg.Fill()
	}
	drawStar(bg, float64(x), float64(y), glyphRadius, target)

	hint := gg.NewContext(2*margin, 2*margin)
	drawStar(hint, float64(margin), float64(margin), glyphRadius, target)

	background, puzzle, err := encodePair(bg.Image(), hint.Image())
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("render click: %w", err)
	}

	opts := append(baseOptions(g.Name(), g.cfg),
		domain.WithCorrectPosition(domain.NewCoordinate(x, y)),
		domain.WithImages(background, puzzle),
	)
	return domain.NewChallenge(t, opts...)
}

func drawStar(dc *gg.Context, cx, cy, r float64, hex string) {
	const points = 5
	for i := 0; i < 2*points; i++ {
		radius := r
		if i%2 == 1 {
			radius = r * 0.45
		}
		a := float64(i)*math.Pi/points - math.Pi/2
		dc.LineTo(cx+radius*math.Cos(a), cy+radius*math.Sin(a))
	}
	dc.ClosePath()
	dc.SetHexColor(hex)
	dc.FillPreserve()
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(2)
	dc.Stroke()
}

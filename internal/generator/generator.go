// Package generator renders challenge images and picks the secret answer.
//
// Generators are collaborators of the captcha service: the service never
// looks at the images, it only stores the returned challenge.
package generator

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Generator produces a fresh pending challenge of a supported type
type Generator interface {
	Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error)
	Supports(t domain.ChallengeType) bool
	Name() string
}

// Config is shared by the reference generators
type Config struct {
	Width       int
	Height      int
	MaxAttempts int
	// Rand drives every random choice. Nil means a generator seeded from
	// crypto/rand.
	Rand *rand.Rand
}

const (
	minWidth  = 100
	minHeight = 60
)

func (c Config) withDefaults() Config {
	if c.Width < minWidth {
		c.Width = 320
	}
	if c.Height < minHeight {
		c.Height = 160
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = domain.DefaultMaxAttempts
	}
	return c
}

// source serializes access to a *rand.Rand, which is not safe for
// concurrent use
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource(rng *rand.Rand) *source {
	if rng == nil {
		var seed [8]byte
		if _, err := crand.Read(seed[:]); err != nil {
			panic(fmt.Sprintf("generator: read seed: %v", err))
		}
		rng = rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
	}
	return &source{rng: rng}
}

// between returns a value in [lo, hi]
func (s *source) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Intn(hi-lo+1)
}

func (s *source) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// baseOptions are the options every reference generator applies
func baseOptions(name string, cfg Config) []domain.ChallengeOption {
	return []domain.ChallengeOption{
		domain.WithMaxAttempts(cfg.MaxAttempts),
		domain.WithMetadata("generator", name),
		domain.WithMetadata("width", strconv.Itoa(cfg.Width)),
		domain.WithMetadata("height", strconv.Itoa(cfg.Height)),
	}
}

func checkType(g Generator, t domain.ChallengeType) error {
	if !g.Supports(t) {
		return domain.ErrUnsupportedChallengeType.WithError(
			fmt.Errorf("generator %s cannot produce %q", g.Name(), t),
		)
	}
	return nil
}

// Registry dispatches to the first registered generator supporting a type.
type Registry struct {
	generators []Generator
}

func NewRegistry(generators ...Generator) *Registry {
	return &Registry{generators: generators}
}

// NewDefaultRegistry wires one reference generator per challenge type
func NewDefaultRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	src := newSource(cfg.Rand)

	return NewRegistry(
		&SliderGenerator{cfg: cfg, src: src},
		&RotateGenerator{cfg: cfg, src: src},
		&ConcatGenerator{cfg: cfg, src: src},
		&ClickGenerator{cfg: cfg, src: src},
	)
}

// Register appends a generator. Earlier registrations win.
func (r *Registry) Register(g Generator) {
	r.generators = append(r.generators, g)
}

func (r *Registry) Generate(ctx context.Context, t domain.ChallengeType) (domain.Challenge, error) {
	for _, g := range r.generators {
		if g.Supports(t) {
			return g.Generate(ctx, t)
		}
	}
	return domain.Challenge{}, domain.ErrUnsupportedChallengeType.WithError(
		fmt.Errorf("no generator registered for %q", t),
	)
}

func (r *Registry) Supports(t domain.ChallengeType) bool {
	for _, g := range r.generators {
		if g.Supports(t) {
			return true
		}
	}
	return false
}

func (r *Registry) Name() string {
	return "registry"
}

package generator

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func seeded(seed int64) Config {
	return Config{Width: 320, Height: 160, MaxAttempts: 4, Rand: rand.New(rand.NewSource(seed))}
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name       string
		gen        Generator
		typ        domain.ChallengeType
		puzzleSize [2]int
	}{
		{"slider", NewSliderGenerator(seeded(1)), domain.ChallengeTypeSlider, [2]int{pieceSize, 160}},
		{"rotate", NewRotateGenerator(seeded(2)), domain.ChallengeTypeRotate, [2]int{160, 160}},
		{"concat", NewConcatGenerator(seeded(3)), domain.ChallengeTypeConcat, [2]int{320, 80}},
		{"click", NewClickGenerator(seeded(4)), domain.ChallengeTypeClick, [2]int{2 * (glyphRadius + 4), 2 * (glyphRadius + 4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.gen.Supports(tt.typ))
			assert.Equal(t, tt.name, tt.gen.Name())

			c, err := tt.gen.Generate(context.Background(), tt.typ)
			require.NoError(t, err)

			assert.Equal(t, tt.typ, c.Type)
			assert.Equal(t, 4, c.MaxAttempts)
			assert.Equal(t, tt.typ.DefaultTolerance(), c.Tolerance)
			assert.Equal(t, domain.StatusPending, c.Status())
			assert.Equal(t, tt.name, c.Metadata["generator"])

			bg, err := DecodeDataURI(c.BackgroundImage)
			require.NoError(t, err)
			assert.Equal(t, 320, bg.Bounds().Dx())

			pz, err := DecodeDataURI(c.PuzzleImage)
			require.NoError(t, err)
			assert.Equal(t, tt.puzzleSize[0], pz.Bounds().Dx())
			assert.Equal(t, tt.puzzleSize[1], pz.Bounds().Dy())

			if tt.typ.IsAngular() {
				assert.GreaterOrEqual(t, c.CorrectAngle, 30.0)
				assert.LessOrEqual(t, c.CorrectAngle, 330.0)
			} else {
				assert.True(t, c.CorrectPosition.IsValid())
				assert.Less(t, c.CorrectPosition.X, 320)
				assert.Less(t, c.CorrectPosition.Y, 160)
			}
		})
	}
}

func TestGenerators_SolvableByCorrectAnswer(t *testing.T) {
	registry := NewDefaultRegistry(seeded(42))

	for _, typ := range domain.AllChallengeTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := registry.Generate(context.Background(), typ)
			require.NoError(t, err)

			var ok bool
			if typ.IsAngular() {
				_, ok = c.VerifyRotationAnswer(c.CorrectAngle, c.CorrectAngle)
			} else {
				_, ok = c.VerifyAnswer(c.CorrectPosition)
			}
			assert.True(t, ok)
		})
	}
}

func TestGenerators_Deterministic(t *testing.T) {
	a, err := NewSliderGenerator(seeded(7)).Generate(context.Background(), domain.ChallengeTypeSlider)
	require.NoError(t, err)
	b, err := NewSliderGenerator(seeded(7)).Generate(context.Background(), domain.ChallengeTypeSlider)
	require.NoError(t, err)

	assert.Equal(t, a.CorrectPosition, b.CorrectPosition)
	assert.Equal(t, a.BackgroundImage, b.BackgroundImage)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGenerator_WrongType(t *testing.T) {
	g := NewClickGenerator(seeded(1))
	assert.False(t, g.Supports(domain.ChallengeTypeRotate))

	_, err := g.Generate(context.Background(), domain.ChallengeTypeRotate)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChallengeType)
}

func TestGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRotateGenerator(seeded(1)).Generate(ctx, domain.ChallengeTypeRotate)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		r := NewRegistry()
		assert.False(t, r.Supports(domain.ChallengeTypeSlider))

		_, err := r.Generate(context.Background(), domain.ChallengeTypeSlider)
		assert.ErrorIs(t, err, domain.ErrUnsupportedChallengeType)
	})

	t.Run("first match wins", func(t *testing.T) {
		first := NewSliderGenerator(Config{Width: 200, Height: 100, Rand: rand.New(rand.NewSource(1))})
		second := NewSliderGenerator(seeded(1))
		r := NewRegistry(first)
		r.Register(second)

		c, err := r.Generate(context.Background(), domain.ChallengeTypeSlider)
		require.NoError(t, err)
		assert.Equal(t, "200", c.Metadata["width"])
	})

	t.Run("default registry covers every type", func(t *testing.T) {
		r := NewDefaultRegistry(Config{})
		for _, typ := range domain.AllChallengeTypes() {
			assert.True(t, r.Supports(typ), typ)
		}
		assert.False(t, r.Supports(domain.ChallengeType("maze")))
	})
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Width: 10, Height: 10}.withDefaults()
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 160, cfg.Height)
	assert.Equal(t, domain.DefaultMaxAttempts, cfg.MaxAttempts)
}

func TestDecodeDataURI_Rejects(t *testing.T) {
	_, err := DecodeDataURI("data:image/jpeg;base64,AAAA")
	assert.Error(t, err)

	_, err = DecodeDataURI(dataURIPrefix + "!!!")
	assert.Error(t, err)
}

package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 3

// ChallengeStatus is derived from the challenge fields, never stored.
type ChallengeStatus string

const (
	StatusPending    ChallengeStatus = "pending"
	StatusAttempting ChallengeStatus = "attempting"
	StatusVerified   ChallengeStatus = "verified"
	StatusExhausted  ChallengeStatus = "exhausted"
	StatusExpired    ChallengeStatus = "expired"
)

// Challenge is a single issued CAPTCHA puzzle.
//
// Challenge is used as a value: VerifyAnswer and VerifyRotationAnswer return
// the next snapshot and leave the receiver untouched. Version grows by one on
// every mutation so storage can reject stale writes.
type Challenge struct {
	ID              string            `json:"id"`
	Type            ChallengeType     `json:"type"`
	BackgroundImage string            `json:"background_image,omitempty"`
	PuzzleImage     string            `json:"puzzle_image,omitempty"`
	CorrectPosition Coordinate        `json:"correct_position"`
	CorrectAngle    float64           `json:"correct_angle"`
	Tolerance       float64           `json:"tolerance"`
	CreateTime      time.Time         `json:"create_time"`
	ExpireTime      time.Time         `json:"expire_time"`
	Completed       bool              `json:"completed"`
	Verified        bool              `json:"verified"`
	AttemptCount    int               `json:"attempt_count"`
	MaxAttempts     int               `json:"max_attempts"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Version         int64             `json:"version"`
}

type ChallengeOption func(*Challenge)

func WithCorrectPosition(pos Coordinate) ChallengeOption {
	return func(c *Challenge) { c.CorrectPosition = pos }
}

func WithCorrectAngle(angle float64) ChallengeOption {
	return func(c *Challenge) { c.CorrectAngle = normalizeAngle(angle) }
}

func WithTolerance(tolerance float64) ChallengeOption {
	return func(c *Challenge) { c.Tolerance = tolerance }
}

func WithMaxAttempts(n int) ChallengeOption {
	return func(c *Challenge) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithImages(background, puzzle string) ChallengeOption {
	return func(c *Challenge) {
		c.BackgroundImage = background
		c.PuzzleImage = puzzle
	}
}

func WithMetadata(key, value string) ChallengeOption {
	return func(c *Challenge) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		c.Metadata[key] = value
	}
}

// WithCreatedAt moves the creation instant and keeps the configured lifetime.
func WithCreatedAt(t time.Time) ChallengeOption {
	return func(c *Challenge) {
		ttl := c.ExpireTime.Sub(c.CreateTime)
		c.CreateTime = t
		c.ExpireTime = t.Add(ttl)
	}
}

func WithExpiration(d time.Duration) ChallengeOption {
	return func(c *Challenge) {
		if d > 0 {
			c.ExpireTime = c.CreateTime.Add(d)
		}
	}
}

// NewChallenge builds a pending challenge with the defaults of its type.
func NewChallenge(t ChallengeType, opts ...ChallengeOption) (Challenge, error) {
	if !t.IsValid() {
		return Challenge{}, ErrUnsupportedChallengeType.WithError(fmt.Errorf("unknown challenge type %q", t))
	}

	now := time.Now()
	c := Challenge{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:        t,
		Tolerance:   t.DefaultTolerance(),
		CreateTime:  now,
		ExpireTime:  now.Add(t.DefaultExpiration()),
		MaxAttempts: DefaultMaxAttempts,
		Version:     1,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if !c.ExpireTime.After(c.CreateTime) {
		return Challenge{}, ErrValidationFailed.WithError(fmt.Errorf("expire time must be after create time"))
	}
	if c.Tolerance < 0 {
		return Challenge{}, ErrValidationFailed.WithError(fmt.Errorf("tolerance must not be negative"))
	}

	return c, nil
}

// IsExpired checks the wall clock against ExpireTime.
func (c Challenge) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

func (c Challenge) IsExpiredAt(now time.Time) bool {
	return now.After(c.ExpireTime)
}

// CanAttempt is the single predicate callers check before offering a retry.
func (c Challenge) CanAttempt() bool {
	return !c.IsExpired() && !c.Completed && c.AttemptCount < c.MaxAttempts
}

func (c Challenge) RemainingAttempts() int {
	if c.Completed || c.IsExpired() {
		return 0
	}
	if r := c.MaxAttempts - c.AttemptCount; r > 0 {
		return r
	}
	return 0
}

func (c Challenge) Status() ChallengeStatus {
	switch {
	case c.Verified:
		return StatusVerified
	case c.Completed:
		return StatusExhausted
	case c.IsExpired():
		return StatusExpired
	case c.AttemptCount == 0:
		return StatusPending
	default:
		return StatusAttempting
	}
}

// VerifyAnswer checks a positional answer. Slider challenges compare only
// the X axis; every other type uses the Euclidean distance.
func (c Challenge) VerifyAnswer(answer Coordinate) (Challenge, bool) {
	if !c.CanAttempt() {
		return c, false
	}

	next := c.nextAttempt()

	var matched bool
	if answer.IsValid() {
		if c.Type == ChallengeTypeSlider {
			matched = float64(answer.XDistanceTo(c.CorrectPosition)) <= c.Tolerance
		} else {
			matched = answer.WithinTolerance(c.CorrectPosition, c.Tolerance)
		}
	}

	return next.settle(matched), matched
}

// VerifyRotationAnswer compares angles on the 0-360 circle, so 359 and 1
// are two degrees apart.
func (c Challenge) VerifyRotationAnswer(userAngle, correctAngle float64) (Challenge, bool) {
	if !c.CanAttempt() {
		return c, false
	}

	next := c.nextAttempt()

	matched := false
	if !math.IsNaN(userAngle) && !math.IsInf(userAngle, 0) {
		matched = AngleDifference(userAngle, correctAngle) <= c.Tolerance
	}

	return next.settle(matched), matched
}

// GenerateTicket mints the one-time ticket of a verified challenge. The
// ticket is not persisted here.
func (c Challenge) GenerateTicket() (string, error) {
	if !c.Verified {
		return "", ErrInvalidState.WithError(fmt.Errorf("challenge %s is not verified", c.ID))
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%s_%d_%s", c.ID, time.Now().UnixMilli(), random), nil
}

// AngleDifference returns the shortest distance between two angles in degrees.
func AngleDifference(a, b float64) float64 {
	diff := math.Abs(normalizeAngle(a) - normalizeAngle(b))
	return math.Min(diff, 360-diff)
}

func (c Challenge) nextAttempt() Challenge {
	c.AttemptCount++
	c.Version++
	return c
}

func (c Challenge) settle(matched bool) Challenge {
	if matched {
		c.Verified = true
		c.Completed = true
		return c
	}
	if c.AttemptCount >= c.MaxAttempts {
		c.Completed = true
	}
	return c
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChallengeType is the kind of puzzle presented to the user.
type ChallengeType string

const (
	ChallengeTypeConcat ChallengeType = "concat"
	ChallengeTypeRotate ChallengeType = "rotate"
	ChallengeTypeSlider ChallengeType = "slider"
	ChallengeTypeClick  ChallengeType = "click"
)

// challengeTypeSpec holds the per-type defaults.
type challengeTypeSpec struct {
	label      string
	tolerance  float64
	expiration time.Duration
}

var challengeTypes = map[ChallengeType]challengeTypeSpec{
	ChallengeTypeConcat: {label: "Image concat", tolerance: 10, expiration: 5 * time.Minute},
	ChallengeTypeRotate: {label: "Rotate", tolerance: 10, expiration: 5 * time.Minute},
	ChallengeTypeSlider: {label: "Slider", tolerance: 5, expiration: 5 * time.Minute},
	ChallengeTypeClick:  {label: "Click", tolerance: 15, expiration: 5 * time.Minute},
}

// AllChallengeTypes returns the catalog in a stable order.
func AllChallengeTypes() []ChallengeType {
	return []ChallengeType{
		ChallengeTypeConcat,
		ChallengeTypeRotate,
		ChallengeTypeSlider,
		ChallengeTypeClick,
	}
}

// ParseChallengeType converts a case-insensitive name into a ChallengeType.
func ParseChallengeType(s string) (ChallengeType, error) {
	t := ChallengeType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrUnsupportedChallengeType.WithError(fmt.Errorf("unknown challenge type %q", s))
	}
	return t, nil
}

func (t ChallengeType) IsValid() bool {
	_, ok := challengeTypes[t]
	return ok
}

func (t ChallengeType) String() string {
	return string(t)
}

func (t ChallengeType) Label() string {
	return challengeTypes[t].label
}

// DefaultTolerance is measured in pixels, or in degrees for Rotate.
func (t ChallengeType) DefaultTolerance() float64 {
	return challengeTypes[t].tolerance
}

func (t ChallengeType) DefaultExpiration() time.Duration {
	return challengeTypes[t].expiration
}

// IsAngular reports whether answers are angles rather than coordinates.
func (t ChallengeType) IsAngular() bool {
	return t == ChallengeTypeRotate
}

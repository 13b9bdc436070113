package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallengeType(t *testing.T) {
	tests := []struct {
		input   string
		want    ChallengeType
		wantErr bool
	}{
		{"slider", ChallengeTypeSlider, false},
		{"SLIDER", ChallengeTypeSlider, false},
		{" rotate ", ChallengeTypeRotate, false},
		{"concat", ChallengeTypeConcat, false},
		{"click", ChallengeTypeClick, false},
		{"", "", true},
		{"puzzle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChallengeType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedChallengeType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChallengeType_Defaults(t *testing.T) {
	for _, ct := range AllChallengeTypes() {
		t.Run(ct.String(), func(t *testing.T) {
			assert.True(t, ct.IsValid())
			assert.NotEmpty(t, ct.Label())
			assert.Greater(t, ct.DefaultTolerance(), 0.0)
			assert.Equal(t, 5*time.Minute, ct.DefaultExpiration())
		})
	}

	assert.True(t, ChallengeTypeRotate.IsAngular())
	assert.False(t, ChallengeTypeSlider.IsAngular())
	assert.False(t, ChallengeType("nope").IsValid())
}

func TestChallengeType_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Type ChallengeType `json:"type"`
	}{ChallengeTypeSlider})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"slider"}`, string(raw))
}

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureTracker_RecordFailure(t *testing.T) {
	tests := []struct {
		name      string
		mockCount int
		mockErr   error
		wantCount int
		wantErr   bool
	}{
		{
			name:      "first failure",
			mockCount: 1,
			wantCount: 1,
		},
		{
			name:      "counter incremented",
			mockCount: 4,
			wantCount: 4,
		},
		{
			name:    "database error",
			mockErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tracker := NewFailureTracker(mock, 15*time.Minute, 3)

			expect := mock.ExpectQuery("INSERT INTO captcha_failure_counters").
				WithArgs(
					"1.2.3.4",
					pgxmock.AnyArg(), // now
					pgxmock.AnyArg(), // window_end
				)
			if tt.mockErr != nil {
				expect.WillReturnError(tt.mockErr)
			} else {
				expect.WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(tt.mockCount))
			}

			count, err := tracker.RecordFailure(context.Background(), "1.2.3.4")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "record failure")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCount, count)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFailureTracker_IsBlocked(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		mockCount int
		mockErr   error
		want      bool
		wantErr   bool
		noQuery   bool
	}{
		{name: "below threshold", threshold: 3, mockCount: 2, want: false},
		{name: "at threshold", threshold: 3, mockCount: 3, want: true},
		{name: "above threshold", threshold: 3, mockCount: 7, want: true},
		{name: "no counter", threshold: 3, mockErr: pgx.ErrNoRows, want: false},
		{name: "database error", threshold: 3, mockErr: errors.New("timeout"), wantErr: true},
		{name: "no limit configured", threshold: 0, noQuery: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tracker := NewFailureTracker(mock, time.Minute, tt.threshold)

			if !tt.noQuery {
				expect := mock.ExpectQuery("SELECT count").
					WithArgs("1.2.3.4", pgxmock.AnyArg())
				if tt.mockErr != nil {
					expect.WillReturnError(tt.mockErr)
				} else {
					expect.WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(tt.mockCount))
				}
			}

			blocked, err := tracker.IsBlocked(context.Background(), "1.2.3.4")

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, blocked)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFailureTracker_Reset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker := NewFailureTracker(mock, time.Minute, 3)

	mock.ExpectExec("DELETE FROM captcha_failure_counters").
		WithArgs("1.2.3.4").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = tracker.Reset(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailureTracker_CleanupExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker := NewFailureTracker(mock, time.Minute, 3)

	mock.ExpectExec("DELETE FROM captcha_failure_counters").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	deleted, err := tracker.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

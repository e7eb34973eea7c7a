package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBoundaries(t *testing.T) {
	t.Run("should compute day boundaries in the given location", func(t *testing.T) {
		// given
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		instant := time.Date(2024, 5, 2, 2, 30, 0, 0, time.UTC) // 2024-05-01 22:30 in New York

		// when
		start := StartOfDay(instant, loc)
		end := EndOfDay(instant, loc)

		// then
		assert.Equal(t, "2024-05-01T00:00:00-04:00", start.Format(time.RFC3339))
		assert.Equal(t, "2024-05-01T23:59:59-04:00", end.Format(time.RFC3339))
	})

	t.Run("should treat empty zone as UTC", func(t *testing.T) {
		loc, err := LoadLocation("")
		require.NoError(t, err)
		assert.Equal(t, time.UTC, loc)
	})

	t.Run("should advance mock clock", func(t *testing.T) {
		clock := &MockClock{FixedNow: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		clock.Advance(90 * time.Minute)
		assert.Equal(t, time.Date(2024, 1, 1, 1, 30, 0, 0, time.UTC), clock.Now())
	})
}

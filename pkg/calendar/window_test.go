package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timed(id, start, end string) CalendarEvent {
	e := CalendarEvent{Id: id, Start: EventTime{DateTime: start}}
	if end != "" {
		e.End = &EventTime{DateTime: end}
	}
	return e
}

func allDay(id, date string) CalendarEvent {
	return CalendarEvent{Id: id, Start: EventTime{Date: date}}
}

func ids(events []CalendarEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Id)
	}
	return out
}

func TestFilterForWindow(t *testing.T) {
	t.Run("should keep events starting today that have not finished", func(t *testing.T) {
		// given
		now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
		events := []CalendarEvent{
			timed("finished", "2025-06-02T08:00:00Z", "2025-06-02T09:00:00Z"),
			timed("ongoing", "2025-06-02T11:30:00Z", "2025-06-02T12:30:00Z"),
			timed("later", "2025-06-02T15:00:00Z", "2025-06-02T16:00:00Z"),
			timed("no-end", "2025-06-02T07:00:00Z", ""),
			timed("tomorrow", "2025-06-03T09:00:00Z", "2025-06-03T10:00:00Z"),
			allDay("holiday", "2025-06-02"),
			allDay("other-day", "2025-06-01"),
		}

		// when
		result, err := Upcoming(events, now, "UTC")

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"ongoing", "later", "no-end", "holiday"}, ids(result))
	})

	t.Run("should compare days in the requested timezone", func(t *testing.T) {
		// given
		now := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC) // 2025-06-01 22:00 in New York
		events := []CalendarEvent{
			timed("late-evening", "2025-06-01T23:30:00-04:00", "2025-06-02T00:30:00-04:00"),
			allDay("june-first", "2025-06-01"),
			allDay("june-second", "2025-06-02"),
		}

		// when
		result, err := Upcoming(events, now, "America/New_York")

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"late-evening", "june-first"}, ids(result))
	})

	t.Run("should treat window end at local midnight as exclusive", func(t *testing.T) {
		// given
		start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
		events := []CalendarEvent{
			timed("in", "2025-06-02T09:00:00Z", "2025-06-02T09:30:00Z"),
			allDay("in-all-day", "2025-06-02"),
			allDay("next-day", "2025-06-03"),
		}

		// when
		result, err := FilterForWindow(events, start, end, "UTC")

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"in", "in-all-day"}, ids(result))
	})

	t.Run("should fail on unknown timezone", func(t *testing.T) {
		_, err := FilterForWindow(nil, time.Now(), time.Now(), "Nowhere/Land")

		assert.Error(t, err)
	})

	t.Run("should skip events with invalid start", func(t *testing.T) {
		now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
		result, err := Upcoming([]CalendarEvent{{Id: "broken"}}, now, "UTC")

		require.NoError(t, err)
		assert.Empty(t, result)
	})
}

func TestBucketByDate(t *testing.T) {
	t.Run("should bucket by local date instead of utc date", func(t *testing.T) {
		// given
		events := []CalendarEvent{timed("late", "2025-06-01T23:30:00-04:00", "")}

		// when
		buckets, err := BucketByDate(events, "America/New_York")

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-06-01"}, buckets.Dates())
		assert.Equal(t, []string{"late"}, ids(buckets.Get("2025-06-01")))
		assert.Empty(t, buckets.Get("2025-06-02"))
	})

	t.Run("should order dates and keep finished events", func(t *testing.T) {
		// given
		events := []CalendarEvent{
			timed("b2", "2025-06-03T10:00:00Z", "2025-06-03T11:00:00Z"),
			allDay("a1", "2025-06-02"),
			timed("b1", "2025-06-03T08:00:00Z", "2025-06-03T09:00:00Z"),
			{Id: "no-start"},
		}

		// when
		buckets, err := BucketByDate(events, "UTC")

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-06-02", "2025-06-03"}, buckets.Dates())
		assert.Equal(t, []string{"b2", "b1"}, ids(buckets.Get("2025-06-03")))
	})

	t.Run("should marshal buckets as date ordered object", func(t *testing.T) {
		// given
		buckets, err := BucketByDate([]CalendarEvent{allDay("z", "2025-06-05"), allDay("a", "2025-06-01")}, "UTC")
		require.NoError(t, err)

		// when
		data, err := json.Marshal(buckets)

		// then
		require.NoError(t, err)
		assert.Regexp(t, `^\{"2025-06-01":\[.*\],"2025-06-05":\[.*\]\}$`, string(data))
	})
}

package calendar_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flohub/flohub/internal/test_utils"
	"github.com/flohub/flohub/internal/utils"
	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/flohub/flohub/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler(t *testing.T) (*Handler, *fixture, []calendar_source.CalendarSource) {
	t.Helper()
	f := newFixture(t)
	sources := f.addSources(t,
		calendar_source.CalendarSource{Name: "Work", Type: calendar_source.TypeURL, SourceId: "https://work.example.com", Tags: []string{"work"}, IsEnabled: true},
	)
	clock := &utils.MockClock{FixedNow: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	return NewHandler(f.aggregator(), clock, "UTC"), f, sources
}

func get(h http.HandlerFunc, target string, ctx context.Context) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandler_GetEvents(t *testing.T) {
	t.Run("should return the aggregated events", func(t *testing.T) {
		// given
		h, f, sources := setupHandler(t)
		f.stub.WithEvents(sources[0].Id, timedEvent("w1", "Standup", "2025-06-02T09:00:00Z"))

		// when
		rr := get(h.GetEvents, "/api/calendar/events?timeMin=2025-06-02T00:00:00Z&timeMax=2025-06-03T00:00:00Z", f.ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var events []calendar.CalendarEvent
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, "Standup", events[0].Summary)
		assert.Equal(t, calendar.Work, events[0].Source)
	})

	t.Run("should return an empty array when no source has events", func(t *testing.T) {
		h, f, _ := setupHandler(t)

		rr := get(h.GetEvents, "/api/calendar/events", f.ctx)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("should reject invalid timeMin", func(t *testing.T) {
		h, f, _ := setupHandler(t)

		rr := get(h.GetEvents, "/api/calendar/events?timeMin=yesterday", f.ctx)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should reject a window ending before it starts", func(t *testing.T) {
		h, f, _ := setupHandler(t)

		rr := get(h.GetEvents, "/api/calendar/events?timeMin=2025-06-03T00:00:00Z&timeMax=2025-06-02T00:00:00Z", f.ctx)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should reject requests without user", func(t *testing.T) {
		h, _, _ := setupHandler(t)

		rr := get(h.GetEvents, "/api/calendar/events", context.Background())

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("should pass legacy query parameters", func(t *testing.T) {
		// given
		h, f, _ := setupHandler(t)
		f.stub.WithEvents("a@example.com", timedEvent("a1", "A", "2025-06-02T09:00:00Z"))

		// when
		rr := get(h.GetEvents, "/api/calendar/events?calendarId=a@example.com,%20b@example.com", f.ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, f.stub.Calls())
	})
}

func TestHandler_GetAggregate(t *testing.T) {
	t.Run("should include source errors", func(t *testing.T) {
		// given
		h, f, sources := setupHandler(t)
		f.stub.WithError(sources[0].Id, errors.New("connection refused"))

		// when
		rr := get(h.GetAggregate, "/api/calendar/events/aggregate?timeMin=2025-06-02T00:00:00Z&timeMax=2025-06-03T00:00:00Z", f.ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var result AggregateResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Empty(t, result.Events)
		require.Len(t, result.SourceErrors, 1)
		assert.Equal(t, "Work", result.SourceErrors[0].Name)
		assert.Equal(t, "connection refused", result.SourceErrors[0].Error)
	})
}

func TestHandler_GetUpcoming(t *testing.T) {
	t.Run("should return today's unfinished events in the user's timezone", func(t *testing.T) {
		// given
		h, f, sources := setupHandler(t)
		finished := timedEvent("finished", "Breakfast", "2025-06-02T06:00:00Z")
		finished["end"] = map[string]any{"dateTime": "2025-06-02T07:00:00Z"}
		f.stub.WithEvents(sources[0].Id,
			finished,
			timedEvent("later", "Review", "2025-06-02T14:00:00Z"),
			timedEvent("tomorrow", "Planning", "2025-06-03T09:00:00Z"),
			calendar.RawEvent{"id": "allday", "summary": "Offsite", "start": map[string]any{"date": "2025-06-02"}},
		)

		// when
		rr := get(h.GetUpcoming, "/api/calendar/events/upcoming", f.ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var events []calendar.CalendarEvent
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
		assert.Equal(t, []string{"later", "allday"}, eventIds(events))
	})

	t.Run("should reject an unknown timezone", func(t *testing.T) {
		h, f, _ := setupHandler(t)

		rr := get(h.GetUpcoming, "/api/calendar/events/upcoming?timezone=Mars/Olympus", f.ctx)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should use the default timezone when the user has none", func(t *testing.T) {
		// given
		h, f, sources := setupHandler(t)
		f.stub.WithEvents(sources[0].Id, timedEvent("late", "Late call", "2025-06-02T23:00:00Z"))
		ctx := test_utils.WithTestUser(context.Background(), func(u *user.User) {
			u.Settings.Timezone = ""
		})

		// when
		rr := get(h.GetUpcoming, "/api/calendar/events/upcoming", ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var events []calendar.CalendarEvent
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
		assert.Equal(t, []string{"late"}, eventIds(events))
	})
}

func TestHandler_GetEventsByDate(t *testing.T) {
	t.Run("should bucket events by local date in date order", func(t *testing.T) {
		// given
		h, f, sources := setupHandler(t)
		f.stub.WithEvents(sources[0].Id,
			timedEvent("second", "Afternoon", "2025-06-02T15:00:00Z"),
			timedEvent("first", "Late evening", "2025-06-01T23:30:00-04:00"),
		)

		// when
		rr := get(h.GetEventsByDate,
			"/api/calendar/events/by-date?timeMin=2025-06-01T00:00:00Z&timeMax=2025-06-03T00:00:00Z&timezone=America/New_York", f.ctx)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		var buckets map[string][]calendar.CalendarEvent
		require.NoError(t, json.Unmarshal([]byte(body), &buckets))
		assert.Equal(t, []string{"first"}, eventIds(buckets["2025-06-01"]))
		assert.Equal(t, []string{"second"}, eventIds(buckets["2025-06-02"]))
		assert.Less(t, strings.Index(body, `"2025-06-01"`), strings.Index(body, `"2025-06-02"`))
	})
}

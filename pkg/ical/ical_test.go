package ical

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	timeMin = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	timeMax = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
)

func ics(lines ...string) string {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//FloHub//Test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

var sampleCalendar = ics(
	"BEGIN:VEVENT",
	"UID:single@example.com",
	"DTSTAMP:20250520T120000Z",
	"SUMMARY:Dentist",
	"LOCATION:Main Street 1",
	"CATEGORIES:health,personal",
	"DTSTART:20250602T090000Z",
	"DTEND:20250602T093000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday@example.com",
	"DTSTAMP:20250520T120000Z",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20250603",
	"DTEND;VALUE=DATE:20250604",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:daily@example.com",
	"DTSTAMP:20250520T120000Z",
	"SUMMARY:Standup",
	"DTSTART;TZID=Europe/Berlin:20250601T100000",
	"DTEND;TZID=Europe/Berlin:20250601T103000",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE;TZID=Europe/Berlin:20250603T100000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:daily@example.com",
	"DTSTAMP:20250520T120000Z",
	"RECURRENCE-ID;TZID=Europe/Berlin:20250604T100000",
	"SUMMARY:Moved standup",
	"DTSTART;TZID=Europe/Berlin:20250604T140000",
	"DTEND;TZID=Europe/Berlin:20250604T143000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:later@example.com",
	"DTSTAMP:20250520T120000Z",
	"SUMMARY:Next month",
	"DTSTART:20250701T090000Z",
	"DTEND:20250701T100000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:cancelled@example.com",
	"DTSTAMP:20250520T120000Z",
	"SUMMARY:Cancelled",
	"STATUS:CANCELLED",
	"DTSTART:20250605T090000Z",
	"DTEND:20250605T100000Z",
	"END:VEVENT",
)

func ids(events []calendar.RawEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		id, _ := e["id"].(string)
		out = append(out, id)
	}
	return out
}

func TestIsCalendar(t *testing.T) {
	assert.True(t, IsCalendar([]byte(sampleCalendar)))
	assert.True(t, IsCalendar([]byte("\xEF\xBB\xBF\r\nbegin:vcalendar\r\n")))
	assert.False(t, IsCalendar([]byte(`[{"title":"x"}]`)))
	assert.False(t, IsCalendar([]byte("BEGIN")))
}

func TestParse(t *testing.T) {
	t.Run("should return events in window with recurrences expanded", func(t *testing.T) {
		// when
		events, err := Parse([]byte(sampleCalendar), timeMin, timeMax)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{
			"daily@example.com_20250602T080000Z",
			"single@example.com",
			"holiday@example.com",
			"daily@example.com_20250604T120000Z",
			"daily@example.com_20250605T080000Z",
		}, ids(events))
	})

	t.Run("should render timed events with their offset and all-day events as dates", func(t *testing.T) {
		events, err := Parse([]byte(sampleCalendar), timeMin, timeMax)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"dateTime": "2025-06-02T10:00:00+02:00"}, events[0]["start"])
		assert.Equal(t, map[string]any{"dateTime": "2025-06-02T10:30:00+02:00"}, events[0]["end"])
		assert.Equal(t, map[string]any{"date": "2025-06-03"}, events[2]["start"])
		assert.Equal(t, map[string]any{"date": "2025-06-04"}, events[2]["end"])
	})

	t.Run("should apply overrides to the replaced occurrence", func(t *testing.T) {
		events, err := Parse([]byte(sampleCalendar), timeMin, timeMax)
		require.NoError(t, err)

		moved := events[3]
		assert.Equal(t, "Moved standup", moved["summary"])
		assert.Equal(t, map[string]any{"dateTime": "2025-06-04T14:00:00+02:00"}, moved["start"])
	})

	t.Run("should carry text properties", func(t *testing.T) {
		events, err := Parse([]byte(sampleCalendar), timeMin, timeMax)
		require.NoError(t, err)

		single := events[1]
		assert.Equal(t, "Dentist", single["summary"])
		assert.Equal(t, "Main Street 1", single["location"])
		assert.Equal(t, []any{"health", "personal"}, single["categories"])
	})

	t.Run("should produce events the normalizer accepts", func(t *testing.T) {
		events, err := Parse([]byte(sampleCalendar), timeMin, timeMax)
		require.NoError(t, err)

		for _, raw := range events {
			event, err := calendar.Normalize(raw, "src")
			require.NoError(t, err)
			assert.True(t, event.Start.Valid())
		}
	})

	t.Run("should include an event running into the window", func(t *testing.T) {
		body := ics(
			"BEGIN:VEVENT",
			"UID:overnight@example.com",
			"SUMMARY:Overnight",
			"DTSTART:20250601T220000Z",
			"DTEND:20250602T020000Z",
			"END:VEVENT",
		)

		events, err := Parse([]byte(body), timeMin, timeMax)

		require.NoError(t, err)
		assert.Equal(t, []string{"overnight@example.com"}, ids(events))
	})

	t.Run("should resolve windows zone names", func(t *testing.T) {
		body := ics(
			"BEGIN:VEVENT",
			"UID:exchange@example.com",
			"SUMMARY:Exchange meeting",
			`DTSTART;TZID="W. Europe Standard Time":20250602T090000`,
			`DTEND;TZID="W. Europe Standard Time":20250602T100000`,
			"END:VEVENT",
		)

		events, err := Parse([]byte(body), timeMin, timeMax)

		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, map[string]any{"dateTime": "2025-06-02T09:00:00+02:00"}, events[0]["start"])
	})

	t.Run("should cap occurrences of a dense recurrence", func(t *testing.T) {
		body := ics(
			"BEGIN:VEVENT",
			"UID:ticker@example.com",
			"SUMMARY:Ticker",
			"DTSTART:20250602T000000Z",
			"DTEND:20250602T000001Z",
			"RRULE:FREQ=SECONDLY",
			"END:VEVENT",
		)

		events, err := Parse([]byte(body), timeMin, timeMax)

		require.NoError(t, err)
		require.Len(t, events, maxOccurrences)
		assert.Equal(t, map[string]any{"dateTime": "2025-06-02T00:00:00Z"}, events[0]["start"])
		assert.Equal(t, map[string]any{"dateTime": "2025-06-02T00:16:39Z"}, events[maxOccurrences-1]["start"])
	})

	t.Run("should skip events without start", func(t *testing.T) {
		body := ics(
			"BEGIN:VEVENT",
			"UID:broken@example.com",
			"SUMMARY:Broken",
			"END:VEVENT",
		)

		events, err := Parse([]byte(body), timeMin, timeMax)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("should fail on a malformed document", func(t *testing.T) {
		_, err := Parse([]byte("BEGIN:VCALENDAR\r\nthis is not ical"), timeMin, timeMax)

		assert.Error(t, err)
	})
}

func TestAdapter_FetchEvents(t *testing.T) {
	t.Run("should fetch and parse an iCalendar feed", func(t *testing.T) {
		// given
		var gotMin string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMin = r.URL.Query().Get("timeMin")
			w.Header().Set("Content-Type", "text/calendar")
			fmt.Fprint(w, sampleCalendar)
		}))
		defer srv.Close()
		source := calendar_source.CalendarSource{Id: "src-ical", Type: calendar_source.TypeICal, SourceId: srv.URL + "/feed.ics"}

		// when
		events, err := NewAdapter(srv.Client()).FetchEvents(context.Background(), source, timeMin, timeMax)

		// then
		require.NoError(t, err)
		assert.Len(t, events, 5)
		assert.Equal(t, "2025-06-02T00:00:00Z", gotMin)
	})

	t.Run("should reject a wrapped JSON body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"value":[{"title":"Gym","start":"2025-06-02T18:00:00Z"}]}`)
		}))
		defer srv.Close()
		source := calendar_source.CalendarSource{Id: "src-other", Type: calendar_source.TypeOther, SourceId: srv.URL}

		events, err := NewAdapter(srv.Client()).FetchEvents(context.Background(), source, timeMin, timeMax)

		assert.Nil(t, events)
		var fetchErr *calendar.SourceFetchError
		assert.True(t, errors.As(err, &fetchErr))
	})

	t.Run("should decode a bare JSON array body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"title":"Gym","start":"2025-06-02T18:00:00Z"}]`)
		}))
		defer srv.Close()
		source := calendar_source.CalendarSource{Id: "src-other", Type: calendar_source.TypeOther, SourceId: srv.URL}

		events, err := NewAdapter(srv.Client()).FetchEvents(context.Background(), source, timeMin, timeMax)

		require.NoError(t, err)
		assert.Equal(t, []calendar.RawEvent{{"title": "Gym", "start": "2025-06-02T18:00:00Z"}}, events)
	})

	t.Run("should return a fetch error for non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		source := calendar_source.CalendarSource{Id: "src-ical", Type: calendar_source.TypeICal, SourceId: srv.URL}

		events, err := NewAdapter(srv.Client()).FetchEvents(context.Background(), source, timeMin, timeMax)

		assert.Nil(t, events)
		var fetchErr *calendar.SourceFetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
		assert.Equal(t, "src-ical", fetchErr.SourceId)
	})

	t.Run("should return a fetch error for an html page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><body>Sign in</body></html>")
		}))
		defer srv.Close()
		source := calendar_source.CalendarSource{Id: "src-ical", Type: calendar_source.TypeICal, SourceId: srv.URL}

		_, err := NewAdapter(srv.Client()).FetchEvents(context.Background(), source, timeMin, timeMax)

		var fetchErr *calendar.SourceFetchError
		assert.True(t, errors.As(err, &fetchErr))
	})
}

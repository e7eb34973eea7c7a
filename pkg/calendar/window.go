package calendar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/flohub/flohub/internal/utils"
	log "github.com/sirupsen/logrus"
)

// FilterForWindow keeps the events that belong to the local days spanned by
// [windowStart, windowEnd) in tz. Timed events must start on one of those days
// and must not have ended before windowStart. All-day events are matched on
// their date alone.
func FilterForWindow(events []CalendarEvent, windowStart, windowEnd time.Time, tz string) ([]CalendarEvent, error) {
	loc, err := utils.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	if windowEnd.Before(windowStart) {
		return nil, fmt.Errorf("window end %s is before start %s", windowEnd, windowStart)
	}

	firstDay := windowStart.In(loc).Format(dateLayout)
	lastInstant := windowEnd
	if windowEnd.After(windowStart) && windowEnd.Equal(utils.StartOfDay(windowEnd, loc)) {
		lastInstant = windowEnd.Add(-time.Nanosecond)
	}
	lastDay := lastInstant.In(loc).Format(dateLayout)

	out := make([]CalendarEvent, 0, len(events))
	for _, e := range events {
		day, err := e.Start.LocalDate(loc)
		if err != nil {
			log.Warnf("skipping event %s with invalid start: %v", e.Id, err)
			continue
		}
		if day < firstDay || day > lastDay {
			continue
		}
		if !e.Start.IsAllDay() && e.End != nil && e.End.Valid() {
			end, err := e.End.Instant(loc)
			if err == nil && !end.After(windowStart) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Upcoming returns today's events in tz that have not finished by now.
func Upcoming(events []CalendarEvent, now time.Time, tz string) ([]CalendarEvent, error) {
	loc, err := utils.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return FilterForWindow(events, now, utils.EndOfDay(now, loc), tz)
}

// DateBuckets groups events by local date and iterates dates in ascending order.
type DateBuckets struct {
	dates  []string
	byDate map[string][]CalendarEvent
}

func (b *DateBuckets) Dates() []string {
	return b.dates
}

func (b *DateBuckets) Get(date string) []CalendarEvent {
	return b.byDate[date]
}

func (b *DateBuckets) Len() int {
	return len(b.dates)
}

// MarshalJSON renders the buckets as an object whose keys are in date order.
func (b *DateBuckets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, date := range b.dates {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(date)
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(b.byDate[date])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BucketByDate groups events by the local date of their start in tz. Order
// within a bucket follows the input order.
func BucketByDate(events []CalendarEvent, tz string) (*DateBuckets, error) {
	loc, err := utils.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	buckets := &DateBuckets{byDate: make(map[string][]CalendarEvent)}
	for _, e := range events {
		day, err := e.Start.LocalDate(loc)
		if err != nil {
			log.Warnf("skipping event %s with invalid start: %v", e.Id, err)
			continue
		}
		if _, ok := buckets.byDate[day]; !ok {
			buckets.dates = append(buckets.dates, day)
		}
		buckets.byDate[day] = append(buckets.byDate[day], e)
	}
	sort.Strings(buckets.dates)
	return buckets, nil
}

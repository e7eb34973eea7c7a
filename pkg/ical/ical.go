package ical

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/flohub/flohub/pkg/webhook"
	log "github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

const (
	dateLayout = "2006-01-02"
	// maxOccurrences caps the instances produced by a single recurring event.
	maxOccurrences = 1000
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Adapter fetches ical and other URL sources. Bodies that are not iCalendar
// documents must be a bare JSON array of events.
type Adapter struct {
	client *http.Client
}

func NewAdapter(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client}
}

func (a *Adapter) FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	target := webhook.TargetURL(source)
	data, err := webhook.Fetch(ctx, a.client, source.Id, target, timeMin, timeMax)
	if err != nil {
		log.Warnf("ical source %s failed: %v", source.Id, err)
		return nil, err
	}

	var events []calendar.RawEvent
	if IsCalendar(data) {
		events, err = Parse(data, timeMin, timeMax)
	} else {
		log.Debugf("ical source %s returned no VCALENDAR, decoding as JSON array", source.Id)
		events, err = webhook.UnwrapArray(data)
	}
	if err != nil {
		fetchErr := &calendar.SourceFetchError{SourceId: source.Id, URL: webhook.Redact(target), StatusCode: http.StatusOK, Err: err}
		log.Warnf("ical source %s returned unusable body: %v", source.Id, fetchErr)
		return nil, fetchErr
	}
	log.Debugf("fetched %d events from ical %s", len(events), webhook.Redact(target))
	return events, nil
}

// IsCalendar reports whether data is an iCalendar document.
func IsCalendar(data []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	const marker = "BEGIN:VCALENDAR"
	if len(trimmed) < len(marker) {
		return false
	}
	return strings.EqualFold(string(trimmed[:len(marker)]), marker)
}

type vevent struct {
	uid          string
	summary      string
	description  string
	location     string
	categories   []string
	start        time.Time
	end          time.Time
	allDay       bool
	rrule        string
	exdates      []time.Time
	recurrenceId *time.Time
	cancelled    bool
}

// Parse decodes an iCalendar document and returns the events overlapping
// [timeMin, timeMax]. Recurring events are expanded into one raw event per
// occurrence; RECURRENCE-ID overrides replace the occurrence they point at.
func Parse(data []byte, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).Decode()
	if err != nil {
		return nil, fmt.Errorf("invalid iCalendar: %w", err)
	}

	var (
		masters   []vevent
		overrides []vevent
	)
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		ev, err := parseVEvent(comp)
		if err != nil {
			log.Warnf("skipping VEVENT: %v", err)
			continue
		}
		if ev.recurrenceId != nil {
			overrides = append(overrides, ev)
		} else {
			masters = append(masters, ev)
		}
	}

	replaced := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		replaced[occurrenceKey(o.uid, *o.recurrenceId)] = true
	}

	type occurrence struct {
		start time.Time
		raw   calendar.RawEvent
	}
	var out []occurrence
	emit := func(ev vevent, start, end time.Time, recurring bool) {
		if ev.cancelled || !overlaps(start, end, timeMin, timeMax) {
			return
		}
		out = append(out, occurrence{start: start, raw: toRawEvent(ev, start, end, recurring)})
	}

	for _, ev := range masters {
		if ev.rrule == "" {
			emit(ev, ev.start, ev.end, false)
			continue
		}
		starts, err := expand(ev, timeMin, timeMax)
		if err != nil {
			log.Warnf("ignoring RRULE of %q: %v", ev.uid, err)
			emit(ev, ev.start, ev.end, false)
			continue
		}
		duration := ev.end.Sub(ev.start)
		for _, start := range starts {
			if replaced[occurrenceKey(ev.uid, start)] {
				continue
			}
			emit(ev, start, start.Add(duration), true)
		}
	}
	for _, o := range overrides {
		emit(o, o.start, o.end, true)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].start.Before(out[j].start)
	})
	events := make([]calendar.RawEvent, 0, len(out))
	for _, o := range out {
		events = append(events, o.raw)
	}
	return events, nil
}

func parseVEvent(comp *goical.Component) (vevent, error) {
	ev := vevent{
		uid:         propText(comp, goical.PropUID),
		summary:     propText(comp, goical.PropSummary),
		description: propText(comp, goical.PropDescription),
		location:    propText(comp, goical.PropLocation),
		cancelled:   strings.EqualFold(propText(comp, goical.PropStatus), "CANCELLED"),
	}
	for _, p := range comp.Props.Values(goical.PropCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ev.categories = append(ev.categories, c)
			}
		}
	}

	dtStart := comp.Props.Get(goical.PropDateTimeStart)
	if dtStart == nil {
		return ev, fmt.Errorf("event %q has no DTSTART", ev.uid)
	}
	start, allDay, err := propTime(dtStart)
	if err != nil {
		return ev, fmt.Errorf("event %q has invalid DTSTART: %w", ev.uid, err)
	}
	ev.start, ev.allDay = start, allDay

	switch {
	case comp.Props.Get(goical.PropDateTimeEnd) != nil:
		end, _, err := propTime(comp.Props.Get(goical.PropDateTimeEnd))
		if err != nil {
			return ev, fmt.Errorf("event %q has invalid DTEND: %w", ev.uid, err)
		}
		ev.end = end
	case comp.Props.Get(goical.PropDuration) != nil:
		d, err := comp.Props.Get(goical.PropDuration).Duration()
		if err != nil {
			return ev, fmt.Errorf("event %q has invalid DURATION: %w", ev.uid, err)
		}
		ev.end = start.Add(d)
	case allDay:
		ev.end = start.AddDate(0, 0, 1)
	default:
		ev.end = start
	}

	if p := comp.Props.Get(goical.PropRecurrenceRule); p != nil {
		ev.rrule = strings.TrimSpace(p.Value)
	}
	for _, p := range comp.Props.Values(goical.PropExceptionDates) {
		ev.exdates = append(ev.exdates, propTimes(p)...)
	}
	if p := comp.Props.Get(goical.PropRecurrenceID); p != nil {
		rid, _, err := propTime(p)
		if err != nil {
			return ev, fmt.Errorf("event %q has invalid RECURRENCE-ID: %w", ev.uid, err)
		}
		ev.recurrenceId = &rid
	}
	return ev, nil
}

func expand(ev vevent, timeMin, timeMax time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	// Occurrences that started before timeMin can still be running inside it.
	after := timeMin.Add(-ev.end.Sub(ev.start)).In(ev.start.Location())
	before := timeMax.In(ev.start.Location())
	starts := make([]time.Time, 0)
	next := set.Iterator()
	for {
		start, ok := next()
		if !ok || start.After(before) {
			break
		}
		if start.Before(after) {
			continue
		}
		if len(starts) == maxOccurrences {
			log.Warnf("event %q has more than %d occurrences in window, keeping the first %d", ev.uid, maxOccurrences, maxOccurrences)
			break
		}
		starts = append(starts, start)
	}
	return starts, nil
}

func toRawEvent(ev vevent, start, end time.Time, recurring bool) calendar.RawEvent {
	raw := calendar.RawEvent{
		"summary": ev.summary,
		"start":   eventTime(start, ev.allDay),
		"end":     eventTime(end, ev.allDay),
	}
	if ev.uid != "" {
		raw["uid"] = ev.uid
		raw["id"] = ev.uid
		if recurring {
			raw["id"] = occurrenceKey(ev.uid, start)
		}
	}
	if ev.description != "" {
		raw["description"] = ev.description
	}
	if ev.location != "" {
		raw["location"] = ev.location
	}
	if len(ev.categories) > 0 {
		categories := make([]any, 0, len(ev.categories))
		for _, c := range ev.categories {
			categories = append(categories, c)
		}
		raw["categories"] = categories
	}
	return raw
}

func eventTime(t time.Time, allDay bool) map[string]any {
	if allDay {
		return map[string]any{"date": t.Format(dateLayout)}
	}
	return map[string]any{"dateTime": t.Format(time.RFC3339)}
}

func occurrenceKey(uid string, start time.Time) string {
	return uid + "_" + start.UTC().Format("20060102T150405Z")
}

func overlaps(start, end, timeMin, timeMax time.Time) bool {
	if end.Equal(start) {
		return !start.Before(timeMin) && !start.After(timeMax)
	}
	return start.Before(timeMax) && end.After(timeMin)
}

func propText(comp *goical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	text, err := p.Text()
	if err != nil {
		return p.Value
	}
	return text
}

// propTime parses a DATE or DATE-TIME property. Floating times and unknown
// TZIDs fall back to UTC; Windows zone names are accepted.
func propTime(p *goical.Prop) (time.Time, bool, error) {
	value := strings.TrimSpace(p.Value)
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return parseValue(value, p.Params.Get("VALUE"), p.Params.Get("TZID"))
}

func propTimes(p goical.Prop) []time.Time {
	var out []time.Time
	for _, v := range strings.Split(p.Value, ",") {
		t, _, err := parseValue(strings.TrimSpace(v), p.Params.Get("VALUE"), p.Params.Get("TZID"))
		if err != nil {
			log.Debugf("ignoring EXDATE %q: %v", v, err)
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseValue(value, valueType, tzid string) (time.Time, bool, error) {
	if strings.EqualFold(valueType, "DATE") || len(value) == len("20060102") {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		return t, true, err
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}
	loc, known := calendar.ResolveLocation(strings.Trim(tzid, `"`))
	if tzid != "" && !known {
		log.Debugf("unknown TZID %q, using UTC", tzid)
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err
}

package calendar

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultSummary = "Untitled Event"

var localLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Normalize converts a provider event into a CalendarEvent. Events without a
// resolvable start are rejected with a *NormalizationWarning.
func Normalize(raw RawEvent, sourceId string) (CalendarEvent, error) {
	summary := firstString(raw, "summary", "subject", "title", "name")
	if summary == "" {
		summary = DefaultSummary
	}
	allDay, _ := raw["isAllDay"].(bool)

	start, ok := resolveTime(raw, "start", "startTime", "startDate", allDay)
	if !ok {
		return CalendarEvent{}, &NormalizationWarning{
			SourceId: sourceId,
			EventId:  firstString(raw, "id", "iCalUId", "uid"),
			Reason:   "no parseable start",
		}
	}

	end, ok := resolveTime(raw, "end", "endTime", "endDate", allDay)
	if !ok || end.IsAllDay() != start.IsAllDay() {
		if ok {
			log.Tracef("ignoring end %+v of different kind than start %+v", end, start)
		}
		end = defaultEnd(start)
	}

	event := CalendarEvent{
		Id:         firstString(raw, "id", "iCalUId", "uid"),
		CalendarId: sourceId,
		Summary:    summary,
		Start:      start,
		End:        &end,
		Location:   resolveLocation(raw),
		Tags:       stringList(raw, "tags", "categories"),
	}
	if event.Id == "" {
		event.Id = syntheticId(sourceId, start, summary)
	}

	description := firstString(raw, "description", "bodyPreview")
	if body, ok := raw["body"].(map[string]any); ok {
		if content, ok := body["content"].(string); ok && content != "" && firstString(raw, "description") == "" {
			description = content
		}
	}
	applyDescription(&event, description)

	return event, nil
}

func applyDescription(event *CalendarEvent, description string) {
	if !IsHTML(description) {
		event.Description = description
		return
	}
	event.RawDescription = description
	meeting := ExtractMeetingMetadata(description)
	if meeting.IsEmpty() {
		event.Description = StripHTML(description)
		return
	}
	event.Meeting = &meeting
	event.Description = FormatMeetingDescription(meeting)
}

// IsHTML reports whether a description should go through HTML processing.
func IsHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<div") || strings.Contains(lower, "<span")
}

// resolveTime walks objKey.dateTime, objKey.date, flatKeys and finally objKey
// as a plain string.
func resolveTime(raw RawEvent, objKey, flatKey, flatDateKey string, allDay bool) (EventTime, bool) {
	var candidates []string
	zone := ""
	switch v := raw[objKey].(type) {
	case map[string]any:
		if s, ok := v["dateTime"].(string); ok {
			candidates = append(candidates, s)
		}
		if s, ok := v["date"].(string); ok {
			candidates = append(candidates, s)
		}
		zone, _ = v["timeZone"].(string)
	}
	if s, ok := raw[flatKey].(string); ok {
		candidates = append(candidates, s)
	}
	if s, ok := raw[flatDateKey].(string); ok {
		candidates = append(candidates, s)
	}
	if s, ok := raw[objKey].(string); ok {
		candidates = append(candidates, s)
	}
	if zone == "" {
		zone, _ = raw["timeZone"].(string)
	}

	for _, c := range candidates {
		if t, ok := parseEventTime(strings.TrimSpace(c), zone, allDay); ok {
			return t, true
		}
	}
	return EventTime{}, false
}

func parseEventTime(value, zone string, allDay bool) (EventTime, bool) {
	if value == "" {
		return EventTime{}, false
	}
	if d, err := time.Parse(dateLayout, value); err == nil {
		return EventTime{Date: d.Format(dateLayout)}, true
	}

	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		loc, _ := ResolveLocation(zone)
		for _, layout := range localLayouts {
			if parsed, err = time.ParseInLocation(layout, value, loc); err == nil {
				break
			}
		}
		if err != nil {
			return EventTime{}, false
		}
	}
	if allDay {
		return EventTime{Date: parsed.Format(dateLayout)}, true
	}
	return EventTime{DateTime: parsed.Format(time.RFC3339)}, true
}

func defaultEnd(start EventTime) EventTime {
	if start.IsAllDay() {
		d, _ := time.Parse(dateLayout, start.Date)
		return EventTime{Date: d.AddDate(0, 0, 1).Format(dateLayout)}
	}
	s, _ := time.Parse(time.RFC3339Nano, start.DateTime)
	return EventTime{DateTime: s.Add(time.Hour).Format(time.RFC3339)}
}

func resolveLocation(raw RawEvent) string {
	switch v := raw["location"].(type) {
	case string:
		return v
	case map[string]any:
		name, _ := v["displayName"].(string)
		return name
	}
	return ""
}

func firstString(raw RawEvent, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringList(raw RawEvent, keys ...string) []string {
	out := make([]string, 0)
	for _, k := range keys {
		items, ok := raw[k].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func syntheticId(sourceId string, start EventTime, summary string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s%s|%s", sourceId, start.DateTime, start.Date, summary)))
	return sourceId + "-" + hex.EncodeToString(sum[:8])
}

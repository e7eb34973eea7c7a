package calendar

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

type EventCategory string

const (
	Personal EventCategory = "personal"
	Work     EventCategory = "work"
)

// EventTime holds either a timed instant (DateTime, RFC3339 with offset) or an
// all-day date (Date, YYYY-MM-DD). A valid value has exactly one of them.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

func (t EventTime) Valid() bool {
	return (t.DateTime == "") != (t.Date == "")
}

func (t EventTime) IsAllDay() bool {
	return t.Date != "" && t.DateTime == ""
}

// Instant returns the moment this time denotes. All-day dates resolve to
// midnight in loc.
func (t EventTime) Instant(loc *time.Location) (time.Time, error) {
	switch {
	case !t.Valid():
		return time.Time{}, fmt.Errorf("event time has neither or both of dateTime and date")
	case t.IsAllDay():
		return time.ParseInLocation(dateLayout, t.Date, loc)
	default:
		return time.Parse(time.RFC3339Nano, t.DateTime)
	}
}

// LocalDate returns the calendar date of this time as seen in loc. All-day
// dates are returned unchanged.
func (t EventTime) LocalDate(loc *time.Location) (string, error) {
	if t.IsAllDay() {
		return t.Date, nil
	}
	instant, err := t.Instant(loc)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(dateLayout), nil
}

type MeetingMetadata struct {
	MeetingId string `json:"meetingId,omitempty"`
	Passcode  string `json:"passcode,omitempty"`
	JoinLink  string `json:"joinLink,omitempty"`
}

func (m MeetingMetadata) IsEmpty() bool {
	return m.MeetingId == "" && m.Passcode == "" && m.JoinLink == ""
}

type CalendarEvent struct {
	Id         string    `json:"id"`
	CalendarId string    `json:"calendarId"`
	Summary    string    `json:"summary"`
	Start      EventTime `json:"start"`
	// End is nil when the provider gave none and no default applied.
	End            *EventTime       `json:"end,omitempty"`
	Description    string           `json:"description,omitempty"`
	RawDescription string           `json:"rawDescription,omitempty"`
	Location       string           `json:"location,omitempty"`
	CalendarName   string           `json:"calendarName"`
	Source         EventCategory    `json:"source"`
	Tags           []string         `json:"tags"`
	Meeting        *MeetingMetadata `json:"meeting,omitempty"`
}

// RawEvent is a provider event decoded from JSON before normalization.
type RawEvent map[string]any

package calendar_source

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flohub/flohub/pkg/calendar"
)

var ErrSourceNotFound = errors.New("calendar source not found")

type SourceType string

const (
	TypeGoogle SourceType = "google"
	TypeO365   SourceType = "o365"
	TypeURL    SourceType = "url"
	TypeICal   SourceType = "ical"
	TypeOther  SourceType = "other"
)

var sourceTypes = []SourceType{TypeGoogle, TypeO365, TypeURL, TypeICal, TypeOther}

func (t SourceType) Valid() bool {
	return slices.Contains(sourceTypes, t)
}

type SourceStatus string

const (
	StatusOk                SourceStatus = "ok"
	StatusReconnectRequired SourceStatus = "reconnect_required"
)

const (
	oauthPrefix = "oauth:"
	// DefaultAccountLabel names the OAuth account used when a source does not
	// name one.
	DefaultAccountLabel = "default"
)

type CalendarSource struct {
	Id       string
	UserId   int
	Name     string
	Type     SourceType
	SourceId string
	// ConnectionData is an OAuth marker ("oauth:<label>"), a webhook URL or empty.
	ConnectionData string
	Tags           []string
	IsEnabled      bool
	Status         SourceStatus
}

// OAuthMarker returns the ConnectionData value that binds a source to an OAuth
// account label.
func OAuthMarker(label string) string {
	if label == "" {
		label = DefaultAccountLabel
	}
	return oauthPrefix + label
}

// IsOAuth reports whether events are fetched with a stored OAuth token. Google
// sources always are; o365 sources only when ConnectionData carries the marker.
func (s CalendarSource) IsOAuth() bool {
	return s.Type == TypeGoogle || strings.HasPrefix(s.ConnectionData, oauthPrefix)
}

func (s CalendarSource) OAuthLabel() string {
	label := strings.TrimSpace(strings.TrimPrefix(s.ConnectionData, oauthPrefix))
	if label == "" || strings.Contains(label, "://") {
		return DefaultAccountLabel
	}
	return label
}

// Provider is the OAuth provider name tokens of this source are stored under,
// or "" for sources fetched without OAuth.
func (s CalendarSource) Provider() string {
	if !s.IsOAuth() {
		return ""
	}
	switch s.Type {
	case TypeGoogle:
		return "google"
	case TypeO365:
		return "microsoft"
	}
	return ""
}

// Category classifies a source as work when it is tagged "work" or is an o365
// source, and personal otherwise.
func (s CalendarSource) Category() calendar.EventCategory {
	if s.Type == TypeO365 {
		return calendar.Work
	}
	for _, tag := range s.Tags {
		if strings.EqualFold(strings.TrimSpace(tag), "work") {
			return calendar.Work
		}
	}
	return calendar.Personal
}

// SourceInput carries the fields of a create or update request. Nil fields are
// left untouched on update.
type SourceInput struct {
	Name           *string
	Type           *SourceType
	SourceId       *string
	ConnectionData *string
	Tags           []string
	IsEnabled      *bool
}

func (in SourceInput) applyTo(s *CalendarSource) {
	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	if in.Type != nil {
		s.Type = *in.Type
	}
	if in.SourceId != nil {
		s.SourceId = strings.TrimSpace(*in.SourceId)
	}
	if in.ConnectionData != nil {
		s.ConnectionData = strings.TrimSpace(*in.ConnectionData)
	}
	if in.Tags != nil {
		s.Tags = normalizeTags(in.Tags)
	}
	if in.IsEnabled != nil {
		s.IsEnabled = *in.IsEnabled
	}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func validate(s CalendarSource) error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !s.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown source type %q", s.Type)}
	}
	if s.SourceId == "" {
		return &ValidationError{Field: "sourceId", Message: "must not be empty"}
	}
	return nil
}

// normalizeTags trims tags and drops blanks and case-sensitive duplicates,
// keeping first occurrence order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// LegacySettings are the calendar fields of user settings that predate the
// source registry.
type LegacySettings struct {
	SelectedCals     []string
	PowerAutomateUrl string
}

// LegacySources builds the sources equivalent to legacy settings. primaryId is
// the calendar to tag as personal; it may be empty.
func LegacySources(legacy LegacySettings, primaryId string) []CalendarSource {
	sources := make([]CalendarSource, 0, len(legacy.SelectedCals)+1)
	for _, calId := range legacy.SelectedCals {
		calId = strings.TrimSpace(calId)
		if calId == "" {
			continue
		}
		src := CalendarSource{
			Name:           calId,
			Type:           TypeGoogle,
			SourceId:       calId,
			ConnectionData: OAuthMarker(DefaultAccountLabel),
			Tags:           []string{},
			IsEnabled:      true,
			Status:         StatusOk,
		}
		if calId == "primary" || calId == primaryId {
			src.Name = "Google Calendar"
			src.Tags = []string{"personal"}
		}
		sources = append(sources, src)
	}
	if url := strings.TrimSpace(legacy.PowerAutomateUrl); url != "" {
		sources = append(sources, CalendarSource{
			Name:           "Work Calendar",
			Type:           TypeO365,
			SourceId:       url,
			ConnectionData: url,
			Tags:           []string{"work"},
			IsEnabled:      true,
			Status:         StatusOk,
		})
	}
	return sources
}

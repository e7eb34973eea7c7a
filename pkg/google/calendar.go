package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const providerName = "google"

// Adapter fetches events of google sources through the Calendar API.
type Adapter struct {
	service *ServiceImpl
}

func NewAdapter(service *ServiceImpl) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	googleService, err := a.service.prepareGoogleService(ctx, source.UserId, source.OAuthLabel())
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, &calendar.AuthExpiredError{SourceId: source.Id, Provider: providerName, Err: err}
		}
		return nil, &calendar.SourceFetchError{SourceId: source.Id, Err: err}
	}

	events := make([]calendar.RawEvent, 0)
	err = googleService.Events.List(source.SourceId).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				events = append(events, toRawEvent(item))
			}
			return nil
		})
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			return nil, &calendar.AuthExpiredError{SourceId: source.Id, Provider: providerName, Err: err}
		}
		log.Errorf("unable to retrieve events of calendar %s from Google Calendar: %v", source.SourceId, err)
		fetchErr := &calendar.SourceFetchError{SourceId: source.Id, Err: fmt.Errorf("listing events: %w", err)}
		if apiErr != nil {
			fetchErr.StatusCode = apiErr.Code
		}
		return nil, fetchErr
	}
	log.Debugf("fetched %d events from Google calendar %s", len(events), source.SourceId)
	return events, nil
}

func toRawEvent(item *gcal.Event) calendar.RawEvent {
	raw := calendar.RawEvent{
		"id":          item.Id,
		"summary":     item.Summary,
		"description": item.Description,
		"location":    item.Location,
	}
	if item.ICalUID != "" {
		raw["iCalUId"] = item.ICalUID
	}
	if item.Start != nil {
		raw["start"] = eventDateTime(item.Start)
	}
	if item.End != nil {
		raw["end"] = eventDateTime(item.End)
	}
	return raw
}

func eventDateTime(dt *gcal.EventDateTime) map[string]any {
	m := map[string]any{}
	if dt.DateTime != "" {
		m["dateTime"] = dt.DateTime
	}
	if dt.Date != "" {
		m["date"] = dt.Date
	}
	if dt.TimeZone != "" {
		m["timeZone"] = dt.TimeZone
	}
	return m
}

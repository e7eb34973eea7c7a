package microsoft

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/flohub/flohub/pkg/user"
	log "github.com/sirupsen/logrus"
)

const providerName = "microsoft"

const graphTimeLayout = "2006-01-02T15:04:05Z"

type CalendarItem struct {
	ID        string
	Name      string
	IsDefault bool
}

// Adapter fetches events of OAuth-connected o365 sources from the Graph
// calendarView, which expands recurrences server-side.
type Adapter struct {
	graph *graphClient
}

func NewAdapter(auth ClientProvider, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	return &Adapter{graph: &graphClient{auth: auth, baseURL: strings.TrimSuffix(baseURL, "/")}}
}

func (a *Adapter) FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	client, err := a.graph.httpClient(ctx, source.UserId, source.OAuthLabel())
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, &calendar.AuthExpiredError{SourceId: source.Id, Provider: providerName, Err: err}
		}
		return nil, &calendar.SourceFetchError{SourceId: source.Id, Err: err}
	}

	endpoint := a.calendarViewURL(source.SourceId, timeMin, timeMax)
	items, err := a.graph.getAll(ctx, client, endpoint)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) {
			if statusErr.StatusCode == http.StatusUnauthorized {
				return nil, &calendar.AuthExpiredError{SourceId: source.Id, Provider: providerName, Err: err}
			}
			return nil, &calendar.SourceFetchError{SourceId: source.Id, StatusCode: statusErr.StatusCode, Err: err}
		}
		log.Errorf("unable to retrieve events of calendar %s from Graph: %v", source.SourceId, err)
		return nil, &calendar.SourceFetchError{SourceId: source.Id, Err: err}
	}

	events := make([]calendar.RawEvent, 0, len(items))
	for _, item := range items {
		if cancelled, _ := item["isCancelled"].(bool); cancelled {
			continue
		}
		events = append(events, calendar.RawEvent(item))
	}
	log.Debugf("fetched %d events from Graph calendar %s", len(events), source.SourceId)
	return events, nil
}

func (a *Adapter) calendarViewURL(calendarId string, timeMin, timeMax time.Time) string {
	path := "/me/calendarView"
	if calendarId != "" && calendarId != "primary" {
		path = "/me/calendars/" + url.PathEscape(calendarId) + "/calendarView"
	}
	params := url.Values{}
	params.Set("startDateTime", timeMin.UTC().Format(graphTimeLayout))
	params.Set("endDateTime", timeMax.UTC().Format(graphTimeLayout))
	params.Set("$orderby", "start/dateTime")
	return a.graph.baseURL + path + "?" + params.Encode()
}

// ListCalendars returns the calendars of the current user's Microsoft account.
func (a *Adapter) ListCalendars(ctx context.Context, label string) ([]CalendarItem, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.graph.httpClient(ctx, userId, label)
	if err != nil {
		return nil, err
	}
	items, err := a.graph.getAll(ctx, client, a.graph.baseURL+"/me/calendars")
	if err != nil {
		log.Errorf("unable to list Microsoft calendars: %v", err)
		return nil, err
	}
	calendars := make([]CalendarItem, 0, len(items))
	for _, item := range items {
		id, _ := item["id"].(string)
		name, _ := item["name"].(string)
		isDefault, _ := item["isDefaultCalendar"].(bool)
		calendars = append(calendars, CalendarItem{ID: id, Name: name, IsDefault: isDefault})
	}
	return calendars, nil
}

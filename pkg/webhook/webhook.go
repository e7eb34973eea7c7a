package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	log "github.com/sirupsen/logrus"
)

// maxBodySize caps how much of a webhook response is read.
const maxBodySize = 10 << 20

var errUnknownShape = errors.New("response holds no event list")

// shapeMatcher extracts the event list from one known response shape.
type shapeMatcher struct {
	name  string
	match func(body any) ([]any, bool)
}

func wrappedIn(key string) shapeMatcher {
	return shapeMatcher{
		name: key,
		match: func(body any) ([]any, bool) {
			obj, ok := body.(map[string]any)
			if !ok {
				return nil, false
			}
			list, ok := obj[key].([]any)
			return list, ok
		},
	}
}

var bareArray = shapeMatcher{
	name: "array",
	match: func(body any) ([]any, bool) {
		list, ok := body.([]any)
		return list, ok
	},
}

// shapes is tried in order, the first match wins.
var shapes = []shapeMatcher{
	wrappedIn("value"),
	wrappedIn("items"),
	wrappedIn("events"),
	bareArray,
}

// Unwrap decodes a JSON response body into raw events using the first shape
// that matches. Non-object list elements are skipped.
func Unwrap(data []byte) ([]calendar.RawEvent, error) {
	return unwrap(data, shapes)
}

// UnwrapArray decodes a JSON body that must be a bare array of events.
func UnwrapArray(data []byte) ([]calendar.RawEvent, error) {
	return unwrap(data, []shapeMatcher{bareArray})
}

func unwrap(data []byte, matchers []shapeMatcher) ([]calendar.RawEvent, error) {
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for _, shape := range matchers {
		list, ok := shape.match(body)
		if !ok {
			continue
		}
		log.Tracef("response matched %s shape with %d entries", shape.name, len(list))
		events := make([]calendar.RawEvent, 0, len(list))
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				events = append(events, calendar.RawEvent(obj))
			}
		}
		return events, nil
	}
	return nil, errUnknownShape
}

// WithWindow appends timeMin and timeMax to rawUrl, joining with "&" when the
// URL already carries a query and "?" otherwise.
func WithWindow(rawUrl string, timeMin, timeMax time.Time) string {
	sep := "?"
	if strings.Contains(rawUrl, "?") {
		sep = "&"
	}
	params := url.Values{}
	params.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	params.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	return rawUrl + sep + params.Encode()
}

// Redact strips query and credentials from a URL so it can be logged.
func Redact(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// Fetch GETs rawUrl for the window and returns the body of a 2xx response.
func Fetch(ctx context.Context, client *http.Client, sourceId, rawUrl string, timeMin, timeMax time.Time) ([]byte, error) {
	target := WithWindow(rawUrl, timeMin, timeMax)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &calendar.SourceFetchError{SourceId: sourceId, URL: Redact(rawUrl), Err: err}
	}
	req.Header.Set("Accept", "application/json, text/calendar;q=0.9, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &calendar.SourceFetchError{SourceId: sourceId, URL: Redact(rawUrl), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &calendar.SourceFetchError{SourceId: sourceId, URL: Redact(rawUrl), StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &calendar.SourceFetchError{SourceId: sourceId, URL: Redact(rawUrl), StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// Adapter fetches url sources and o365 sources backed by a Power Automate flow.
type Adapter struct {
	client *http.Client
}

func NewAdapter(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client}
}

// TargetURL is the URL a source is fetched from: ConnectionData when it holds
// a URL, SourceId otherwise.
func TargetURL(source calendar_source.CalendarSource) string {
	if strings.HasPrefix(source.ConnectionData, "http://") || strings.HasPrefix(source.ConnectionData, "https://") {
		return source.ConnectionData
	}
	return source.SourceId
}

func (a *Adapter) FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	target := TargetURL(source)
	data, err := Fetch(ctx, a.client, source.Id, target, timeMin, timeMax)
	if err != nil {
		log.Warnf("webhook source %s failed: %v", source.Id, err)
		return nil, err
	}
	events, err := Unwrap(data)
	if err != nil {
		fetchErr := &calendar.SourceFetchError{SourceId: source.Id, URL: Redact(target), StatusCode: http.StatusOK, Err: err}
		log.Warnf("webhook source %s returned unusable body: %v", source.Id, fetchErr)
		return nil, fetchErr
	}
	log.Debugf("fetched %d events from webhook %s", len(events), Redact(target))
	return events, nil
}

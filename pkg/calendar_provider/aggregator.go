package calendar_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flohub/flohub/internal/config"
	"github.com/flohub/flohub/internal/event_bus"
	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/flohub/flohub/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidWindow = errors.New("timeMax must be after timeMin")

// legacyPowerAutomateId identifies the transient source built from a legacy
// Power Automate URL.
const legacyPowerAutomateId = "power-automate"

type SourceLister interface {
	List(ctx context.Context, userId int) ([]calendar_source.CalendarSource, error)
}

type UserProvider interface {
	GetUser(ctx context.Context, id int) (user.User, error)
}

// AggregateOptions selects which sources a request reads. The zero value reads
// the enabled registry sources, falling back to the user's legacy settings
// when none are enabled.
type AggregateOptions struct {
	// UseSources reads the registry only, without legacy fallback.
	UseSources bool
	// CalendarIds and O365Url fetch the given legacy calendars directly.
	CalendarIds []string
	O365Url     string
}

func (o AggregateOptions) isLegacyQuery() bool {
	return !o.UseSources && (len(o.CalendarIds) > 0 || o.O365Url != "")
}

type SourceError struct {
	SourceId          string `json:"sourceId"`
	Name              string `json:"name"`
	Error             string `json:"error"`
	ReconnectRequired bool   `json:"reconnectRequired,omitempty"`
}

type AggregateResult struct {
	Events       []calendar.CalendarEvent `json:"events"`
	SourceErrors []SourceError            `json:"sourceErrors"`
}

type Aggregator struct {
	sources  SourceLister
	users    UserProvider
	registry *Registry
	cache    *ResultCache
	eventBus *event_bus.EventBus
	cfg      config.Calendar
}

// NewAggregator wires the aggregator and drops a user's cached results
// whenever their sources or settings change. resultCache may be nil.
func NewAggregator(
	sources SourceLister,
	users UserProvider,
	registry *Registry,
	resultCache *ResultCache,
	eventBus *event_bus.EventBus,
	cfg config.Calendar,
) *Aggregator {
	a := &Aggregator{
		sources:  sources,
		users:    users,
		registry: registry,
		cache:    resultCache,
		eventBus: eventBus,
		cfg:      cfg,
	}
	event_bus.SubscribeTyped[event_bus.CalendarSourcesChanged](
		eventBus,
		event_bus.CalendarSourcesChangedType,
		func(e event_bus.EventT[event_bus.CalendarSourcesChanged]) error {
			log.Debugf("received calendar sources changed event: %+v", e.Data)
			return a.invalidate(e.Context(), e.Data.UserId)
		},
	)
	// legacy fallback results depend on the user's settings
	event_bus.SubscribeTyped[event_bus.UserSettingsChanged](
		eventBus,
		event_bus.UserSettingsChangedType,
		func(e event_bus.EventT[event_bus.UserSettingsChanged]) error {
			log.Debugf("received user settings changed event: %+v", e.Data)
			return a.invalidate(e.Context(), e.Data.UserId)
		},
	)
	return a
}

func (a *Aggregator) invalidate(ctx context.Context, userId int) error {
	if err := a.cache.InvalidateUser(ctx, userId); err != nil {
		log.Errorf("failed to invalidate aggregation cache for user %d: %v", userId, err)
		return err
	}
	return nil
}

// Aggregate fetches every selected source of userId concurrently and returns
// the normalized events in source order. Failures of single sources are
// reported in SourceErrors; the returned error is reserved for failures to
// determine the sources at all.
func (a *Aggregator) Aggregate(ctx context.Context, userId int, timeMin, timeMax time.Time, opts AggregateOptions) (AggregateResult, error) {
	if !timeMax.After(timeMin) {
		return AggregateResult{}, ErrInvalidWindow
	}
	key := resultKey(userId, timeMin, timeMax, opts)
	if cached, ok := a.cache.Get(ctx, key); ok {
		log.Tracef("aggregation cache hit for %s", key)
		return cached, nil
	}

	sources, err := a.selectSources(ctx, userId, opts)
	if err != nil {
		log.Errorf("failed to select calendar sources for user %d: %v", userId, err)
		return AggregateResult{}, fmt.Errorf("failed to select calendar sources: %w", err)
	}

	result := a.fetchAll(ctx, sources, timeMin, timeMax)
	log.Debugf("aggregated %d events from %d sources for user %d (%d failed)",
		len(result.Events), len(sources), userId, len(result.SourceErrors))
	if len(result.SourceErrors) == 0 {
		a.cache.Put(ctx, key, result)
	}
	return result, nil
}

func (a *Aggregator) selectSources(ctx context.Context, userId int, opts AggregateOptions) ([]calendar_source.CalendarSource, error) {
	if opts.isLegacyQuery() {
		return legacySources(userId, calendar_source.LegacySettings{
			SelectedCals:     opts.CalendarIds,
			PowerAutomateUrl: opts.O365Url,
		}), nil
	}

	all, err := a.sources.List(ctx, userId)
	if err != nil {
		return nil, err
	}
	enabled := make([]calendar_source.CalendarSource, 0, len(all))
	for _, s := range all {
		if s.IsEnabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) > 0 || opts.UseSources {
		return enabled, nil
	}

	u, err := a.users.GetUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy settings: %w", err)
	}
	if !u.Settings.HasLegacyCalendars() {
		return enabled, nil
	}
	log.Debugf("user %d has no enabled calendar sources, using legacy settings", userId)
	return legacySources(userId, calendar_source.LegacySettings{
		SelectedCals:     u.Settings.SelectedCals,
		PowerAutomateUrl: u.Settings.PowerAutomateUrl,
	}), nil
}

// legacySources builds transient sources for legacy settings. Google calendars
// keep their calendar id as source id.
func legacySources(userId int, legacy calendar_source.LegacySettings) []calendar_source.CalendarSource {
	sources := calendar_source.LegacySources(legacy, "")
	for i := range sources {
		sources[i].UserId = userId
		if sources[i].Type == calendar_source.TypeO365 {
			sources[i].Id = legacyPowerAutomateId
		} else {
			sources[i].Id = sources[i].SourceId
		}
	}
	return sources
}

type fetchOutcome struct {
	events []calendar.CalendarEvent
	err    error
}

func (a *Aggregator) fetchAll(ctx context.Context, sources []calendar_source.CalendarSource, timeMin, timeMax time.Time) AggregateResult {
	outcomes := make([]fetchOutcome, len(sources))

	var g errgroup.Group
	if a.cfg.MaxConcurrentFetches > 0 {
		g.SetLimit(a.cfg.MaxConcurrentFetches)
	}
	for i, source := range sources {
		g.Go(func() error {
			raw, err := a.fetchSource(ctx, source, timeMin, timeMax)
			if err != nil {
				outcomes[i] = fetchOutcome{err: err}
				return nil
			}
			outcomes[i] = fetchOutcome{events: normalizeSource(source, raw)}
			return nil
		})
	}
	_ = g.Wait()

	result := AggregateResult{
		Events:       make([]calendar.CalendarEvent, 0),
		SourceErrors: make([]SourceError, 0),
	}
	for i, outcome := range outcomes {
		source := sources[i]
		if outcome.err == nil {
			result.Events = append(result.Events, outcome.events...)
			continue
		}
		sourceErr := SourceError{SourceId: source.Id, Name: source.Name, Error: outcome.err.Error()}
		var authErr *calendar.AuthExpiredError
		if errors.As(outcome.err, &authErr) {
			sourceErr.ReconnectRequired = true
			a.publishReconnectRequired(ctx, source)
		}
		log.Warnf("calendar source %s (%s) failed: %v", source.Id, source.Name, outcome.err)
		result.SourceErrors = append(result.SourceErrors, sourceErr)
	}
	return result
}

func (a *Aggregator) fetchSource(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) (raw []calendar.RawEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("adapter for source %s panicked: %v", source.Id, r)
		}
	}()

	adapter := a.registry.Resolve(source)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for source type %q", source.Type)
	}
	if a.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
	}
	raw, err = adapter.FetchEvents(ctx, source, timeMin, timeMax)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func normalizeSource(source calendar_source.CalendarSource, raw []calendar.RawEvent) []calendar.CalendarEvent {
	category := source.Category()
	events := make([]calendar.CalendarEvent, 0, len(raw))
	for _, r := range raw {
		event, err := calendar.Normalize(r, source.Id)
		if err != nil {
			log.Warnf("%v", err)
			continue
		}
		event.CalendarId = source.Id
		event.CalendarName = source.Name
		event.Tags = unionTags(source.Tags, event.Tags)
		event.Source = category
		events = append(events, event)
	}
	return events
}

// unionTags returns source tags followed by event tags not already present,
// compared case-insensitively.
func unionTags(sourceTags, eventTags []string) []string {
	out := make([]string, 0, len(sourceTags)+len(eventTags))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{sourceTags, eventTags} {
		for _, tag := range list {
			key := strings.ToLower(tag)
			if tag == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return out
}

func (a *Aggregator) publishReconnectRequired(ctx context.Context, source calendar_source.CalendarSource) {
	err := a.eventBus.Publish(event_bus.NewEvent(
		ctx,
		event_bus.CalendarSourceReconnectRequiredType,
		event_bus.CalendarSourceReconnectRequired{
			UserId:   source.UserId,
			SourceId: source.Id,
			Provider: source.Provider(),
		},
	))
	if err != nil {
		log.Errorf("failed to publish reconnect required for source %s: %v", source.Id, err)
	}
}

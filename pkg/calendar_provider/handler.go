package calendar_provider

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/flohub/flohub/internal/rest"
	"github.com/flohub/flohub/internal/utils"
	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/user"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	aggregator      *Aggregator
	clock           utils.Clock
	defaultTimezone string
}

func NewHandler(aggregator *Aggregator, clock utils.Clock, defaultTimezone string) *Handler {
	return &Handler{
		aggregator:      aggregator,
		clock:           clock,
		defaultTimezone: defaultTimezone,
	}
}

// GetEvents godoc
// @Summary Get events of all calendar sources
// @Description Without parameters the enabled calendar sources are read, falling back to legacy settings.
// @Tags Calendar
// @Produce json
// @Param timeMin query string false "Window start (RFC3339), defaults to start of today"
// @Param timeMax query string false "Window end (RFC3339), defaults to start of tomorrow"
// @Param useCalendarSources query bool false "Read calendar sources only"
// @Param calendarId query string false "Comma separated legacy Google calendar ids"
// @Param o365Url query string false "Legacy Power Automate URL"
// @Success 200 {array} calendar.CalendarEvent
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/events [get]
// @Security XUserId
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	result, ok := h.aggregate(w, r, req)
	if !ok {
		return
	}
	rest.WriteJSON(w, http.StatusOK, result.Events)
}

// GetAggregate godoc
// @Summary Get events together with per-source failures
// @Tags Calendar
// @Produce json
// @Param timeMin query string false "Window start (RFC3339)"
// @Param timeMax query string false "Window end (RFC3339)"
// @Success 200 {object} AggregateResult
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/events/aggregate [get]
// @Security XUserId
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	result, ok := h.aggregate(w, r, req)
	if !ok {
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// GetUpcoming godoc
// @Summary Get today's events that have not finished yet
// @Tags Calendar
// @Produce json
// @Param timezone query string false "IANA timezone, defaults to the user's"
// @Success 200 {array} calendar.CalendarEvent
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/events/upcoming [get]
// @Security XUserId
func (h *Handler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	now := h.clock.Now()
	req.timeMin = utils.StartOfDay(now, req.loc)
	req.timeMax = req.timeMin.AddDate(0, 0, 1)

	result, ok := h.aggregate(w, r, req)
	if !ok {
		return
	}
	events, err := calendar.Upcoming(result.Events, now, req.timezone)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timezone", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, events)
}

// GetEventsByDate godoc
// @Summary Get events grouped by local date
// @Tags Calendar
// @Produce json
// @Param timeMin query string false "Window start (RFC3339)"
// @Param timeMax query string false "Window end (RFC3339)"
// @Param timezone query string false "IANA timezone, defaults to the user's"
// @Success 200 {object} map[string][]calendar.CalendarEvent
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/events/by-date [get]
// @Security XUserId
func (h *Handler) GetEventsByDate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	result, ok := h.aggregate(w, r, req)
	if !ok {
		return
	}
	events, err := calendar.FilterForWindow(result.Events, req.timeMin, req.timeMax, req.timezone)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid window", err.Error())
		return
	}
	buckets, err := calendar.BucketByDate(events, req.timezone)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timezone", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, buckets)
}

type eventsRequest struct {
	user     user.User
	timezone string
	loc      *time.Location
	timeMin  time.Time
	timeMax  time.Time
	options  AggregateOptions
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (eventsRequest, bool) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusForbidden, "User not authenticated", "")
		return eventsRequest{}, false
	}
	query := r.URL.Query()

	req := eventsRequest{user: currentUser, timezone: query.Get("timezone")}
	if req.timezone == "" {
		req.timezone = currentUser.Settings.Timezone
	}
	if req.timezone == "" {
		req.timezone = h.defaultTimezone
	}
	req.loc, err = utils.LoadLocation(req.timezone)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timezone", err.Error())
		return eventsRequest{}, false
	}

	today := utils.StartOfDay(h.clock.Now(), req.loc)
	if req.timeMin, err = parseTimeParam(query.Get("timeMin"), today); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timeMin format", "'timeMin' must be in RFC3339 format")
		return eventsRequest{}, false
	}
	if req.timeMax, err = parseTimeParam(query.Get("timeMax"), req.timeMin.AddDate(0, 0, 1)); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timeMax format", "'timeMax' must be in RFC3339 format")
		return eventsRequest{}, false
	}

	req.options = AggregateOptions{
		UseSources: strings.EqualFold(query.Get("useCalendarSources"), "true"),
		O365Url:    strings.TrimSpace(query.Get("o365Url")),
	}
	for _, id := range strings.Split(query.Get("calendarId"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.options.CalendarIds = append(req.options.CalendarIds, id)
		}
	}
	return req, true
}

func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request, req eventsRequest) (AggregateResult, bool) {
	result, err := h.aggregator.Aggregate(r.Context(), req.user.Id, req.timeMin, req.timeMax, req.options)
	if err != nil {
		if errors.Is(err, ErrInvalidWindow) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid window", err.Error())
			return AggregateResult{}, false
		}
		log.Errorf("failed to aggregate calendar events: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to load calendar events", err.Error())
		return AggregateResult{}, false
	}
	return result, true
}

func parseTimeParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, value)
}

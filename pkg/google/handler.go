package google

import (
	"errors"
	"net/http"

	"github.com/flohub/flohub/internal/rest"
	log "github.com/sirupsen/logrus"
)

type CalendarItemDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

type Handler struct {
	service Service
}

func NewHandler(s Service) *Handler {
	return &Handler{s}
}

// ListCalendars godoc
// @Summary List calendars of a connected Google account
// @Tags Integrations
// @Produce json
// @Param label query string false "Account label"
// @Success 200 {array} CalendarItemDto
// @Failure 403 {object} rest.ErrorResponse "Google account not connected"
// @Router /api/integrations/google/calendars [get]
// @Security XUserId
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.service.ListCalendars(r.Context(), r.URL.Query().Get("label"))
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			rest.WriteError(w, http.StatusForbidden, "Google account not connected", "")
			return
		}
		log.Errorf("failed to list Google calendars: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list Google calendars", err.Error())
		return
	}

	calendarItems := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		calendarItems = append(calendarItems, toCalendarItemDto(c))
	}
	rest.WriteJSON(w, http.StatusOK, calendarItems)
}

func toCalendarItemDto(ci CalendarItem) CalendarItemDto {
	return CalendarItemDto{
		Id:      ci.ID,
		Summary: ci.Summary,
		Primary: ci.Primary,
	}
}

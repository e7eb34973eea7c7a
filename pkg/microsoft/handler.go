package microsoft

import (
	"errors"
	"net/http"

	"github.com/flohub/flohub/internal/rest"
	log "github.com/sirupsen/logrus"
)

type CalendarItemDto struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

type Handler struct {
	adapter *Adapter
}

func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// ListCalendars godoc
// @Summary List calendars of a connected Microsoft account
// @Tags Integrations
// @Produce json
// @Param label query string false "Account label"
// @Success 200 {array} CalendarItemDto
// @Failure 403 {object} rest.ErrorResponse "Microsoft account not connected"
// @Router /api/integrations/microsoft/calendars [get]
// @Security XUserId
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.adapter.ListCalendars(r.Context(), r.URL.Query().Get("label"))
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			rest.WriteError(w, http.StatusForbidden, "Microsoft account not connected", "")
			return
		}
		log.Errorf("failed to list Microsoft calendars: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list Microsoft calendars", err.Error())
		return
	}
	dtos := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		dtos = append(dtos, CalendarItemDto{Id: c.ID, Name: c.Name, IsDefault: c.IsDefault})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

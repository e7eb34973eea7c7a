package calendar_source

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flohub/flohub/internal/rest"
	"github.com/flohub/flohub/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type CalendarSourceDTO struct {
	Id             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	SourceId       string   `json:"sourceId"`
	ConnectionData string   `json:"connectionData,omitempty"`
	Tags           []string `json:"tags"`
	IsEnabled      bool     `json:"isEnabled"`
	Status         string   `json:"status"`
}

type SourceInputDTO struct {
	Name           *string  `json:"name"`
	Type           *string  `json:"type"`
	SourceId       *string  `json:"sourceId"`
	ConnectionData *string  `json:"connectionData"`
	Tags           []string `json:"tags"`
	IsEnabled      *bool    `json:"isEnabled"`
}

type LegacySettingsDTO struct {
	SelectedCals     []string `json:"selectedCals"`
	PowerAutomateUrl string   `json:"powerAutomateUrl"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// List godoc
// @Summary List calendar sources
// @Tags CalendarSource
// @Produce json
// @Success 200 {array} CalendarSourceDTO
// @Router /api/calendar/sources [get]
// @Security XUserId
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTOs(sources))
}

// Get godoc
// @Summary Get a calendar source
// @Tags CalendarSource
// @Produce json
// @Param id path string true "Source ID"
// @Success 200 {object} CalendarSourceDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/calendar/sources/{id} [get]
// @Security XUserId
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	source, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(source))
}

// Create godoc
// @Summary Register a calendar source
// @Tags CalendarSource
// @Accept json
// @Produce json
// @Param source body SourceInputDTO true "Calendar source"
// @Success 201 {object} CalendarSourceDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/sources [post]
// @Security XUserId
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating calendar source")
	var input SourceInputDTO
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	source, err := h.service.Create(r.Context(), input.toInput())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(source))
}

// Update godoc
// @Summary Partially update a calendar source
// @Tags CalendarSource
// @Accept json
// @Produce json
// @Param id path string true "Source ID"
// @Param source body SourceInputDTO true "Fields to change"
// @Success 200 {object} CalendarSourceDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/calendar/sources/{id} [put]
// @Security XUserId
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var input SourceInputDTO
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	source, err := h.service.Update(r.Context(), mux.Vars(r)["id"], input.toInput())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(source))
}

// Delete godoc
// @Summary Remove a calendar source
// @Tags CalendarSource
// @Param id path string true "Source ID"
// @Success 204
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/calendar/sources/{id} [delete]
// @Security XUserId
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !deleted {
		rest.WriteError(w, http.StatusNotFound, "Calendar source not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MigrateLegacy godoc
// @Summary Convert legacy calendar settings into sources
// @Description Uses the request body when given, the stored user settings otherwise.
// Does nothing when the user already has sources.
// @Tags CalendarSource
// @Accept json
// @Produce json
// @Param settings body LegacySettingsDTO false "Legacy settings"
// @Success 200 {array} CalendarSourceDTO
// @Router /api/calendar/sources/migrate-legacy [post]
// @Security XUserId
func (h *Handler) MigrateLegacy(w http.ResponseWriter, r *http.Request) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}
	legacy := LegacySettings{
		SelectedCals:     currentUser.Settings.SelectedCals,
		PowerAutomateUrl: currentUser.Settings.PowerAutomateUrl,
	}
	if r.ContentLength > 0 {
		var input LegacySettingsDTO
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
			return
		}
		legacy = LegacySettings{SelectedCals: input.SelectedCals, PowerAutomateUrl: input.PowerAutomateUrl}
	}

	sources, err := h.service.MigrateLegacy(r.Context(), legacy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTOs(sources))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		rest.WriteError(w, http.StatusBadRequest, "Invalid calendar source", validationErr.Error())
	case errors.Is(err, ErrSourceNotFound):
		rest.WriteError(w, http.StatusNotFound, "Calendar source not found", "")
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
	default:
		log.Errorf("calendar source request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle calendar sources", err.Error())
	}
}

func (in SourceInputDTO) toInput() SourceInput {
	input := SourceInput{
		Name:           in.Name,
		SourceId:       in.SourceId,
		ConnectionData: in.ConnectionData,
		Tags:           in.Tags,
		IsEnabled:      in.IsEnabled,
	}
	if in.Type != nil {
		t := SourceType(*in.Type)
		input.Type = &t
	}
	return input
}

func toDTO(s CalendarSource) CalendarSourceDTO {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return CalendarSourceDTO{
		Id:             s.Id,
		Name:           s.Name,
		Type:           string(s.Type),
		SourceId:       s.SourceId,
		ConnectionData: s.ConnectionData,
		Tags:           tags,
		IsEnabled:      s.IsEnabled,
		Status:         string(s.Status),
	}
}

func toDTOs(sources []CalendarSource) []CalendarSourceDTO {
	out := make([]CalendarSourceDTO, 0, len(sources))
	for _, s := range sources {
		out = append(out, toDTO(s))
	}
	return out
}

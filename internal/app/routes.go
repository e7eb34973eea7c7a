package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Calendar events
	r.HandleFunc("/api/calendar/events", deps.CalendarHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/calendar/events/aggregate", deps.CalendarHandler.GetAggregate).Methods("GET")
	r.HandleFunc("/api/calendar/events/upcoming", deps.CalendarHandler.GetUpcoming).Methods("GET")
	r.HandleFunc("/api/calendar/events/by-date", deps.CalendarHandler.GetEventsByDate).Methods("GET")

	// Calendar sources
	r.HandleFunc("/api/calendar/sources", deps.CalendarSourceHandler.List).Methods("GET")
	r.HandleFunc("/api/calendar/sources", deps.CalendarSourceHandler.Create).Methods("POST")
	r.HandleFunc("/api/calendar/sources/migrate-legacy", deps.CalendarSourceHandler.MigrateLegacy).Methods("POST")
	r.HandleFunc("/api/calendar/sources/{id}", deps.CalendarSourceHandler.Get).Methods("GET")
	r.HandleFunc("/api/calendar/sources/{id}", deps.CalendarSourceHandler.Update).Methods("PUT")
	r.HandleFunc("/api/calendar/sources/{id}", deps.CalendarSourceHandler.Delete).Methods("DELETE")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user/current", deps.UserHandler.UpdateUser).Methods("PUT")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")

	// Microsoft integration
	r.HandleFunc("/api/integrations/microsoft/auth/login", deps.MicrosoftAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/microsoft/auth/logout", deps.MicrosoftAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/microsoft/auth/callback", deps.MicrosoftAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/microsoft/calendars", deps.GraphHandler.ListCalendars).Methods("GET")
}

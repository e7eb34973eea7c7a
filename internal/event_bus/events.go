package event_bus

const (
	CalendarSourcesChangedType          EventType = "calendar.sources.changed"
	CalendarSourceReconnectRequiredType EventType = "calendar.source.reconnect_required"
	OAuthAccountConnectedType           EventType = "oauth.account.connected"
	UserSettingsChangedType             EventType = "user.settings.changed"
)

// CalendarSourcesChanged is published after any registry mutation for a user.
type CalendarSourcesChanged struct {
	UserId int
}

// CalendarSourceReconnectRequired is published when a source's credentials
// could not be refreshed.
type CalendarSourceReconnectRequired struct {
	UserId   int
	SourceId string
	Provider string
}

// OAuthAccountConnected is published after a successful OAuth callback.
type OAuthAccountConnected struct {
	UserId   int
	Provider string
	Label    string
}

// UserSettingsChanged is published when a user's timezone or legacy calendar
// settings change.
type UserSettingsChanged struct {
	UserId int
}

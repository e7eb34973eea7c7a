package user

import "slices"

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	Settings    Settings
}

type Settings struct {
	Timezone string
	// SelectedCals and PowerAutomateUrl are the pre-registry calendar settings.
	// They are read when a user has no enabled calendar sources and are the
	// input of the legacy migration.
	SelectedCals     []string
	PowerAutomateUrl string
}

// HasLegacyCalendars reports whether any pre-registry calendar setting is present.
func (s Settings) HasLegacyCalendars() bool {
	return len(s.SelectedCals) > 0 || s.PowerAutomateUrl != ""
}

func (s Settings) Equal(other Settings) bool {
	return s.Timezone == other.Timezone &&
		s.PowerAutomateUrl == other.PowerAutomateUrl &&
		slices.Equal(s.SelectedCals, other.SelectedCals)
}

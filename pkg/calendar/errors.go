package calendar

import "fmt"

// AuthExpiredError means a source's OAuth credentials are missing or could not
// be refreshed. The user has to reconnect the account.
type AuthExpiredError struct {
	SourceId string
	Provider string
	Err      error
}

func (e *AuthExpiredError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s authorization expired for source %s", e.Provider, e.SourceId)
	}
	return fmt.Sprintf("%s authorization expired for source %s: %v", e.Provider, e.SourceId, e.Err)
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Err
}

// SourceFetchError is a transport, status or payload failure of one source.
type SourceFetchError struct {
	SourceId   string
	URL        string
	StatusCode int
	Err        error
}

func (e *SourceFetchError) Error() string {
	msg := fmt.Sprintf("fetching source %s", e.SourceId)
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// NormalizationWarning marks a raw event that was dropped during normalization.
type NormalizationWarning struct {
	SourceId string
	EventId  string
	Reason   string
}

func (e *NormalizationWarning) Error() string {
	return fmt.Sprintf("dropped event %q from source %s: %s", e.EventId, e.SourceId, e.Reason)
}

package calendar_provider

import (
	"context"
	"sync"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
)

// AdapterStub returns canned events or errors keyed by source id.
type AdapterStub struct {
	mu     sync.Mutex
	events map[string][]calendar.RawEvent
	errors map[string]error
	panics map[string]bool
	calls  []string
	delay  time.Duration
}

func NewAdapterStub() *AdapterStub {
	return &AdapterStub{
		events: make(map[string][]calendar.RawEvent),
		errors: make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (s *AdapterStub) WithEvents(sourceId string, events ...calendar.RawEvent) *AdapterStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[sourceId] = events
	return s
}

func (s *AdapterStub) WithError(sourceId string, err error) *AdapterStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[sourceId] = err
	return s
}

func (s *AdapterStub) WithPanic(sourceId string) *AdapterStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics[sourceId] = true
	return s
}

// WithDelay makes every call wait for d or until the context is done.
func (s *AdapterStub) WithDelay(d time.Duration) *AdapterStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

func (s *AdapterStub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *AdapterStub) FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error) {
	s.mu.Lock()
	s.calls = append(s.calls, source.Id)
	events, err, panics, delay := s.events[source.Id], s.errors[source.Id], s.panics[source.Id], s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &calendar.SourceFetchError{SourceId: source.Id, Err: ctx.Err()}
		}
	}
	if panics {
		panic("adapter stub panic for " + source.Id)
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

package calendar_provider

import (
	"context"
	"sync"
	"time"

	"github.com/flohub/flohub/pkg/calendar"
	"github.com/flohub/flohub/pkg/calendar_source"
)

// Adapter fetches the raw events of one source overlapping [timeMin, timeMax].
// It returns either events or an error, never both.
type Adapter interface {
	FetchEvents(ctx context.Context, source calendar_source.CalendarSource, timeMin, timeMax time.Time) ([]calendar.RawEvent, error)
}

type adapterKey struct {
	sourceType calendar_source.SourceType
	oauth      bool
}

// Registry selects the adapter for a source by type. OAuth-backed sources are
// looked up first among OAuth adapters, then among plain ones, then the
// fallback is used.
type Registry struct {
	mu       sync.RWMutex
	adapters map[adapterKey]Adapter
	fallback Adapter
}

func NewRegistry(fallback Adapter) *Registry {
	return &Registry{
		adapters: make(map[adapterKey]Adapter),
		fallback: fallback,
	}
}

func (r *Registry) Register(sourceType calendar_source.SourceType, adapter Adapter) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapterKey{sourceType: sourceType}] = adapter
	return r
}

// RegisterOAuth registers the adapter used for sources of sourceType whose
// connection data carries an OAuth account marker.
func (r *Registry) RegisterOAuth(sourceType calendar_source.SourceType, adapter Adapter) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapterKey{sourceType: sourceType, oauth: true}] = adapter
	return r
}

func (r *Registry) Resolve(source calendar_source.CalendarSource) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if source.IsOAuth() {
		if a, ok := r.adapters[adapterKey{sourceType: source.Type, oauth: true}]; ok {
			return a
		}
	}
	if a, ok := r.adapters[adapterKey{sourceType: source.Type}]; ok {
		return a
	}
	return r.fallback
}

package calendar_source

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu      sync.Mutex
	sources []CalendarSource
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{}
}

func (s *RepositoryStub) List(ctx context.Context, userId int) ([]CalendarSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CalendarSource, 0)
	for _, source := range s.sources {
		if source.UserId == userId {
			out = append(out, clone(source))
		}
	}
	return out, nil
}

func (s *RepositoryStub) Get(ctx context.Context, userId int, id string) (CalendarSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(userId, id)
	if i < 0 {
		return CalendarSource{}, ErrSourceNotFound
	}
	return clone(s.sources[i]), nil
}

func (s *RepositoryStub) CreateMany(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(userId, sources), nil
}

func (s *RepositoryStub) CreateIfEmpty(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make([]CalendarSource, 0)
	for _, source := range s.sources {
		if source.UserId == userId {
			existing = append(existing, clone(source))
		}
	}
	if len(existing) > 0 {
		return existing, false, nil
	}
	return s.insert(userId, sources), true, nil
}

func (s *RepositoryStub) insert(userId int, sources []CalendarSource) []CalendarSource {
	created := make([]CalendarSource, 0, len(sources))
	for _, source := range sources {
		source.Id = uuid.NewString()
		source.UserId = userId
		if source.Tags == nil {
			source.Tags = []string{}
		}
		if source.Status == "" {
			source.Status = StatusOk
		}
		s.sources = append(s.sources, clone(source))
		created = append(created, source)
	}
	return created
}

func (s *RepositoryStub) Update(ctx context.Context, userId int, source CalendarSource) (CalendarSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(userId, source.Id)
	if i < 0 {
		return CalendarSource{}, ErrSourceNotFound
	}
	source.UserId = userId
	s.sources[i] = clone(source)
	return source, nil
}

func (s *RepositoryStub) Delete(ctx context.Context, userId int, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(userId, id)
	if i < 0 {
		return false, nil
	}
	s.sources = slices.Delete(s.sources, i, i+1)
	return true, nil
}

func (s *RepositoryStub) SetStatus(ctx context.Context, userId int, id string, status SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(userId, id)
	if i < 0 {
		return ErrSourceNotFound
	}
	s.sources[i].Status = status
	return nil
}

func (s *RepositoryStub) index(userId int, id string) int {
	return slices.IndexFunc(s.sources, func(src CalendarSource) bool {
		return src.UserId == userId && src.Id == id
	})
}

func clone(source CalendarSource) CalendarSource {
	source.Tags = slices.Clone(source.Tags)
	return source
}

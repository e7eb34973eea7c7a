package calendar_source

import (
	"context"
	"errors"
	"fmt"

	"github.com/flohub/flohub/internal/event_bus"
	"github.com/flohub/flohub/pkg/user"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	List(ctx context.Context) ([]CalendarSource, error)
	ListEnabled(ctx context.Context) ([]CalendarSource, error)
	Get(ctx context.Context, id string) (CalendarSource, error)
	Create(ctx context.Context, in SourceInput) (CalendarSource, error)
	Update(ctx context.Context, id string, in SourceInput) (CalendarSource, error)
	Delete(ctx context.Context, id string) (bool, error)
	// MigrateLegacy converts legacy calendar settings into sources when the
	// user has none yet and returns the resulting registry.
	MigrateLegacy(ctx context.Context, legacy LegacySettings) ([]CalendarSource, error)
	MarkReconnectRequired(ctx context.Context, userId int, sourceId string) error
}

// PrimaryCalendarResolver returns the id of the calendar the provider flags as
// primary for the current user.
type PrimaryCalendarResolver interface {
	PrimaryCalendarId(ctx context.Context) (string, error)
}

type ServiceImpl struct {
	repo     Repository
	eventBus *event_bus.EventBus
	primary  PrimaryCalendarResolver
}

// NewService builds the registry service. primary may be nil, in which case
// only the literal "primary" calendar id is tagged personal on migration.
func NewService(repo Repository, eventBus *event_bus.EventBus, primary PrimaryCalendarResolver) Service {
	service := &ServiceImpl{repo: repo, eventBus: eventBus, primary: primary}
	event_bus.SubscribeTyped[event_bus.CalendarSourceReconnectRequired](
		eventBus,
		event_bus.CalendarSourceReconnectRequiredType,
		func(e event_bus.EventT[event_bus.CalendarSourceReconnectRequired]) error {
			log.Debugf("received reconnect required event: %+v", e.Data)
			err := service.MarkReconnectRequired(e.Context(), e.Data.UserId, e.Data.SourceId)
			if err != nil && !errors.Is(err, ErrSourceNotFound) {
				log.Errorf("failed to mark source %s for reconnect: %v", e.Data.SourceId, err)
				return err
			}
			return nil
		},
	)
	event_bus.SubscribeTyped[event_bus.OAuthAccountConnected](
		eventBus,
		event_bus.OAuthAccountConnectedType,
		func(e event_bus.EventT[event_bus.OAuthAccountConnected]) error {
			log.Debugf("received oauth account connected event: %+v", e.Data)
			count, err := service.handleAccountConnected(e.Context(), e.Data)
			if err != nil {
				log.Errorf("failed to reset source status after reconnect: %v", err)
				return err
			}
			log.Debugf("reset status of %d calendar sources", count)
			return nil
		},
	)
	return service
}

// List returns the current user's registry. An empty registry of a user with
// legacy calendar settings is migrated first.
func (s *ServiceImpl) List(ctx context.Context) ([]CalendarSource, error) {
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	sources, err := s.repo.List(ctx, currentUser.Id)
	if err != nil {
		return nil, err
	}
	if len(sources) > 0 || !currentUser.Settings.HasLegacyCalendars() {
		return sources, nil
	}
	log.Debugf("user %d has no calendar sources yet, migrating legacy settings", currentUser.Id)
	return s.MigrateLegacy(ctx, LegacySettings{
		SelectedCals:     currentUser.Settings.SelectedCals,
		PowerAutomateUrl: currentUser.Settings.PowerAutomateUrl,
	})
}

func (s *ServiceImpl) ListEnabled(ctx context.Context) ([]CalendarSource, error) {
	sources, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]CalendarSource, 0, len(sources))
	for _, source := range sources {
		if source.IsEnabled {
			enabled = append(enabled, source)
		}
	}
	return enabled, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id string) (CalendarSource, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CalendarSource{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.Get(ctx, userId, id)
}

func (s *ServiceImpl) Create(ctx context.Context, in SourceInput) (CalendarSource, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CalendarSource{}, fmt.Errorf("failed to get current user: %w", err)
	}

	source := CalendarSource{IsEnabled: true, Status: StatusOk, Tags: []string{}}
	in.applyTo(&source)
	if err := validate(source); err != nil {
		return CalendarSource{}, err
	}

	created, err := s.repo.CreateMany(ctx, userId, []CalendarSource{source})
	if err != nil {
		return CalendarSource{}, err
	}
	s.publishChanged(ctx, userId)
	return created[0], nil
}

func (s *ServiceImpl) Update(ctx context.Context, id string, in SourceInput) (CalendarSource, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CalendarSource{}, fmt.Errorf("failed to get current user: %w", err)
	}

	source, err := s.repo.Get(ctx, userId, id)
	if err != nil {
		return CalendarSource{}, err
	}
	in.applyTo(&source)
	if err := validate(source); err != nil {
		return CalendarSource{}, err
	}
	source.Status = StatusOk

	updated, err := s.repo.Update(ctx, userId, source)
	if err != nil {
		return CalendarSource{}, err
	}
	s.publishChanged(ctx, userId)
	return updated, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id string) (bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get current user: %w", err)
	}
	deleted, err := s.repo.Delete(ctx, userId, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.publishChanged(ctx, userId)
	}
	return deleted, nil
}

func (s *ServiceImpl) MigrateLegacy(ctx context.Context, legacy LegacySettings) ([]CalendarSource, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	existing, err := s.repo.List(ctx, userId)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		log.Debugf("user %d already has %d calendar sources, skipping legacy migration", userId, len(existing))
		return existing, nil
	}

	sources := LegacySources(legacy, s.primaryCalendarId(ctx, legacy))
	if len(sources) == 0 {
		return existing, nil
	}
	// the registry may have been filled while the primary calendar was resolved
	registry, created, err := s.repo.CreateIfEmpty(ctx, userId, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate legacy calendars: %w", err)
	}
	if !created {
		log.Debugf("calendar sources of user %d were created concurrently, skipping legacy migration", userId)
		return registry, nil
	}
	log.Infof("migrated %d legacy calendars for user %d", len(registry), userId)
	s.publishChanged(ctx, userId)
	return registry, nil
}

func (s *ServiceImpl) primaryCalendarId(ctx context.Context, legacy LegacySettings) string {
	if s.primary == nil || len(legacy.SelectedCals) == 0 {
		return ""
	}
	id, err := s.primary.PrimaryCalendarId(ctx)
	if err != nil {
		log.Warnf("unable to resolve primary calendar, tagging only the literal primary id: %v", err)
		return ""
	}
	return id
}

func (s *ServiceImpl) MarkReconnectRequired(ctx context.Context, userId int, sourceId string) error {
	if err := s.repo.SetStatus(ctx, userId, sourceId, StatusReconnectRequired); err != nil {
		return err
	}
	log.Infof("calendar source %s of user %d requires reconnect", sourceId, userId)
	return nil
}

func (s *ServiceImpl) handleAccountConnected(ctx context.Context, account event_bus.OAuthAccountConnected) (int, error) {
	sources, err := s.repo.List(ctx, account.UserId)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, source := range sources {
		if source.Status != StatusReconnectRequired || !source.IsOAuth() {
			continue
		}
		if source.Provider() != account.Provider || source.OAuthLabel() != account.Label {
			continue
		}
		if err := s.repo.SetStatus(ctx, account.UserId, source.Id, StatusOk); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *ServiceImpl) publishChanged(ctx context.Context, userId int) {
	err := s.eventBus.Publish(event_bus.NewEvent(
		ctx,
		event_bus.CalendarSourcesChangedType,
		event_bus.CalendarSourcesChanged{UserId: userId},
	))
	if err != nil {
		// the change is stored; subscribers only hold derived state
		log.Errorf("failed to publish calendar sources change for user %d: %v", userId, err)
	}
}

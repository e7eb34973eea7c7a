package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/flohub/flohub/pkg/oauth"
	"github.com/flohub/flohub/pkg/user"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrUnauthenticated = errors.New("user is unauthenticated, authentication is required")

type CalendarItem struct {
	ID      string
	Summary string
	Primary bool
}

// ClientProvider hands out HTTP clients authorized for a user's Google account.
type ClientProvider interface {
	Client(ctx context.Context, userId int, label string) (*http.Client, error)
}

type Service interface {
	ListCalendars(ctx context.Context, label string) ([]CalendarItem, error)
	PrimaryCalendarId(ctx context.Context) (string, error)
}

type ServiceImpl struct {
	auth ClientProvider
	// opts are appended to every calendar service, tests point them at a fake API.
	opts []option.ClientOption
}

func NewService(auth ClientProvider, opts ...option.ClientOption) *ServiceImpl {
	return &ServiceImpl{
		auth: auth,
		opts: opts,
	}
}

func (s *ServiceImpl) ListCalendars(ctx context.Context, label string) ([]CalendarItem, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	googleService, err := s.prepareGoogleService(ctx, userId, label)
	if err != nil {
		return nil, err
	}
	var googleCalendars []CalendarItem
	err = googleService.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, cal := range page.Items {
			googleCalendars = append(googleCalendars, CalendarItem{
				ID:      cal.Id,
				Summary: cal.Summary,
				Primary: cal.Primary,
			})
		}
		return nil
	})
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %w", err)
		log.Error(err)
		return nil, err
	}
	return googleCalendars, nil
}

// PrimaryCalendarId returns the id of the calendar Google flags as primary on
// the default account of the current user.
func (s *ServiceImpl) PrimaryCalendarId(ctx context.Context) (string, error) {
	calendars, err := s.ListCalendars(ctx, oauth.DefaultLabel)
	if err != nil {
		return "", err
	}
	for _, cal := range calendars {
		if cal.Primary {
			return cal.ID, nil
		}
	}
	return "", fmt.Errorf("no primary calendar among %d calendars", len(calendars))
}

func (s *ServiceImpl) prepareGoogleService(ctx context.Context, userId int, label string) (*calendar.Service, error) {
	client, err := s.auth.Client(ctx, userId, label)
	if err != nil {
		if errors.Is(err, oauth.ErrReconnectRequired) {
			log.Debugf("user %d is unauthenticated in Google (%s): %v", userId, label, err)
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		err := fmt.Errorf("unable to retrieve Google auth client: %w", err)
		log.Error(err)
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to retrieve Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}

	return service, nil
}

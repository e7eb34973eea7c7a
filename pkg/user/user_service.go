package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flohub/flohub/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

var ErrUserDataInvalid = errors.New("invalid user data")

type Service interface {
	GetCurrentUser(ctx context.Context) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetUserByUid(ctx context.Context, uid string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
}

type UserServiceImpl struct {
	repo     Repo
	eventBus *event_bus.EventBus
}

func NewUserService(repo Repo, eventBus *event_bus.EventBus) *UserServiceImpl {
	return &UserServiceImpl{repo: repo, eventBus: eventBus}
}

func (u *UserServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return u.repo.GetUser(ctx, userId)
}

func (u *UserServiceImpl) GetUser(ctx context.Context, id int) (User, error) {
	return u.repo.GetUser(ctx, id)
}

func (u *UserServiceImpl) GetUserByUid(ctx context.Context, uid string) (User, error) {
	return u.repo.GetUserByUid(ctx, uid)
}

func (u *UserServiceImpl) CreateUser(ctx context.Context, user User) (User, error) {
	if err := validate(&user); err != nil {
		return User{}, err
	}
	userId, err := u.repo.CreateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	user.Id = userId
	return user, nil
}

func (u *UserServiceImpl) UpdateUser(ctx context.Context, user User) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := validate(&user); err != nil {
		return User{}, err
	}
	previous, err := u.repo.GetUser(ctx, userId)
	if err != nil {
		return User{}, err
	}
	updated, err := u.repo.UpdateUser(ctx, userId, user)
	if err != nil {
		return User{}, err
	}
	if !previous.Settings.Equal(updated.Settings) {
		u.publishSettingsChanged(ctx, userId)
	}
	return updated, nil
}

func (u *UserServiceImpl) publishSettingsChanged(ctx context.Context, userId int) {
	err := u.eventBus.Publish(event_bus.NewEvent(
		ctx,
		event_bus.UserSettingsChangedType,
		event_bus.UserSettingsChanged{UserId: userId},
	))
	if err != nil {
		log.Errorf("failed to publish settings change for user %d: %v", userId, err)
	}
}

func validate(user *User) error {
	if user.Settings.Timezone == "" {
		user.Settings.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(user.Settings.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrUserDataInvalid, user.Settings.Timezone)
	}
	cals := make([]string, 0, len(user.Settings.SelectedCals))
	for _, c := range user.Settings.SelectedCals {
		if c = strings.TrimSpace(c); c != "" {
			cals = append(cals, c)
		}
	}
	user.Settings.SelectedCals = cals
	user.Settings.PowerAutomateUrl = strings.TrimSpace(user.Settings.PowerAutomateUrl)
	return nil
}

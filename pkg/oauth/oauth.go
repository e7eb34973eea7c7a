package oauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

type Provider string

const (
	Google    Provider = "google"
	Microsoft Provider = "microsoft"
)

const DefaultLabel = "default"

var (
	ErrTokenNotFound = errors.New("oauth token not found")
	ErrStateNotFound = errors.New("oauth state not found")
	// ErrReconnectRequired means the stored credentials are missing or were
	// rejected by the provider.
	ErrReconnectRequired = errors.New("oauth account must be reconnected")
)

// State is the pending login identified by the nonce sent through the
// provider's consent screen.
type State struct {
	Nonce     string
	UserId    int
	Provider  Provider
	Label     string
	CreatedAt time.Time
}

type TokenStore interface {
	GetToken(ctx context.Context, userId int, provider Provider, label string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userId int, provider Provider, label string, token *oauth2.Token) error
	DeleteToken(ctx context.Context, userId int, provider Provider, label string) (bool, error)
	SaveState(ctx context.Context, state State) error
	// ConsumeState returns and removes the state of nonce.
	ConsumeState(ctx context.Context, nonce string) (State, error)
}

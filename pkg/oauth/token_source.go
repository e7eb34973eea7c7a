package oauth

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// persistingTokenSource writes every token whose access token differs from the
// last one seen back to the store before handing it out.
type persistingTokenSource struct {
	ctx      context.Context
	source   oauth2.TokenSource
	store    TokenStore
	userId   int
	provider Provider
	label    string

	mu        sync.Mutex
	lastToken *oauth2.Token
}

func newPersistingTokenSource(ctx context.Context, config *oauth2.Config, store TokenStore, userId int, provider Provider, label string, token *oauth2.Token) *persistingTokenSource {
	return &persistingTokenSource{
		ctx:       ctx,
		source:    config.TokenSource(ctx, token),
		store:     store,
		userId:    userId,
		provider:  provider,
		label:     label,
		lastToken: token,
	}
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.source.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastToken == nil || p.lastToken.AccessToken != token.AccessToken {
		log.Debugf("persisting refreshed %s token for user %d (%s)", p.provider, p.userId, p.label)
		if err := p.store.SaveToken(p.ctx, p.userId, p.provider, p.label, token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		p.lastToken = token
	}
	return token, nil
}

package oauth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

type TokenStoreStub struct {
	mu     sync.Mutex
	tokens map[string]oauth2.Token
	states map[string]State
	// Saves counts SaveToken calls.
	Saves int
}

func NewTokenStoreStub() *TokenStoreStub {
	return &TokenStoreStub{tokens: map[string]oauth2.Token{}, states: map[string]State{}}
}

func tokenKey(userId int, provider Provider, label string) string {
	return fmt.Sprintf("%d/%s/%s", userId, provider, label)
}

func (s *TokenStoreStub) GetToken(ctx context.Context, userId int, provider Provider, label string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenKey(userId, provider, label)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *TokenStoreStub) SaveToken(ctx context.Context, userId int, provider Provider, label string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey(userId, provider, label)] = *token
	s.Saves++
	return nil
}

func (s *TokenStoreStub) DeleteToken(ctx context.Context, userId int, provider Provider, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey(userId, provider, label)
	_, ok := s.tokens[key]
	delete(s.tokens, key)
	return ok, nil
}

func (s *TokenStoreStub) SaveState(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Nonce] = state
	return nil
}

func (s *TokenStoreStub) ConsumeState(ctx context.Context, nonce string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[nonce]
	if !ok {
		return State{}, ErrStateNotFound
	}
	delete(s.states, nonce)
	return state, nil
}

package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetToken(ctx context.Context, userId int, provider Provider, label string) (*oauth2.Token, error) {
	query := `SELECT access_token, refresh_token, token_type, expiry FROM oauth_token
				WHERE user_id = $1 AND provider = $2 AND label = $3`
	var token oauth2.Token
	var expiry *int64
	err := r.db.QueryRow(ctx, query, userId, string(provider), label).
		Scan(&token.AccessToken, &token.RefreshToken, &token.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	} else if err != nil {
		log.Errorf("failed to read %s token for user %d: %v", provider, userId, err)
		return nil, fmt.Errorf("unable to retrieve oauth token: %w", err)
	}
	if expiry != nil {
		token.Expiry = time.Unix(*expiry, 0)
	}
	return &token, nil
}

func (r *RepositoryImpl) SaveToken(ctx context.Context, userId int, provider Provider, label string, token *oauth2.Token) error {
	query := `INSERT INTO oauth_token (user_id, provider, label, access_token, refresh_token, token_type, expiry)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id, provider, label) DO UPDATE SET
					access_token = EXCLUDED.access_token,
					refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN oauth_token.refresh_token ELSE EXCLUDED.refresh_token END,
					token_type = EXCLUDED.token_type,
					expiry = EXCLUDED.expiry`
	var expiry *int64
	if !token.Expiry.IsZero() {
		unix := token.Expiry.Unix()
		expiry = &unix
	}
	_, err := r.db.Exec(ctx, query, userId, string(provider), label,
		token.AccessToken, token.RefreshToken, token.TokenType, expiry)
	if err != nil {
		log.Errorf("failed to store %s token for user %d: %v", provider, userId, err)
		return fmt.Errorf("unable to store oauth token: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) DeleteToken(ctx context.Context, userId int, provider Provider, label string) (bool, error) {
	result, err := r.db.Exec(ctx, "DELETE FROM oauth_token WHERE user_id = $1 AND provider = $2 AND label = $3",
		userId, string(provider), label)
	if err != nil {
		return false, fmt.Errorf("unable to delete oauth token: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *RepositoryImpl) SaveState(ctx context.Context, state State) error {
	_, err := r.db.Exec(ctx, "INSERT INTO oauth_state (nonce, user_id, provider, label) VALUES ($1, $2, $3, $4)",
		state.Nonce, state.UserId, string(state.Provider), state.Label)
	if err != nil {
		return fmt.Errorf("unable to store oauth state: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) ConsumeState(ctx context.Context, nonce string) (State, error) {
	query := `DELETE FROM oauth_state WHERE nonce = $1 RETURNING nonce, user_id, provider, label, created_at`
	var state State
	var provider string
	err := r.db.QueryRow(ctx, query, nonce).Scan(&state.Nonce, &state.UserId, &provider, &state.Label, &state.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrStateNotFound
	} else if err != nil {
		return State{}, fmt.Errorf("unable to read oauth state: %w", err)
	}
	state.Provider = Provider(provider)
	return state, nil
}

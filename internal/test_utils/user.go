package test_utils

import (
	"context"

	"github.com/flohub/flohub/pkg/user"
)

// TestUser is the user injected into request contexts by package tests.
var TestUser = user.User{
	Id:          123,
	Uid:         "test-user-uid",
	Username:    "test_user",
	DisplayName: "Test User",
	Settings: user.Settings{
		Timezone: "Europe/Warsaw",
	},
}

// WithTestUser returns ctx carrying TestUser, optionally modified by opts.
func WithTestUser(ctx context.Context, opts ...func(*user.User)) context.Context {
	u := TestUser
	for _, opt := range opts {
		opt(&u)
	}
	return user.WithUser(ctx, u)
}

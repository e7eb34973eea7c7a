package app

import (
	"context"
	"net/http"

	"github.com/flohub/flohub/internal/cache"
	"github.com/flohub/flohub/internal/config"
	"github.com/flohub/flohub/internal/event_bus"
	"github.com/flohub/flohub/internal/utils"
	"github.com/flohub/flohub/pkg/calendar_provider"
	"github.com/flohub/flohub/pkg/calendar_source"
	"github.com/flohub/flohub/pkg/google"
	"github.com/flohub/flohub/pkg/ical"
	"github.com/flohub/flohub/pkg/microsoft"
	"github.com/flohub/flohub/pkg/oauth"
	"github.com/flohub/flohub/pkg/user"
	"github.com/flohub/flohub/pkg/webhook"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock
	Cache    cache.Cache

	UserService user.Service
	UserHandler *user.Handler

	TokenStore     oauth.TokenStore
	GoogleAuth     *oauth.Auth
	MicrosoftAuth  *oauth.Auth
	GoogleService  *google.ServiceImpl
	GoogleHandler  *google.Handler
	GraphAdapter   *microsoft.Adapter
	GraphHandler   *microsoft.Handler
	WebhookAdapter *webhook.Adapter
	ICalAdapter    *ical.Adapter

	CalendarSourceRepo    calendar_source.Repository
	CalendarSourceService calendar_source.Service
	CalendarSourceHandler *calendar_source.Handler

	AdapterRegistry *calendar_provider.Registry
	Aggregator      *calendar_provider.Aggregator
	CalendarHandler *calendar_provider.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.EventBus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		deps.Cache = redisCache
	} else {
		deps.Cache = cache.NewMemoryCache(deps.Clock)
	}

	deps.UserService = user.NewUserService(user.NewUserRepo(db), deps.EventBus)
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.TokenStore = oauth.NewRepository(db)
	deps.GoogleAuth = oauth.NewGoogleAuth(deps.TokenStore, deps.EventBus, cfg)
	deps.MicrosoftAuth = oauth.NewMicrosoftAuth(deps.TokenStore, deps.EventBus, cfg)

	deps.GoogleService = google.NewService(deps.GoogleAuth)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)
	deps.GraphAdapter = microsoft.NewAdapter(deps.MicrosoftAuth, microsoft.DefaultGraphURL)
	deps.GraphHandler = microsoft.NewHandler(deps.GraphAdapter)

	httpClient := &http.Client{Timeout: cfg.Calendar.FetchTimeout}
	deps.WebhookAdapter = webhook.NewAdapter(httpClient)
	deps.ICalAdapter = ical.NewAdapter(httpClient)

	deps.CalendarSourceRepo = calendar_source.NewRepository(db)
	deps.CalendarSourceService = calendar_source.NewService(deps.CalendarSourceRepo, deps.EventBus, deps.GoogleService)
	deps.CalendarSourceHandler = calendar_source.NewHandler(deps.CalendarSourceService)

	deps.AdapterRegistry = calendar_provider.NewRegistry(deps.ICalAdapter).
		Register(calendar_source.TypeGoogle, google.NewAdapter(deps.GoogleService)).
		Register(calendar_source.TypeO365, deps.WebhookAdapter).
		RegisterOAuth(calendar_source.TypeO365, deps.GraphAdapter).
		Register(calendar_source.TypeURL, deps.WebhookAdapter).
		Register(calendar_source.TypeICal, deps.ICalAdapter).
		Register(calendar_source.TypeOther, deps.ICalAdapter)

	deps.Aggregator = calendar_provider.NewAggregator(
		deps.CalendarSourceRepo,
		deps.UserService,
		deps.AdapterRegistry,
		calendar_provider.NewResultCache(deps.Cache, cfg.Calendar.CacheTTL),
		deps.EventBus,
		cfg.Calendar,
	)
	deps.CalendarHandler = calendar_provider.NewHandler(deps.Aggregator, deps.Clock, cfg.Calendar.DefaultTimezone)

	log.Debugf("dependencies built (redis cache: %t)", cfg.Redis.Enabled)
	return deps, nil
}

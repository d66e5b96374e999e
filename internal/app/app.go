// Package app builds the object graph shared by the API server and the
// viegoctl CLI: store connections, the vendor workflow and the services.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/viego-wallet/viego-backend/internal/cache"
	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/database"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/internal/visa"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

// App holds the wired services and the connections behind them.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	Workflow   *controls.Service
	Profiles   *services.ProfileService
	Cards      *services.CardService
	Payments   *services.PaymentService
	Dispatcher *services.ReminderDispatcher
	Spending   *services.SpendingTracker
	Hub        *services.Hub

	// VendorErr is set when the vendor client could not be built; vendor
	// calls then fail with it.
	VendorErr error

	mongo    *mongo.Client
	postgres *sql.DB
	redis    *redis.Client
	push     *services.RedisPush
}

// Stores bundles the repositories the services run on.
type Stores struct {
	Profiles  repository.ProfileRepository
	Cards     repository.CardRepository
	Payments  repository.PaymentRepository
	Reminders repository.ReminderRepository
	Spending  repository.SpendingStore
}

// MemoryStores returns empty in-memory repositories.
func MemoryStores() Stores {
	return Stores{
		Profiles:  repository.NewMemoryProfiles(),
		Cards:     repository.NewMemoryCards(),
		Payments:  repository.NewMemoryPayments(),
		Reminders: repository.NewMemoryReminders(),
		Spending:  repository.NewMemorySpending(),
	}
}

// New connects to MongoDB, PostgreSQL and Redis and wires the services.
// Outside production an unreachable store is replaced by its in-memory
// version with a warning; in production it is an error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: clock.Real()}
	stores := MemoryStores()

	if client, db, err := database.ConnectMongo(cfg.MongoURI); err != nil {
		if err := a.degrade("mongodb", err); err != nil {
			return nil, err
		}
	} else {
		a.mongo = client
		stores.Profiles = repository.NewMongoProfiles(db)
		stores.Cards = repository.NewMongoCards(db)
		stores.Payments = repository.NewMongoPayments(db)
		stores.Reminders = repository.NewMongoReminders(db)
	}

	if db, err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		if err := a.degrade("postgres", err); err != nil {
			a.Close()
			return nil, err
		}
	} else if err := database.InitPostgresTables(ctx, db); err != nil {
		database.DisconnectPostgres(db)
		if err := a.degrade("postgres", err); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		a.postgres = db
		stores.Spending = repository.NewPostgresSpending(db)
	}

	if client, err := database.ConnectRedis(cfg.RedisURI); err != nil {
		if err := a.degrade("redis", err); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		a.redis = client
	}

	if err := a.wire(stores); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStores wires the services over the given stores without any
// network connections. Redis-backed features fall back to their local
// versions.
func NewWithStores(cfg *config.Config, logger *slog.Logger, stores Stores) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: clock.Real()}
	if err := a.wire(stores); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) degrade(store string, err error) error {
	if a.Config.IsProduction() {
		return fmt.Errorf("connect %s: %w", store, err)
	}
	a.Logger.Warn("store unavailable; using in-memory fallback", "store", store, "error", err)
	return nil
}

func (a *App) wire(stores Stores) error {
	cfg := a.Config

	cipher, err := a.cipher()
	if err != nil {
		return err
	}

	var discovery controls.DiscoveryCache
	var locker services.Locker = cache.NewMemoryLocker()
	var push services.PushPublisher
	a.Hub = services.NewHub(a.Logger)
	if a.redis != nil {
		discovery = cache.NewDiscoveryCache(a.redis, cfg.Visa.DiscoveryTTL, a.Logger)
		locker = cache.NewRedisLocker(a.redis)
		a.push = services.NewRedisPush(a.redis, a.Hub, a.Logger)
		push = a.push
	} else {
		discovery = controls.NewMemoryCache(cfg.Visa.DiscoveryTTL, a.Clock)
		push = services.LocalPush{Hub: a.Hub}
	}

	a.Workflow, err = NewWorkflow(cfg, a.Logger, a.Clock, discovery)
	if err != nil {
		a.VendorErr = err
		a.Logger.Warn("vendor client not configured; card controls unavailable", "error", err)
	}

	a.Spending, err = services.NewSpendingTracker(stores.Spending, a.Clock, cfg.Spending.MonthlyBudget, cfg.Spending.AlertRatio)
	if err != nil {
		return fmt.Errorf("spending tracker: %w", err)
	}

	a.Profiles = services.NewProfileService(stores.Profiles, a.Workflow, a.Logger)
	a.Cards = services.NewCardService(services.CardServiceDeps{
		Cards:    stores.Cards,
		Payments: stores.Payments,
		Profiles: stores.Profiles,
		Workflow: a.Workflow,
		Cipher:   cipher,
		Spending: a.Spending,
		Logger:   a.Logger,
	})
	a.Payments = services.NewPaymentService(services.PaymentServiceDeps{
		Payments:    stores.Payments,
		Reminders:   stores.Reminders,
		Cards:       a.Cards,
		Workflow:    a.Workflow,
		Clock:       a.Clock,
		Logger:      a.Logger,
		DefaultDays: cfg.Reminder.DefaultDays,
	})
	a.Dispatcher = services.NewReminderDispatcher(services.DispatcherDeps{
		Reminders: stores.Reminders,
		Payments:  stores.Payments,
		Profiles:  stores.Profiles,
		Notifier:  services.NewNotifier(services.LogSender{Logger: a.Logger}, push, a.Logger),
		Locker:    locker,
		Clock:     a.Clock,
		Logger:    a.Logger,
		LockTTL:   cfg.Reminder.LockTTL,
		BatchSize: cfg.Reminder.BatchSize,
	})
	return nil
}

// NewWorkflow builds the orchestration service against the configured
// vendor. When the client cannot be built the service is still returned,
// backed by visa.Unavailable, together with the *visa.ConfigError.
func NewWorkflow(cfg *config.Config, logger *slog.Logger, clk clock.Clock, discovery controls.DiscoveryCache) (*controls.Service, error) {
	var gateway controls.Gateway
	var cfgErr *visa.ConfigError
	client, err := vendorClient(cfg.Visa, logger, clk)
	if err != nil {
		if !errors.As(err, &cfgErr) {
			cfgErr = &visa.ConfigError{Field: "transport", Err: err}
		}
		gateway = visa.Unavailable{Err: cfgErr}
	} else {
		gateway = client
	}

	workflow := controls.NewService(gateway, controls.Options{
		Cache:  discovery,
		Clock:  clk,
		Logger: logger,
		Retry: controls.RetryPolicy{
			MaxAttempts: cfg.Visa.MaxAttempts,
			BaseDelay:   controls.DefaultRetryPolicy().BaseDelay,
		},
		CallTimeout: cfg.Visa.CallTimeout,
	})
	if cfgErr != nil {
		return workflow, cfgErr
	}
	return workflow, nil
}

func vendorClient(cfg config.VisaConfig, logger *slog.Logger, clk clock.Clock) (*visa.Client, error) {
	transport, err := visa.NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return visa.NewClient(cfg.BaseURL, transport, visa.WithClock(clk), visa.WithLogger(logger))
}

// cipher builds the card number cipher. Without ENCRYPTION_KEY a random
// key is used outside production, so stored cards do not survive a
// restart.
func (a *App) cipher() (*utils.Cipher, error) {
	if a.Config.EncryptionKey != "" {
		c, err := utils.NewCipherFromBase64(a.Config.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
		}
		return c, nil
	}
	if a.Config.IsProduction() {
		return nil, errors.New("ENCRYPTION_KEY is required in production")
	}
	a.Logger.Warn("ENCRYPTION_KEY not set; using an ephemeral key (generate one with: openssl rand -base64 32)")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return utils.NewCipher(key)
}

// StartBackground starts the Redis push subscriber when Redis is in use.
func (a *App) StartBackground(ctx context.Context) {
	if a.push != nil {
		a.push.Start(ctx)
	}
}

// Checks pings every connected store. Stores running in memory are not
// listed.
func (a *App) Checks(ctx context.Context) map[string]error {
	out := map[string]error{}
	if a.mongo != nil {
		out["mongodb"] = a.mongo.Ping(ctx, nil)
	}
	if a.postgres != nil {
		out["postgres"] = a.postgres.PingContext(ctx)
	}
	if a.redis != nil {
		out["redis"] = a.redis.Ping(ctx).Err()
	}
	if a.VendorErr != nil {
		out["vendor"] = a.VendorErr
	}
	return out
}

// Close releases every connection. Safe to call more than once.
func (a *App) Close() {
	if a.redis != nil {
		database.DisconnectRedis(a.redis)
		a.redis = nil
	}
	if a.postgres != nil {
		database.DisconnectPostgres(a.postgres)
		a.postgres = nil
	}
	if a.mongo != nil {
		database.DisconnectMongo(a.mongo)
		a.mongo = nil
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/authgate/pkg/config"
	"github.com/platinummonkey/authgate/pkg/identity"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/provisioning"
	"github.com/platinummonkey/authgate/pkg/session"
	"github.com/platinummonkey/authgate/pkg/storage"
	"github.com/platinummonkey/authgate/pkg/users"
	"github.com/sirupsen/logrus"
)

// backends holds the open storage handles behind the user directory
type backends struct {
	db        *sql.DB
	redis     *redis.Client
	directory users.Directory
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

// openBackends opens the configured database and cache and builds the directory
func openBackends(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *logrus.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Storage.Driver {
	case storage.DriverMemory:
		logger.Warn("Using in-memory user directory; users are lost on restart")
		b.directory = users.NewMemoryDirectory()
	default:
		db, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		b.db = db

		if cfg.Storage.MigrateOnStart {
			if err := storage.Migrate(db, cfg.Storage.Driver); err != nil {
				b.Close()
				return nil, err
			}
			logger.Info("Database migrations applied")
		}
		b.directory = users.NewSQLDirectory(db, users.Dialect(cfg.Storage.Driver))
	}

	if cfg.Storage.RedisURL != "" {
		client, err := storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
	}

	if b.redis != nil || cfg.Storage.L1CacheSize > 0 {
		b.directory = users.NewCachedDirectory(b.directory, users.CacheConfig{
			L1Size:    cfg.Storage.L1CacheSize,
			TTL:       cfg.Storage.CacheTTL,
			Redis:     b.redis,
			KeyPrefix: "authgate",
		}, metrics, logger)
	}

	return b, nil
}

func newVerifier(ctx context.Context, cfg *config.Config) (*identity.OIDCVerifier, error) {
	v, err := identity.NewOIDCVerifier(ctx, identity.Config{
		IssuerURL:            cfg.Identity.IssuerURL,
		ClientID:             cfg.Identity.ClientID,
		RequireVerifiedEmail: cfg.Identity.RequireVerifiedEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity verifier: %w", err)
	}
	return v, nil
}

func newIssuer(cfg *config.Config) (*session.Issuer, error) {
	iss, err := session.NewIssuer([]byte(cfg.Session.Secret),
		session.WithTTL(cfg.Session.TTL),
		session.WithIssuer(cfg.Session.Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session issuer: %w", err)
	}
	return iss, nil
}

func newNotifier(cfg *config.Config, logger *logrus.Logger) provisioning.Notifier {
	if cfg.Provisioning.BaseURL == "" {
		logger.Warn("No provisioning URL configured; new users will not be announced")
		return provisioning.NopNotifier{}
	}

	var n provisioning.Notifier
	n, err := provisioning.NewHTTPNotifier(cfg.Provisioning.BaseURL, cfg.Provisioning.Timeout, nil)
	if err != nil {
		logger.WithError(err).Warn("Invalid provisioning configuration; notifications disabled")
		return provisioning.NopNotifier{}
	}

	if cfg.Provisioning.BreakerEnabled {
		n = provisioning.NewBreakerNotifier(n, provisioning.BreakerConfig{
			Name:        "leave-service",
			MaxFailures: cfg.Provisioning.BreakerMaxFailures,
			OpenTimeout: cfg.Provisioning.BreakerOpenTimeout,
		}, logger)
	}
	return n
}

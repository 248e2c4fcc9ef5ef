// cmd/loan-console/wiring.go
package main

import (
	"context"
	"fmt"
	"time"

	"loan-decision/internal/common/config"
	"loan-decision/internal/common/database"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/session"
	"loan-decision/internal/verdict"
	"loan-decision/internal/verdict/remote"
	"loan-decision/internal/verdict/rules"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.WithError(err).Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func buildSource(cfg *config.Config, rng verdict.Rand, log logger.Logger) (verdict.Source, error) {
	switch cfg.Verdict.Source {
	case config.SourceRules:
		return rules.New(cfg.RulesDelay(), rng, log), nil
	case config.SourceRemote:
		return remote.New(remote.Config{
			URL:              cfg.Remote.URL,
			Timeout:          config.GetDuration(cfg.Remote.Timeout),
			ValidateResponse: cfg.Remote.ValidateResponse,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown verdict source %q", cfg.Verdict.Source)
	}
}

// buildStore returns the configured session store. The redis client is
// returned too so callers can ping and close it; it is nil for memory.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (session.Store, *database.RedisClient, error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(cfg.SessionTTL(), cfg.SessionLockTTL()), nil, nil
	case config.StoreRedis:
		client := database.NewRedis(cfg.Database.Redis)
		err := retryWithBackoff(ctx, func() error {
			return client.Ping(ctx)
		}, 10, time.Second, log, "Redis connection")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Info("redis connected", map[string]interface{}{"url": cfg.Database.Redis.GetURL()})
		return session.NewRedisStore(client, cfg.SessionTTL(), cfg.SessionLockTTL()), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

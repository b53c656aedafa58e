package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/webfront-auth/config"
	redisadapter "github.com/target/webfront-auth/internal/adapters/redis"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
)

// KeyRingDeps groups what BuildKeyRing needs.
type KeyRingDeps struct {
	Config config.KeyRingConfig
	IsDev  bool
	// Redis is required when Config.Source is redis.
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// KeyRingResult is the sealing key ring and, for the redis source, the store
// it reloads from.
type KeyRingResult struct {
	Ring  *cryptoutil.KeyRing
	Store *redisadapter.KeyRingStore
}

// BuildKeyRing loads the sealing keys, newest first.
func BuildKeyRing(ctx context.Context, deps KeyRingDeps) (KeyRingResult, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Config.Source {
	case config.KeySourceRedis:
		if deps.Redis == nil {
			return KeyRingResult{}, errors.New("redis key source requires a redis client")
		}
		store := redisadapter.NewKeyRingStore(deps.Redis, deps.Config.RedisKey, deps.Config.GraceKeys+1)
		keys, err := store.EnsureKey(ctx)
		if err != nil {
			return KeyRingResult{}, fmt.Errorf("load keys from redis: %w", err)
		}
		ring, err := cryptoutil.NewKeyRing(keys...)
		if err != nil {
			return KeyRingResult{}, err
		}
		logger.InfoContext(ctx, "sealing keys loaded", "source", "redis", "key_ids", ring.IDs())
		return KeyRingResult{Ring: ring, Store: store}, nil

	default:
		keys := make([]cryptoutil.Key, 0, len(deps.Config.Keys))
		for i, raw := range deps.Config.Keys {
			k, err := cryptoutil.ParseKey(raw)
			if err != nil {
				return KeyRingResult{}, fmt.Errorf("key %d: %w", i, err)
			}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			if !deps.IsDev {
				return KeyRingResult{}, errors.New("no sealing keys configured")
			}
			k, err := cryptoutil.GenerateKey()
			if err != nil {
				return KeyRingResult{}, err
			}
			logger.WarnContext(ctx, "no sealing keys configured, using a random key; logins will not survive a restart")
			keys = append(keys, k)
		}
		ring, err := cryptoutil.NewKeyRing(keys...)
		if err != nil {
			return KeyRingResult{}, err
		}
		logger.InfoContext(ctx, "sealing keys loaded", "source", "env", "key_ids", ring.IDs())
		return KeyRingResult{Ring: ring}, nil
	}
}

// ReloadKeys refreshes ring from store every interval until ctx is done.
// A failed reload keeps the current keys.
func ReloadKeys(ctx context.Context, ring *cryptoutil.KeyRing, store *redisadapter.KeyRingStore, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := reloadOnce(ctx, ring, store); err != nil {
				logger.WarnContext(ctx, "reload sealing keys failed", "error", err)
			}
		}
	}
}

func reloadOnce(ctx context.Context, ring *cryptoutil.KeyRing, store *redisadapter.KeyRingStore) error {
	keys, err := store.Load(ctx)
	if err != nil {
		return err
	}
	return ring.Replace(keys)
}

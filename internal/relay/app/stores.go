package app

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/file"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/memory"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/redis"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/sqlite"
)

// OpenSessions opens the session backend named by cfg.SessionBackend.
func OpenSessions(ctx context.Context, cfg Config) (store.Sessions, error) {
	switch cfg.SessionBackend {
	case BackendFile, "":
		s, err := file.NewStore(cfg.SessionDir, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open session directory: %w", err)
		}
		return s, nil

	case BackendMemory:
		return memory.NewStore(cfg.SessionTTL), nil

	case BackendSQLite:
		s, err := sqlite.NewStore(sqlite.DSN(cfg.SessionDB), cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := s.ApplyMigrations(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		return s, nil

	case BackendRedis:
		s, err := redis.NewStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

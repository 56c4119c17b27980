package fx

import (
	"dkp-ledger/internal/cache"
	"dkp-ledger/internal/config"
	"dkp-ledger/internal/database"
	"dkp-ledger/internal/logger"
	"dkp-ledger/internal/repository"
	"dkp-ledger/internal/server"
	"dkp-ledger/internal/service"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideSnapshotCache(cfg *config.Config, clock cache.Clock, log zerolog.Logger) *cache.SnapshotCache {
	return cache.NewSnapshotCache(cfg.CacheTTL, clock, log)
}

func ProvideStore(c *store.Client) service.Store { return c }

func ProvideSnapshotStore(r *repository.SnapshotRepository) service.SnapshotStore { return r }

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(cache.NewSystemClock),
	fx.Provide(ProvideSnapshotCache),
	// repos
	fx.Provide(repository.NewSnapshotRepository),
	fx.Provide(ProvideSnapshotStore),
	// store client
	fx.Provide(store.NewClient),
	fx.Provide(ProvideStore),
	// svc
	fx.Provide(service.NewLeaderboardService),
	// server
	fx.Provide(server.NewLeaderboardServer),
)

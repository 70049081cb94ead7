package seed

import (
	"context"
	"testing"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/logger"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDataIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()
	cfg := &config.Config{OpenGroveID: "open", JWTSecret: "s", JWTIssuer: "grove", Policy: config.DefaultPolicy()}
	services := service.NewServices(&service.ServiceDeps{Config: cfg, Repos: repos, Logger: logger.Nop()})

	require.NoError(t, SeedData(ctx, repos, services, cfg.OpenGroveID, logger.Nop()))
	require.NoError(t, SeedData(ctx, repos, services, cfg.OpenGroveID, logger.Nop()))

	open, err := repos.GroveRepo.FindByID(ctx, "open")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, SystemOwnerID, open.OwnerID)

	groves, err := repos.GroveRepo.FindByOwner(ctx, DemoOwnerID)
	require.NoError(t, err)
	require.Len(t, groves, 1)

	count, err := repos.GroveRepo.CountTrees(ctx, groves[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEnsureOpenGroveKeepsExisting(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := EnsureOpenGrove(ctx, repos, "open", now)
	require.NoError(t, err)
	second, err := EnsureOpenGrove(ctx, repos, "open", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dkp-ledger/internal/config"
	"dkp-ledger/internal/database"
	"dkp-ledger/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SnapshotRepository {
	t.Helper()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "snapshots.db")}
	db, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSnapshotRepository(db, zerolog.Nop())
}

func TestSnapshotRepository_LoadEmpty(t *testing.T) {
	repo := newTestRepo(t)

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotRepository_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	last := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		Characters: []domain.LedgerRow{
			{Key: "11", Name: "Borin", Class: "Warrior", Level: 59, Earned: 2, Balance: 2, OnAllowList: true},
			{Key: "10", Name: "Alda", Class: "Cleric", Level: 60, Earned: 5, Spent: 4, Balance: 1, Earned30d: 5, LastActivity: &last},
		},
		Accounts: []domain.AccountRow{
			{AccountID: "ACC", DisplayName: "Household", Earned: 7, Spent: 4, Balance: 3, LastActivity: &last},
			{AccountID: domain.NoAccountID, DisplayName: "(no account)", Inactive: true},
		},
		Periods:   domain.PeriodTotals{Days30: 74, Days60: 120},
		NameToID:  map[string]string{"alda": "10", "borin": "11"},
		MaxLootID: 105,
		FetchedAt: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, repo.Save(ctx, snap))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.True(t, got.FetchedAt.Equal(snap.FetchedAt))
	assert.Equal(t, int64(105), got.MaxLootID)
	assert.Equal(t, 74.0, got.Periods.Days30)
	assert.Equal(t, 120.0, got.Periods.Days60)
	assert.Equal(t, snap.NameToID, got.NameToID)

	require.Len(t, got.Characters, 2)
	// Row order survives the round trip.
	assert.Equal(t, "11", got.Characters[0].Key)
	assert.Equal(t, "10", got.Characters[1].Key)

	alda := got.Characters[1]
	assert.Equal(t, "Alda", alda.Name)
	assert.Equal(t, "Cleric", alda.Class)
	assert.Equal(t, 60, alda.Level)
	assert.Equal(t, 5.0, alda.Earned)
	assert.Equal(t, 4.0, alda.Spent)
	assert.Equal(t, 1.0, alda.Balance, "balance is re-derived on load")
	assert.Equal(t, 5.0, alda.Earned30d)
	require.NotNil(t, alda.LastActivity)
	assert.True(t, alda.LastActivity.Equal(last))
	assert.Nil(t, got.Characters[0].LastActivity)
	assert.True(t, got.Characters[0].OnAllowList)

	require.Len(t, got.Accounts, 2)
	assert.Equal(t, "ACC", got.Accounts[0].AccountID)
	assert.Equal(t, 3.0, got.Accounts[0].Balance)
	assert.True(t, got.Accounts[1].Inactive)
}

func TestSnapshotRepository_SaveReplacesWhole(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &domain.Snapshot{
		Characters: []domain.LedgerRow{{Key: "10", Name: "Alda", Earned: 5}},
		NameToID:   map[string]string{"alda": "10"},
		FetchedAt:  time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, first))

	second := &domain.Snapshot{
		Characters: []domain.LedgerRow{{Key: "11", Name: "Borin", Earned: 2}},
		NameToID:   map[string]string{"borin": "11"},
		MaxLootID:  7,
		FetchedAt:  time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Characters, 1)
	assert.Equal(t, "11", got.Characters[0].Key)
	assert.Equal(t, int64(7), got.MaxLootID)
	assert.Equal(t, map[string]string{"borin": "11"}, got.NameToID)
}

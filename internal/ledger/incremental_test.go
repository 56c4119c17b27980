package ledger

import (
	"testing"
	"time"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLoot(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{
		{Key: "10", Name: "Alda", Earned: 5, Spent: 4, Balance: 1},
		{Key: "11", Name: "Borin", Earned: 2, Balance: 2},
	}
	loot := []store.RaidLootRow{
		{ID: 101, RaidID: 3, ItemName: "Orb", CharID: "10", CharacterName: "Alda", Cost: 2},
		{ID: 105, RaidID: 3, ItemName: "Belt", CharID: "55", CharacterName: "Newtoon", Cost: 1},
	}
	raids := []store.RaidRow{{RaidID: 3, Date: "2026-08-20"}}
	res := RestoreResolver(map[string]string{"alda": "10", "borin": "11"})

	merged, maxID := MergeLoot(rows, loot, raids, res, zerolog.Nop())

	assert.Equal(t, int64(105), maxID)
	require.Len(t, merged, 3)

	alda := findRow(t, merged, "10")
	assert.Equal(t, 6.0, alda.Spent)
	assert.Equal(t, -1.0, alda.Balance)
	require.NotNil(t, alda.LastActivity)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), alda.LastActivity.UTC())

	newcomer := findRow(t, merged, "55")
	assert.Equal(t, 1.0, newcomer.Spent)
	assert.Equal(t, -1.0, newcomer.Balance)
	assert.Equal(t, "Newtoon", newcomer.Name)

	// Re-sorted after the merge: Borin (2) leads, the debtors trail.
	assert.Equal(t, "11", merged[0].Key)
}

func TestMergeLoot_NoNewRows(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{{Key: "10", Earned: 5, Balance: 5}}
	merged, maxID := MergeLoot(rows, nil, nil, RestoreResolver(nil), zerolog.Nop())

	assert.Equal(t, int64(0), maxID)
	assert.Equal(t, rows, merged)
}

func TestMergeLoot_KeepsNewerActivityDate(t *testing.T) {
	t.Parallel()

	newer := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	rows := []domain.LedgerRow{{Key: "10", LastActivity: &newer}}
	loot := []store.RaidLootRow{{ID: 1, RaidID: 3, CharID: "10", Cost: 1}}
	raids := []store.RaidRow{{RaidID: 3, Date: "2026-08-20"}}

	merged, _ := MergeLoot(rows, loot, raids, RestoreResolver(nil), zerolog.Nop())
	require.NotNil(t, merged[0].LastActivity)
	assert.True(t, merged[0].LastActivity.Equal(newer), "older raid date must not regress last activity")
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, ok := ParseDate("2026-08-20")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseDate("2026-08-20T15:04:05Z")
	require.True(t, ok)
	assert.Equal(t, 15, d.Hour())

	_, ok = ParseDate("")
	assert.False(t, ok)
	_, ok = ParseDate("not a date")
	assert.False(t, ok)
}

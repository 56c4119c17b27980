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

func findAccount(t *testing.T, rows []domain.AccountRow, id string) domain.AccountRow {
	t.Helper()
	for _, r := range rows {
		if r.AccountID == id {
			return r
		}
	}
	t.Fatalf("account %q not found", id)
	return domain.AccountRow{}
}

func TestRollup_SumsLinkedCharacters(t *testing.T) {
	t.Parallel()

	d1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.LedgerRow{
		{Key: "10", Name: "Alda", Earned: 5, Spent: 4, Balance: 1, Earned30d: 2, LastActivity: &d1},
		{Key: "11", Name: "Borin", Earned: 2, Spent: 0, Balance: 2, Earned60d: 3, OnAllowList: true, LastActivity: &d2},
		{Key: "12", Name: "Ximena", Earned: 9, Spent: 1, Balance: 8},
	}
	links := []store.CharacterAccountRow{
		{CharID: "10", AccountID: "ACC"},
		{CharID: "11", AccountID: "ACC"},
	}
	accounts := []store.AccountRow{{AccountID: "ACC", DisplayName: "Alda's Account"}}

	out := Rollup(rows, links, accounts, zerolog.Nop())
	require.Len(t, out, 2)

	acc := findAccount(t, out, "ACC")
	assert.Equal(t, "Alda's Account", acc.DisplayName)
	assert.Equal(t, 7.0, acc.Earned)
	assert.Equal(t, 4.0, acc.Spent)
	assert.Equal(t, 3.0, acc.Balance)
	assert.Equal(t, 2.0, acc.Earned30d)
	assert.Equal(t, 3.0, acc.Earned60d)
	assert.True(t, acc.OnAllowList)
	require.NotNil(t, acc.LastActivity)
	assert.True(t, acc.LastActivity.Equal(d2))

	unlinked := findAccount(t, out, domain.NoAccountID)
	assert.Equal(t, "(no account)", unlinked.DisplayName)
	assert.Equal(t, 9.0, unlinked.Earned)
	assert.Equal(t, 8.0, unlinked.Balance)

	// Sorted descending by balance.
	assert.Equal(t, domain.NoAccountID, out[0].AccountID)
}

func TestRollup_FirstLinkWinsOnConflict(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{{Key: "10", Earned: 5, Balance: 5}}
	links := []store.CharacterAccountRow{
		{CharID: "10", AccountID: "ACC1"},
		{CharID: "10", AccountID: "ACC2"},
	}

	out := Rollup(rows, links, nil, zerolog.Nop())
	require.Len(t, out, 1)
	assert.Equal(t, "ACC1", out[0].AccountID)
	assert.Equal(t, 5.0, out[0].Earned)
}

func TestRollup_DisplayNamePrecedence(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{
		{Key: "10", Balance: 3},
		{Key: "11", Balance: 2},
		{Key: "12", Balance: 1},
	}
	links := []store.CharacterAccountRow{
		{CharID: "10", AccountID: "A1"},
		{CharID: "11", AccountID: "A2"},
		{CharID: "12", AccountID: "A3"},
	}
	accounts := []store.AccountRow{
		{AccountID: "A1", DisplayName: "  Named  "},
		{AccountID: "A2", ToonNames: "Borin, Borintwo"},
		{AccountID: "A3"},
	}

	out := Rollup(rows, links, accounts, zerolog.Nop())
	assert.Equal(t, "Named", findAccount(t, out, "A1").DisplayName)
	assert.Equal(t, "Borin", findAccount(t, out, "A2").DisplayName)
	assert.Equal(t, "A3", findAccount(t, out, "A3").DisplayName)
}

func TestRollup_CarriesInactiveFlag(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{{Key: "10", Balance: 1}}
	links := []store.CharacterAccountRow{{CharID: "10", AccountID: "ACC"}}
	accounts := []store.AccountRow{{AccountID: "ACC", Inactive: true}}

	out := Rollup(rows, links, accounts, zerolog.Nop())
	require.Len(t, out, 1)
	assert.True(t, out[0].Inactive)
}

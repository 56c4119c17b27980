package domain

import (
	"time"
)

// LedgerRow is one character's derived ledger entry. Balance is always
// Earned-Spent and never stored independently of the two.
type LedgerRow struct {
	Key          string
	Name         string
	Class        string
	Level        int
	Earned       float64
	Spent        float64
	Balance      float64
	Earned30d    float64
	Earned60d    float64
	LastActivity *time.Time
	OnAllowList  bool
	Inactive     bool
}

// AccountRow is the rollup of an account's linked characters. Unlinked
// characters land under the NoAccountID bucket.
type AccountRow struct {
	AccountID    string
	DisplayName  string
	Earned       float64
	Spent        float64
	Balance      float64
	Earned30d    float64
	Earned60d    float64
	LastActivity *time.Time
	OnAllowList  bool
	Inactive     bool
}

// NoAccountID is the sentinel bucket for characters without an account
// link. It is a first-class row, not an error.
const NoAccountID = "_no_account_"

// PeriodTotals are the guild-wide trailing-window totals used as
// display denominators. Zero means unknown and renders as an em dash.
type PeriodTotals struct {
	Days30 float64
	Days60 float64
}

// Snapshot is one complete derivation of the leaderboard, valid until
// its TTL expires. NameToID carries the identity-resolution table so an
// incremental catch-up can resolve new loot rows without refetching
// attendance.
type Snapshot struct {
	Characters []LedgerRow
	Accounts   []AccountRow
	Periods    PeriodTotals
	NameToID   map[string]string
	MaxLootID  int64
	FetchedAt  time.Time
}

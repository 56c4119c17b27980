package ledger

import (
	"testing"
	"time"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestActivityFilter_Boundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 14, 30, 0, 0, time.UTC)
	f := NewActivityFilter(now, 120)

	atCutoff := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -120)
	justInside := atCutoff.Add(18 * time.Hour) // same day, later clock time
	oneDayOut := atCutoff.AddDate(0, 0, -1)

	tests := []struct {
		name string
		row  domain.LedgerRow
		want bool
	}{
		{name: "exactly at horizon visible", row: domain.LedgerRow{LastActivity: &atCutoff}, want: true},
		{name: "same day later time visible", row: domain.LedgerRow{LastActivity: &justInside}, want: true},
		{name: "one day older hidden", row: domain.LedgerRow{LastActivity: &oneDayOut}, want: false},
		{name: "no activity hidden", row: domain.LedgerRow{}, want: false},
		{name: "allow-list overrides stale", row: domain.LedgerRow{OnAllowList: true, LastActivity: &oneDayOut}, want: true},
		{name: "allow-list with no activity", row: domain.LedgerRow{OnAllowList: true}, want: true},
		{name: "inactive overrides allow-list", row: domain.LedgerRow{OnAllowList: true, Inactive: true, LastActivity: &justInside}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.VisibleCharacter(tt.row))
		})
	}
}

func TestActivityFilter_VisibleAccount(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	f := NewActivityFilter(now, 30)

	recent := now.AddDate(0, 0, -5)
	assert.True(t, f.VisibleAccount(domain.AccountRow{LastActivity: &recent}))
	assert.False(t, f.VisibleAccount(domain.AccountRow{Inactive: true, LastActivity: &recent}))
}

func TestAnnotate(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerRow{
		{Key: "10"},
		{Key: "11"},
		{Key: "12"},
	}
	links := []store.CharacterAccountRow{
		{CharID: "10", AccountID: "ACC1"},
		{CharID: "11", AccountID: "ACC2"},
	}
	accounts := []store.AccountRow{
		{AccountID: "ACC1", Inactive: true},
		{AccountID: "ACC2"},
	}
	allow := []store.ActiveRaiderRow{{CharacterKey: "12"}}

	Annotate(rows, links, accounts, allow)

	assert.True(t, rows[0].Inactive)
	assert.False(t, rows[0].OnAllowList)
	assert.False(t, rows[1].Inactive)
	assert.True(t, rows[2].OnAllowList)
	assert.False(t, rows[2].Inactive)
}

package ledger

import (
	"time"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"
)

// Annotate marks each character row with its allow-list membership and
// the inactive flag of its linked account, so visibility decisions read
// off the row instead of re-joining tables.
func Annotate(rows []domain.LedgerRow, links []store.CharacterAccountRow, accounts []store.AccountRow, allow []store.ActiveRaiderRow) {
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		if !a.CharacterKey.Empty() {
			allowed[a.CharacterKey.String()] = true
		}
	}

	inactiveAccounts := make(map[string]bool)
	for _, a := range accounts {
		if a.Inactive && !a.AccountID.Empty() {
			inactiveAccounts[a.AccountID.String()] = true
		}
	}
	charToAccount := make(map[string]string, len(links))
	for _, l := range links {
		if !l.CharID.Empty() && !l.AccountID.Empty() {
			charToAccount[l.CharID.String()] = l.AccountID.String()
		}
	}

	for i := range rows {
		rows[i].OnAllowList = allowed[rows[i].Key]
		rows[i].Inactive = inactiveAccounts[charToAccount[rows[i].Key]]
	}
}

// ActivityFilter decides default-leaderboard visibility. A row shows
// when it is on the explicit allow-list or its last activity
// (normalized to midnight) is on or after today minus the active-days
// horizon. An explicit inactive flag hides the row unconditionally,
// overriding both. Hidden rows stay fully queryable elsewhere.
type ActivityFilter struct {
	cutoff time.Time
}

func NewActivityFilter(now time.Time, activeDays int) *ActivityFilter {
	return &ActivityFilter{cutoff: Midnight(now).AddDate(0, 0, -activeDays)}
}

func (f *ActivityFilter) visible(onAllowList, inactive bool, lastActivity *time.Time) bool {
	if inactive {
		return false
	}
	if onAllowList {
		return true
	}
	if lastActivity == nil {
		return false
	}
	return !Midnight(*lastActivity).Before(f.cutoff)
}

func (f *ActivityFilter) VisibleCharacter(row domain.LedgerRow) bool {
	return f.visible(row.OnAllowList, row.Inactive, row.LastActivity)
}

func (f *ActivityFilter) VisibleAccount(row domain.AccountRow) bool {
	return f.visible(row.OnAllowList, row.Inactive, row.LastActivity)
}

func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

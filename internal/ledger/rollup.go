package ledger

import (
	"strings"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
)

// Rollup sums each account's linked characters into one row. It is a
// pure function of the full character ledger plus the link tables and
// is always recomputed whole: the two inputs update independently, so
// patching a previous rollup risks drift.
func Rollup(rows []domain.LedgerRow, links []store.CharacterAccountRow, accounts []store.AccountRow, logger zerolog.Logger) []domain.AccountRow {
	charToAccount := make(map[string]string, len(links))
	for _, l := range links {
		if l.CharID.Empty() || l.AccountID.Empty() {
			continue
		}
		if prev, ok := charToAccount[l.CharID.String()]; ok && prev != l.AccountID.String() {
			// A character resolves to at most one account; the first
			// link wins and the conflict is worth a look upstream.
			logger.Warn().Str("char_id", l.CharID.String()).
				Str("kept", prev).Str("dropped", l.AccountID.String()).
				Msg("character linked to multiple accounts")
			continue
		}
		charToAccount[l.CharID.String()] = l.AccountID.String()
	}

	meta := make(map[string]store.AccountRow, len(accounts))
	for _, a := range accounts {
		if !a.AccountID.Empty() {
			meta[a.AccountID.String()] = a
		}
	}

	acc := make(map[string]*domain.AccountRow)
	var order []string
	for _, row := range rows {
		accountID, linked := charToAccount[row.Key]
		if !linked {
			accountID = domain.NoAccountID
		}

		out, ok := acc[accountID]
		if !ok {
			out = &domain.AccountRow{
				AccountID:   accountID,
				DisplayName: displayName(accountID, meta[accountID]),
				Inactive:    meta[accountID].Inactive,
			}
			acc[accountID] = out
			order = append(order, accountID)
		}

		out.Earned += row.Earned
		out.Spent += row.Spent
		out.Earned30d += row.Earned30d
		out.Earned60d += row.Earned60d
		out.OnAllowList = out.OnAllowList || row.OnAllowList
		if row.LastActivity != nil {
			if out.LastActivity == nil || row.LastActivity.After(*out.LastActivity) {
				d := *row.LastActivity
				out.LastActivity = &d
			}
		}
	}

	result := make([]domain.AccountRow, 0, len(order))
	for _, id := range order {
		r := acc[id]
		r.Balance = r.Earned - r.Spent
		result = append(result, *r)
	}

	SortAccounts(result)
	return result
}

// displayName precedence: trimmed display_name, first entry of the
// comma-joined toon list, then the raw account id.
func displayName(accountID string, a store.AccountRow) string {
	if accountID == domain.NoAccountID {
		return "(no account)"
	}
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	if toons := strings.Split(a.ToonNames, ","); len(toons) > 0 {
		if first := strings.TrimSpace(toons[0]); first != "" {
			return first
		}
	}
	return accountID
}

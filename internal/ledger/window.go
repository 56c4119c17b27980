package ledger

import (
	"fmt"
	"strconv"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
)

// ApplyWindows folds the upstream-precomputed 30d/60d earnings and
// last-activity dates into the ledger rows. Windows are never
// recomputed here; the store materializes them.
//
// When two summary rows resolve to one identity the numeric fields are
// summed. If the merged identities attended the same underlying raids
// that sum double-counts; the raw windows carry no raid provenance, so
// this logs instead of guessing a correction.
func ApplyWindows(rows []domain.LedgerRow, summaries []store.CharacterSummaryRow, res *Resolver, logger zerolog.Logger) {
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		index[r.Key] = i
	}

	seen := make(map[string]bool)
	for _, s := range summaries {
		key, ok := res.Resolve(s.CharID, s.CharacterName)
		if !ok {
			continue
		}
		i, exists := index[key]
		if !exists {
			continue
		}
		if seen[key] {
			logger.Warn().Str("key", key).Str("name", s.CharacterName).
				Msg("multiple summaries merged into one identity; trailing windows may double-count")
		}
		seen[key] = true

		rows[i].Earned30d += s.Earned30d.Float()
		rows[i].Earned60d += s.Earned60d.Float()
		if d, ok := ParseDate(s.LastActivityDate); ok {
			if rows[i].LastActivity == nil || d.After(*rows[i].LastActivity) {
				dd := d
				rows[i].LastActivity = &dd
			}
		}
	}
}

// Cell renders a relative-contribution display cell as
// "window_earned / period_total". A zero or missing period total
// renders as an em dash; this must never divide by (or render against)
// zero.
func Cell(earned, periodTotal float64) string {
	if periodTotal <= 0 {
		return "—"
	}
	return fmt.Sprintf("%s / %s", FormatPoints(earned), FormatPoints(periodTotal))
}

// FormatPoints prints a point value without trailing decimal noise:
// whole values as integers, fractional tic values with up to two
// decimals.
func FormatPoints(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

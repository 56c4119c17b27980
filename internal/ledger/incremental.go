package ledger

import (
	"time"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
)

// MergeLoot folds newly fetched loot rows into an existing character
// ledger for incremental catch-up. Raid metadata referenced by the new
// rows updates last-activity dates: a fresh purchase on a raid means
// the identity was active on that raid's date. Returns the rows
// (re-sorted) and the highest loot id seen.
func MergeLoot(rows []domain.LedgerRow, loot []store.RaidLootRow, raids []store.RaidRow, res *Resolver, logger zerolog.Logger) ([]domain.LedgerRow, int64) {
	if len(loot) == 0 {
		return rows, 0
	}

	index := make(map[string]int, len(rows))
	for i, r := range rows {
		index[r.Key] = i
	}

	raidDate := make(map[int64]time.Time, len(raids))
	for _, r := range raids {
		if d, ok := ParseDate(r.Date); ok {
			raidDate[r.RaidID.Int64()] = d
		}
	}

	var maxID int64
	for _, l := range loot {
		if l.ID.Int64() > maxID {
			maxID = l.ID.Int64()
		}
		key, name, ok := resolveLoot(res, l)
		if !ok {
			logger.Debug().Str("item", l.ItemName).Msg("loot row without identity dropped")
			continue
		}

		i, exists := index[key]
		if !exists {
			rows = append(rows, domain.LedgerRow{Key: key, Name: key})
			i = len(rows) - 1
			index[key] = i
		}
		if name != "" {
			rows[i].Name = name
		}
		rows[i].Spent += l.Cost.Float()
		rows[i].Balance = rows[i].Earned - rows[i].Spent

		if d, ok := raidDate[l.RaidID.Int64()]; ok {
			if rows[i].LastActivity == nil || d.After(*rows[i].LastActivity) {
				dd := d
				rows[i].LastActivity = &dd
			}
		}
	}

	SortRows(rows)
	return rows, maxID
}

// ParseDate accepts the store's date formats: bare dates and RFC 3339
// timestamps.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

package ledger

import (
	"sort"
	"strings"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/store"

	"github.com/rs/zerolog"
)

// AttendanceModel selects the earning granularity for a dataset.
// Event-level rows are authoritative whenever any exist; raid-level
// rows drive earning only for datasets that never recorded per-event
// attendance. The choice is made once, here, and dispatched explicitly
// instead of re-checking emptiness throughout the aggregator.
type AttendanceModel interface {
	attendanceModel()
}

type EventLevel struct {
	Rows []store.RaidEventAttendanceRow
}

type RaidLevel struct {
	Rows []store.RaidAttendanceRow
}

func (EventLevel) attendanceModel() {}
func (RaidLevel) attendanceModel()  {}

func ClassifyAttendance(eventRows []store.RaidEventAttendanceRow, raidRows []store.RaidAttendanceRow) AttendanceModel {
	if len(eventRows) > 0 {
		return EventLevel{Rows: eventRows}
	}
	return RaidLevel{Rows: raidRows}
}

// Input is everything the aggregator consumes. All slices come straight
// from the raw event store; the aggregator itself is a pure derivation.
type Input struct {
	Characters      []store.CharacterRow
	Events          []store.RaidEventRow
	EventAttendance []store.RaidEventAttendanceRow
	RaidAttendance  []store.RaidAttendanceRow
	Loot            []store.RaidLootRow
	Adjustments     []store.AdjustmentRow
}

type eventKey struct {
	raid  int64
	event int64
}

type raidCharKey struct {
	raid int64
	key  string
}

type rowAcc struct {
	key    string
	name   string
	class  string
	level  int
	earned float64
	spent  float64
	order  int
}

// Aggregate derives earned/spent/balance per canonical character key.
// The result is sorted descending by balance with a stable tie-break on
// first appearance, so recomputing from an identical snapshot yields an
// identical order.
func Aggregate(in Input, res *Resolver, logger zerolog.Logger) []domain.LedgerRow {
	eventValue := make(map[eventKey]float64, len(in.Events))
	raidTotal := make(map[int64]float64)
	for _, e := range in.Events {
		if e.RaidID == 0 {
			continue
		}
		eventValue[eventKey{e.RaidID.Int64(), e.EventID.Int64()}] = e.DKPValue.Float()
		raidTotal[e.RaidID.Int64()] += e.DKPValue.Float()
	}

	acc := make(map[string]*rowAcc)
	var order []string
	get := func(key, name string) *rowAcc {
		r, ok := acc[key]
		if !ok {
			r = &rowAcc{key: key, name: key, order: len(order)}
			acc[key] = r
			order = append(order, key)
		}
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			r.name = trimmed
		}
		return r
	}

	switch model := ClassifyAttendance(in.EventAttendance, in.RaidAttendance).(type) {
	case EventLevel:
		// Earned = sum of point values over distinct (event, char)
		// pairs; repeated attendance of the same event counts once.
		seen := make(map[eventKey]map[string]bool)
		perRaid := make(map[raidCharKey]float64)
		for _, row := range model.Rows {
			key, ok := res.Resolve(row.CharID, row.CharacterName)
			if !ok {
				continue
			}
			ek := eventKey{row.RaidID.Int64(), row.EventID.Int64()}
			if seen[ek] == nil {
				seen[ek] = make(map[string]bool)
			}
			if seen[ek][key] {
				continue
			}
			seen[ek][key] = true

			v := eventValue[ek]
			get(key, row.CharacterName).earned += v
			perRaid[raidCharKey{ek.raid, key}] += v
		}

		// Fallback per raid and per character: raid-level attendance
		// with zero event-level credit substitutes the raid's full
		// event-value total for that raid only. This compensates for
		// incomplete historical imports where a raid's event attendee
		// lists were never captured for some characters.
		seenRaid := make(map[raidCharKey]bool)
		for _, row := range in.RaidAttendance {
			key, ok := res.Resolve(row.CharID, row.CharacterName)
			if !ok {
				continue
			}
			rk := raidCharKey{row.RaidID.Int64(), key}
			if seenRaid[rk] {
				continue
			}
			seenRaid[rk] = true
			if perRaid[rk] == 0 {
				get(key, row.CharacterName).earned += raidTotal[rk.raid]
			}
		}

	case RaidLevel:
		// No event-level rows anywhere: everyone on a raid earns the
		// raid's full event-value total.
		seenRaid := make(map[raidCharKey]bool)
		for _, row := range model.Rows {
			key, ok := res.Resolve(row.CharID, row.CharacterName)
			if !ok {
				continue
			}
			rk := raidCharKey{row.RaidID.Int64(), key}
			if seenRaid[rk] {
				continue
			}
			seenRaid[rk] = true
			get(key, row.CharacterName).earned += raidTotal[rk.raid]
		}
	}

	// Spent charges the assigned recipient when the officer recorded
	// one, otherwise the buyer. Rows with no resolvable identity are
	// dropped, not failed.
	for _, l := range in.Loot {
		key, name, ok := resolveLoot(res, l)
		if !ok {
			continue
		}
		get(key, name).spent += l.Cost.Float()
	}

	// Adjustments apply exactly once per resolved identity, so the same
	// correction entered under "Foo" and "*Foo" lands a single time.
	applied := make(map[string]bool)
	for _, a := range in.Adjustments {
		key, ok := res.ResolveName(a.CharacterName)
		if !ok {
			continue
		}
		if _, exists := acc[key]; !exists {
			if alias := StripMarker(a.CharacterName); alias != "" {
				if aliasKey, aok := res.ResolveName(alias); aok {
					if _, exists := acc[aliasKey]; exists {
						key = aliasKey
					}
				}
			}
		}
		if applied[key] {
			logger.Warn().Str("name", a.CharacterName).Str("key", key).
				Msg("duplicate adjustment for one identity, skipping")
			continue
		}
		applied[key] = true
		r := get(key, strings.TrimSpace(a.CharacterName))
		r.earned += a.EarnedDelta.Float()
		r.spent += a.SpentDelta.Float()
	}

	charMeta := make(map[string]store.CharacterRow, len(in.Characters))
	for _, c := range in.Characters {
		if !c.CharID.Empty() {
			charMeta[c.CharID.String()] = c
		}
	}

	rows := make([]domain.LedgerRow, 0, len(order))
	for _, key := range order {
		r := acc[key]
		if meta, ok := charMeta[key]; ok {
			if r.name == key && strings.TrimSpace(meta.Name) != "" {
				r.name = strings.TrimSpace(meta.Name)
			}
			r.class = meta.Class
			r.level = int(meta.Level.Int64())
		}
		rows = append(rows, domain.LedgerRow{
			Key:     r.key,
			Name:    r.name,
			Class:   r.class,
			Level:   r.level,
			Earned:  r.earned,
			Spent:   r.spent,
			Balance: r.earned - r.spent,
		})
	}

	SortRows(rows)
	return rows
}

func resolveLoot(res *Resolver, l store.RaidLootRow) (key, name string, ok bool) {
	if key, ok = res.Resolve(l.AssignedCharID, l.AssignedCharacterName); ok {
		return key, l.AssignedCharacterName, true
	}
	if key, ok = res.Resolve(l.CharID, l.CharacterName); ok {
		return key, l.CharacterName, true
	}
	return "", "", false
}

// SortRows orders descending by balance; sort stability keeps the
// original order for ties.
func SortRows(rows []domain.LedgerRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Balance > rows[j].Balance
	})
}

// SortAccounts mirrors SortRows for the account rollup.
func SortAccounts(rows []domain.AccountRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Balance > rows[j].Balance
	})
}

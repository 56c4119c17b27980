package store

import (
	"bytes"
	"strconv"
	"strings"
)

// Numeric decodes a point value or loot cost. The raw tables contain
// hand-entered data, so malformed or non-numeric input decodes to 0
// instead of failing the row.
type Numeric float64

func (n *Numeric) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(bytes.TrimSpace(b), `"`)))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Numeric(v)
	return nil
}

func (n Numeric) Float() float64 { return float64(n) }

// Ident decodes an identifier column that arrives as a JSON string or
// number depending on how the row was imported. Whole numbers are
// canonicalized to their integer form so "12", 12 and 12.0 all resolve
// to the same key. Null or garbage decodes to the empty string.
type Ident string

func (id *Ident) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		s = strings.TrimSpace(strings.Trim(s, `"`))
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == float64(int64(v)) {
		*id = Ident(strconv.FormatInt(int64(v), 10))
		return nil
	}
	*id = Ident(s)
	return nil
}

func (id Ident) String() string { return string(id) }
func (id Ident) Empty() bool    { return id == "" }

// RowID decodes a surrogate integer key (loot row ids, raid ids, event
// ids). Malformed input decodes to 0, which no real row uses.
type RowID int64

func (r *RowID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(bytes.TrimSpace(b), `"`)))
	if s == "" || s == "null" {
		*r = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*r = 0
		return nil
	}
	*r = RowID(int64(v))
	return nil
}

func (r RowID) Int64() int64 { return int64(r) }

type CharacterRow struct {
	CharID Ident  `json:"char_id"`
	Name   string `json:"name"`
	Class  string `json:"class"`
	Level  RowID  `json:"level"`
}

type CharacterAccountRow struct {
	CharID    Ident `json:"char_id"`
	AccountID Ident `json:"account_id"`
}

type AccountRow struct {
	AccountID   Ident  `json:"account_id"`
	DisplayName string `json:"display_name"`
	ToonNames   string `json:"toon_names"`
	Inactive    bool   `json:"inactive"`
}

type RaidRow struct {
	RaidID   RowID  `json:"raid_id"`
	RaidName string `json:"raid_name"`
	Date     string `json:"date"`
}

type RaidEventRow struct {
	RaidID     RowID   `json:"raid_id"`
	EventID    RowID   `json:"event_id"`
	EventOrder RowID   `json:"event_order"`
	DKPValue   Numeric `json:"dkp_value"`
	EventTime  string  `json:"event_time"`
}

type RaidAttendanceRow struct {
	RaidID        RowID  `json:"raid_id"`
	CharID        Ident  `json:"char_id"`
	CharacterName string `json:"character_name"`
}

type RaidEventAttendanceRow struct {
	RaidID        RowID  `json:"raid_id"`
	EventID       RowID  `json:"event_id"`
	CharID        Ident  `json:"char_id"`
	CharacterName string `json:"character_name"`
}

type RaidLootRow struct {
	ID                    RowID   `json:"id"`
	RaidID                RowID   `json:"raid_id"`
	ItemName              string  `json:"item_name"`
	CharID                Ident   `json:"char_id"`
	CharacterName         string  `json:"character_name"`
	Cost                  Numeric `json:"cost"`
	AssignedCharID        Ident   `json:"assigned_char_id"`
	AssignedCharacterName string  `json:"assigned_character_name"`
}

type AdjustmentRow struct {
	CharacterName string  `json:"character_name"`
	EarnedDelta   Numeric `json:"earned_delta"`
	SpentDelta    Numeric `json:"spent_delta"`
}

type ActiveRaiderRow struct {
	CharacterKey Ident `json:"character_key"`
}

// CharacterSummaryRow is the optional precomputed fast path: trailing
// window earnings and last activity, materialized upstream.
type CharacterSummaryRow struct {
	CharID           Ident   `json:"char_id"`
	CharacterName    string  `json:"character_name"`
	Earned30d        Numeric `json:"earned_30d"`
	Earned60d        Numeric `json:"earned_60d"`
	LastActivityDate string  `json:"last_activity_date"`
}

type PeriodTotalRow struct {
	WindowDays  RowID   `json:"window_days"`
	TotalEarned Numeric `json:"total_earned"`
}

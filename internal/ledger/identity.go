package ledger

import (
	"strings"

	"dkp-ledger/internal/store"
)

// Resolver maps the raw identity columns (char_id, character_name,
// marker-prefixed aliases) onto one canonical character key before any
// aggregation happens, so later stages never re-implement matching
// heuristics. The canonical key is the char_id when the row carries
// one, otherwise the trimmed character name.
type Resolver struct {
	nameToID map[string]string
}

func NewResolver(chars []store.CharacterRow, attendance []store.RaidAttendanceRow) *Resolver {
	r := &Resolver{nameToID: make(map[string]string)}

	// The roster is authoritative; raid attendance fills first-seen
	// gaps for names the roster import missed.
	for _, c := range chars {
		if name := NormalizeName(c.Name); name != "" && !c.CharID.Empty() {
			if _, ok := r.nameToID[name]; !ok {
				r.nameToID[name] = c.CharID.String()
			}
		}
	}
	for _, a := range attendance {
		if name := NormalizeName(a.CharacterName); name != "" && !a.CharID.Empty() {
			if _, ok := r.nameToID[name]; !ok {
				r.nameToID[name] = a.CharID.String()
			}
		}
	}
	return r
}

// RestoreResolver rebuilds a resolver from a snapshot's exported name
// table, for incremental catch-up passes that skip the attendance fetch.
func RestoreResolver(nameToID map[string]string) *Resolver {
	if nameToID == nil {
		nameToID = make(map[string]string)
	}
	return &Resolver{nameToID: nameToID}
}

// Resolve returns the canonical key for an (id, name) pair: the id when
// present, then the id linked to the name, then the trimmed name
// itself. Rows carrying neither have no identity and are dropped by the
// caller.
func (r *Resolver) Resolve(id store.Ident, name string) (string, bool) {
	if !id.Empty() {
		return id.String(), true
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if cid, ok := r.nameToID[NormalizeName(trimmed)]; ok {
		return cid, true
	}
	return trimmed, true
}

// ResolveName resolves a bare name, trying the marker-stripped alias
// when the literal name is unknown. Officer tooling prefixes main
// characters with "*", and adjustments are entered against either form.
func (r *Resolver) ResolveName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if cid, ok := r.nameToID[NormalizeName(trimmed)]; ok {
		return cid, true
	}
	if alias := StripMarker(trimmed); alias != trimmed {
		if cid, ok := r.nameToID[NormalizeName(alias)]; ok {
			return cid, true
		}
		return alias, true
	}
	return trimmed, true
}

func (r *Resolver) Export() map[string]string {
	out := make(map[string]string, len(r.nameToID))
	for k, v := range r.nameToID {
		out[k] = v
	}
	return out
}

func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StripMarker removes the leading "*" main-character marker.
func StripMarker(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "*"))
}

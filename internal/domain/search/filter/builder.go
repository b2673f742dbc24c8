package filter

import (
	"strings"
	"time"
)

// Field names understood by the record store.
const (
	FieldTenant     = "user"
	FieldCollection = "list_name"
	FieldCreated    = "timestamp_create"
	FieldReminder   = "timestamp_reminder"
)

// Temporal aliases accepted in raw fragments.
const (
	AliasCreated  = "datetime_create"
	AliasReminder = "datetime_reminder"
)

var temporalAliases = map[string]string{
	AliasCreated:  FieldCreated,
	AliasReminder: FieldReminder,
}

// zoned layouts carry an offset; local layouts are read as UTC.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05Z07:00"}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// IsTemporalAlias reports whether field must be renamed and converted before storage.
func IsTemporalAlias(field string) bool {
	_, ok := temporalAliases[field]
	return ok
}

// IsScopeField reports whether field is reserved for tenant or collection scoping.
func IsScopeField(field string) bool {
	return field == FieldTenant || field == FieldCollection
}

// Build normalizes raw fragments into the final expression:
// temporal aliases are renamed and converted to epoch seconds, the collection
// fragment is appended when collection is set, and the tenant fragment is always last.
// Raw fragments on scope fields are dropped so the scope cannot be widened or duplicated.
func Build(raw []Fragment, tenant, collection string) Expression {
	out := make([]Fragment, 0, len(raw)+2)
	for _, f := range raw {
		if IsScopeField(f.Field) {
			continue
		}
		if len(out) >= MaxFragments-2 {
			break
		}
		if concrete, ok := temporalAliases[f.Field]; ok {
			f = Fragment{Field: concrete, Op: f.Op, Value: Number(float64(ToEpoch(f.Value)))}
		}
		out = append(out, f)
	}

	if collection != "" {
		out = append(out, Eq(FieldCollection, collection))
	}
	out = append(out, Eq(FieldTenant, tenant))

	return Expression{fragments: out}
}

// Overflow reports how many fragments of raw Build drops for lack of room.
func Overflow(raw []Fragment) int {
	n := 0
	for _, f := range raw {
		if !IsScopeField(f.Field) {
			n++
		}
	}
	return max(0, n-(MaxFragments-2))
}

// ToEpoch converts a human timestamp to UTC epoch seconds.
// A value without a zone is read as UTC. Anything unparsable yields 0.
func ToEpoch(v Value) int64 {
	switch v.Kind() {
	case KindNumber:
		return int64(v.Num())
	case KindString:
		t, ok := ParseTime(v.Str())
		if !ok {
			return 0
		}
		return t.Unix()
	default:
		return 0
	}
}

// ParseTime parses the timestamp layouts produced by the generation service.
// Timestamps without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	return ParseTimeIn(s, time.UTC)
}

// ParseTimeIn is ParseTime with timestamps without a zone read in loc.
func ParseTimeIn(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

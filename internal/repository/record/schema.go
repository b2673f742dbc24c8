package record

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// Hash field names. Tenant, collection and timestamp names are shared with the filter package.
const (
	FieldText        = "text"
	FieldKind        = "kind"
	FieldCompleted   = "completed"
	FieldJobID       = "job_id"
	FieldIDs         = "ids"
	FieldTriggerType = "trigger_type"
	FieldCron        = "trigger_cron"
	FieldEvery       = "trigger_every"
	FieldStart       = "trigger_start"
	FieldVector      = "__vector"
)

var tagFields = []string{
	filter.FieldTenant,
	filter.FieldCollection,
	FieldKind,
	FieldCompleted,
	FieldJobID,
	FieldIDs,
}

var timeFields = []string{filter.FieldCreated, filter.FieldReminder}

// IndexName is the FT index over every record hash under prefix.
func IndexName(prefix string) string { return prefix + "records:idx" }

// KeyPrefix is the key namespace of record hashes.
func KeyPrefix(prefix string) string { return prefix + "record:" }

// Schema describes the indexed record fields: the fixed tag and time fields
// plus one numeric field per canonical quantity.
type Schema struct {
	numeric map[string]struct{}
	tags    map[string]struct{}
}

// NewSchema creates a schema with the given canonical quantity fields.
func NewSchema(quantities []string) Schema {
	s := Schema{
		numeric: make(map[string]struct{}, len(quantities)+len(timeFields)),
		tags:    make(map[string]struct{}, len(tagFields)),
	}
	for _, f := range timeFields {
		s.numeric[f] = struct{}{}
	}
	for _, f := range quantities {
		s.numeric[f] = struct{}{}
	}
	for _, f := range tagFields {
		s.tags[f] = struct{}{}
	}
	return s
}

// IsNumeric reports whether field is a NUMERIC index field.
func (s Schema) IsNumeric(field string) bool {
	_, ok := s.numeric[field]
	return ok
}

// IsTag reports whether field is a TAG index field.
func (s Schema) IsTag(field string) bool {
	_, ok := s.tags[field]
	return ok
}

// Reconcile adapts an expression to the index: numeric fields get numeric
// operands, tag fields get text operands, fragments the index cannot evaluate are
// dropped. Dropped fragments are returned for logging.
func (s Schema) Reconcile(expr filter.Expression) (filter.Expression, []filter.Fragment) {
	var kept, dropped []filter.Fragment
	for _, f := range expr.Fragments() {
		switch {
		case s.IsNumeric(f.Field):
			v, ok := numericValue(f.Value)
			if !ok {
				dropped = append(dropped, f)
				continue
			}
			kept = append(kept, filter.Fragment{Field: f.Field, Op: f.Op, Value: v})
		case s.IsTag(f.Field):
			if f.Op.IsOrdering() {
				dropped = append(dropped, f)
				continue
			}
			kept = append(kept, filter.Fragment{Field: f.Field, Op: f.Op, Value: filter.String(f.Value.Text())})
		default:
			dropped = append(dropped, f)
		}
	}
	return filter.And(kept...), dropped
}

func numericValue(v filter.Value) (filter.Value, bool) {
	switch v.Kind() {
	case filter.KindNumber:
		return v, true
	case filter.KindString:
		if t, ok := filter.ParseTime(v.Str()); ok {
			return filter.Number(float64(t.Unix())), true
		}
		if n, ok := parseNumber(v.Str()); ok {
			return filter.Number(n), true
		}
	}
	return filter.Value{}, false
}

// ReturnFields lists the hash fields fetched for a record.
func (s Schema) ReturnFields() []string {
	out := make([]string, 0, len(s.numeric)+len(s.tags)+5)
	out = append(out, FieldText, FieldTriggerType, FieldCron, FieldEvery, FieldStart)
	out = append(out, tagFields...)
	out = append(out, timeFields...)
	return append(out, s.quantities()...)
}

// Index builds the FT.CREATE definition.
func (s Schema) Index(prefix string, dim, m, efConstruct int) (*db.IndexDefinition, error) {
	b := db.NewIndex(IndexName(prefix)).
		Prefix(KeyPrefix(prefix)).
		Tag(tagFields...).
		Numeric(timeFields...)
	for _, f := range s.quantities() {
		b = b.Numeric(f)
	}
	return b.VectorHNSW(FieldVector, "vector", dim, db.DistanceCosine, m, efConstruct).Build()
}

func (s Schema) quantities() []string {
	out := make([]string, 0, len(s.numeric))
	for f := range s.numeric {
		if f != filter.FieldCreated && f != filter.FieldReminder {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// EncodeVector renders a vector as the little-endian float32 blob stored in hashes.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

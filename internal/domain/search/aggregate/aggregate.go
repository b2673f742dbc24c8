package aggregate

import (
	"math"
	"strconv"
	"strings"

	"github.com/avdivo/dev-organizer/internal/domain/search/result"
)

// Function is an aggregate over a numeric field.
type Function string

// Supported functions.
const (
	Sum   Function = "sum"
	Avg   Function = "avg"
	Min   Function = "min"
	Max   Function = "max"
	Count Function = "count"
)

// ParseFunction returns the named function, or Sum when the name is unknown.
func ParseFunction(s string) Function {
	switch f := Function(strings.ToLower(strings.TrimSpace(s))); f {
	case Sum, Avg, Min, Max, Count:
		return f
	}
	return Sum
}

// Comments attached to a Result.
const (
	CommentFieldSubstituted = "field not recognized, computed for the default field"
	CommentNoRecords        = "no matching records"
)

// Result is the outcome of one aggregation.
type Result struct {
	Value       float64
	Function    Function
	Field       string
	N           int
	Substituted bool
	Comment     string
}

// maxExactInt is the largest magnitude below which every float64 integer fits int64 exactly.
const maxExactInt = 1 << 53

// Format renders Value as an integer when it has no fractional part.
func (r Result) Format() string {
	if r.Value == math.Trunc(r.Value) && math.Abs(r.Value) < maxExactInt {
		return strconv.FormatInt(int64(r.Value), 10)
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// Aggregator computes functions over a whitelist of numeric fields.
type Aggregator struct {
	fields   map[string]struct{}
	fallback string
}

// New creates an Aggregator. fallback is used when a requested field is not whitelisted.
func New(fields []string, fallback string) *Aggregator {
	m := make(map[string]struct{}, len(fields)+1)
	for _, f := range fields {
		m[f] = struct{}{}
	}
	m[fallback] = struct{}{}
	return &Aggregator{fields: m, fallback: fallback}
}

// Allows reports whether field is whitelisted.
func (a *Aggregator) Allows(field string) bool {
	_, ok := a.fields[field]
	return ok
}

// Compute applies function to every record's numeric value at field. Records without the
// field or with a non-numeric value are skipped.
func (a *Aggregator) Compute(function, field string, records []result.Result) Result {
	res := Result{Function: ParseFunction(function), Field: field}
	if !a.Allows(field) {
		res.Field = a.fallback
		res.Substituted = true
		res.Comment = CommentFieldSubstituted
	}

	values := make([]float64, 0, len(records))
	for _, r := range records {
		if v, ok := r.Number(res.Field); ok {
			values = append(values, v)
		}
	}
	res.N = len(values)

	if len(values) == 0 {
		res.Comment = CommentNoRecords
		return res
	}

	switch res.Function {
	case Avg:
		res.Value = sum(values) / float64(len(values))
	case Min:
		res.Value = values[0]
		for _, v := range values[1:] {
			res.Value = math.Min(res.Value, v)
		}
	case Max:
		res.Value = values[0]
		for _, v := range values[1:] {
			res.Value = math.Max(res.Value, v)
		}
	case Count:
		res.Value = float64(len(values))
	default:
		res.Value = sum(values)
	}
	return res
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

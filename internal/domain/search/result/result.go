package result

import (
	"strconv"
	"strings"
)

// Result is a record returned by the record index. It is never mutated after creation.
type Result struct {
	id       string
	text     string
	distance float64
	metadata map[string]string
}

// New creates a result. metadata is copied.
func New(id, text string, distance float64, metadata map[string]string) Result {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Result{id: id, text: text, distance: distance, metadata: md}
}

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Text returns the record text.
func (r Result) Text() string { return r.text }

// Distance returns the cosine distance to the query; 0 for filter-only retrieval.
func (r Result) Distance() float64 { return r.distance }

// Value returns the raw metadata value for field.
func (r Result) Value(field string) (string, bool) {
	v, ok := r.metadata[field]
	return v, ok
}

// Number coerces the metadata value for field to a float.
func (r Result) Number(field string) (float64, bool) {
	v, ok := r.metadata[field]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Metadata returns a copy of the metadata.
func (r Result) Metadata() map[string]string {
	md := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		md[k] = v
	}
	return md
}

// ContainsFold reports whether the text contains substr, ignoring case.
func (r Result) ContainsFold(substr string) bool {
	return strings.Contains(strings.ToLower(r.text), strings.ToLower(substr))
}

// Texts returns the text of every result in order.
func Texts(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.text
	}
	return out
}

package db

import "github.com/avdivo/dev-organizer/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
	// RawScores keeps __vector_score as the cosine distance instead of
	// converting it to a similarity.
	RawScores bool
}

// ListQuery is the input for a filter-only search.
type ListQuery struct {
	IndexName    string
	Filters      filter.Expression
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

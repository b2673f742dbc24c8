package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH, pre-filtered by q.Filters.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB]", q.K)
	queryStr := "*=>" + knnPart
	if filterStr := buildFilter(q.Filters); filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{q.IndexName, queryStr}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}
	args = append(args,
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := parseResult(raw)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		scoreStr, ok := e.Fields["__vector_score"]
		if !ok {
			continue
		}
		if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
			if q.RawScores {
				e.Score = d
			} else {
				e.Score = max(0, 1.0-d) // cosine distance to similarity
			}
		}
		delete(e.Fields, "__vector_score")
	}
	return res, nil
}

// SearchList returns one page of records matching q.Filters.
func (s *Store) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	args := []string{q.IndexName, listQuery(q.Filters), "LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(limit)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}
	args = append(args, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return parseResult(raw)
}

// SearchCount returns the number of records matching q.Filters via LIMIT 0 0.
func (s *Store) SearchCount(ctx context.Context, q *db.ListQuery) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(q.IndexName, listQuery(q.Filters), "LIMIT", "0", "0", "DIALECT", "2").
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// --- Result parsing ---

// parseResult reads the RESP2 reply [total, key1, fields1, key2, fields2, ...].
func parseResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

func listQuery(expr filter.Expression) string {
	if q := buildFilter(expr); q != "" {
		return q
	}
	return "*"
}

// buildFilter translates a conjunctive expression into an FT.SEARCH query string.
// Numeric operands become ranges, everything else becomes a tag match.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, expr.Len())
	for _, f := range expr.Fragments() {
		if p := buildFragment(f); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func buildFragment(f filter.Fragment) string {
	if f.Value.Kind() == filter.KindNumber {
		return buildNumericFilter(f.Field, f.Op, f.Value.Num())
	}
	if f.Op.IsOrdering() {
		n, err := strconv.ParseFloat(strings.TrimSpace(f.Value.Text()), 64)
		if err != nil {
			return "" // ordering on text is not expressible as a pre-filter
		}
		return buildNumericFilter(f.Field, f.Op, n)
	}

	text := f.Value.Text()
	if text == "" {
		return ""
	}
	tag := buildTagFilter(f.Field, text)
	if f.Op == filter.OpNe {
		return "-" + tag
	}
	return tag
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

func buildNumericFilter(key string, op filter.Operator, v float64) string {
	n := strconv.FormatFloat(v, 'f', -1, 64)
	switch op {
	case filter.OpGt:
		return fmt.Sprintf("@%s:[(%s +inf]", key, n)
	case filter.OpGte:
		return fmt.Sprintf("@%s:[%s +inf]", key, n)
	case filter.OpLt:
		return fmt.Sprintf("@%s:[-inf (%s]", key, n)
	case filter.OpLte:
		return fmt.Sprintf("@%s:[-inf %s]", key, n)
	case filter.OpNe:
		return fmt.Sprintf("-@%s:[%s %s]", key, n, n)
	default:
		return fmt.Sprintf("@%s:[%s %s]", key, n, n)
	}
}

var tagEscaper = strings.NewReplacer(
	"\\", "\\\\",
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

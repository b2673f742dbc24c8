package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreFromClient(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"short", "longer than input", false},
		{"notempty", "", true},
	}
	for _, tc := range tests {
		if got := containsIgnoreCase(tc.s, tc.sub); got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "organizer:record:1"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreFromClient(c)
	err := s.HSet(context.Background(), "organizer:record:1", map[string]string{"user": "7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	err := s.HSet(context.Background(), "k", map[string]string{"f": "v"})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestHSetMulti(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	s := NewStoreFromClient(c)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"f1": "v1"}},
		{Key: "k2", Fields: map[string]string{"f2": "v2"}},
	})
	if err == nil || !strings.Contains(err.Error(), "k2") {
		t.Fatalf("expected error naming k2, got %v", err)
	}

	if err := NewStoreFromClient(nil).HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: unexpected error: %v", err)
	}
}

func TestHGetAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "present")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"__content": mock.RedisString("buy milk"),
		})))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "absent")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	s := NewStoreFromClient(c)
	m, err := s.HGetAll(context.Background(), "present")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["__content"] != "buy milk" {
		t.Errorf("unexpected map: %v", m)
	}

	if _, err := s.HGetAll(context.Background(), "absent"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestDelAndExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "k")).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "k")).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreFromClient(c)
	if err := s.Del(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exists, err := s.Exists(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected false")
	}
}

// --- kv.go tests ---

func TestGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "hit")).
		Return(mock.Result(mock.RedisBlobString("value")))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "miss")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreFromClient(c)
	data, err := s.Get(context.Background(), "hit")
	if err != nil || string(data) != "value" {
		t.Fatalf("Get(hit) = %q, %v", data, err)
	}
	if _, err := s.Get(context.Background(), "miss"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v", "EX", "60")).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreFromClient(c)
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrByAndExpire(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCRBY", "organizer:budget:openai:daily:2026-03-01", "120")).
		Return(mock.Result(mock.RedisInt64(120)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXPIRE", "organizer:budget:openai:daily:2026-03-01", "172800", "NX")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreFromClient(c)
	ctx := context.Background()
	if err := s.IncrBy(ctx, "organizer:budget:openai:daily:2026-03-01", 120); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if err := s.Expire(ctx, "organizer:budget:openai:daily:2026-03-01", 48*time.Hour, true); err != nil {
		t.Fatalf("Expire: %v", err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Args(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.CREATE", "organizer:records", "ON", "HASH", "PREFIX", "1", "organizer:record:",
			"SCHEMA",
			"user", "TAG",
			"amount", "NUMERIC",
			"__vector", "AS", "vector", "VECTOR", "HNSW", "10",
			"TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "COSINE", "M", "16", "EF_CONSTRUCTION", "200",
		)).
		Return(mock.Result(mock.RedisString("OK")))

	idx, err := db.NewIndex("organizer:records").
		Prefix("organizer:record:").
		Tag("user").
		Numeric("amount").
		VectorHNSW("__vector", "vector", 4, db.DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	s := NewStoreFromClient(c)
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreFromClient(c)
	idx := &db.IndexDefinition{
		Name:   "idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	if err := s.CreateIndex(context.Background(), idx); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreFromClient(c)
	if err := s.DropIndex(context.Background(), "idx"); !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "yes")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("yes"))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "no")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "broken")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	ctx := context.Background()

	if ok, err := s.IndexExists(ctx, "yes"); err != nil || !ok {
		t.Errorf("yes: got %v, %v", ok, err)
	}
	if ok, err := s.IndexExists(ctx, "no"); err != nil || ok {
		t.Errorf("no: got %v, %v", ok, err)
	}
	if _, err := s.IndexExists(ctx, "broken"); !isDBError(err) {
		t.Errorf("broken: expected db.Error, got %v", err)
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	tests := []struct {
		name  string
		field db.IndexField
	}{
		{"empty name", db.IndexField{Type: db.IndexFieldTag}},
		{"unknown type", db.IndexField{Name: "f", Type: db.IndexFieldType(99)}},
		{"zero dim", db.IndexField{Name: "f", Type: db.IndexFieldVector}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildFieldArgs(&tt.field); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildFieldArgs_TagOptions(t *testing.T) {
	args, err := buildFieldArgs(&db.IndexField{Name: "ids", Type: db.IndexFieldTag, TagSeparator: ";", TagCaseSensitive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "ids TAG SEPARATOR ; CASESENSITIVE"
	if got := strings.Join(args, " "); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// --- search.go tests ---

func TestSearchKNN_QueryAndScores(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var captured []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			captured = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("organizer:record:1"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.25"),
				mock.RedisString("__content"),
				mock.RedisString("buy milk"),
			),
		)))

	s := NewStoreFromClient(c)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "idx",
		Filters:   filter.And(filter.Eq("user", "7")),
		Vector:    []float32{0.1, 0.2},
		K:         20,
		RawScores: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured[2] != "(@user:{7})=>[KNN 20 @vector $BLOB]" {
		t.Errorf("query = %q", captured[2])
	}
	if !strings.Contains(strings.Join(captured, " "), "LIMIT 0 20") {
		t.Errorf("expected LIMIT 0 20 in %v", captured)
	}
	if len(res.Entries) != 1 || res.Entries[0].Score != 0.25 {
		t.Fatalf("expected raw distance 0.25, got %+v", res.Entries)
	}
	if _, ok := res.Entries[0].Fields["__vector_score"]; ok {
		t.Error("__vector_score should be removed from fields")
	}
}

func TestSearchKNN_SimilarityScore(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "*=>[KNN 5 @vector $BLOB]"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("doc:1"),
			mock.RedisArray(mock.RedisString("__vector_score"), mock.RedisString("0.1")),
		)))

	s := NewStoreFromClient(c)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "idx", Vector: []float32{1}, K: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Score < 0.89 || res.Entries[0].Score > 0.91 {
		t.Errorf("expected similarity ~0.9, got %f", res.Entries[0].Score)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearchList(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.SEARCH", "idx", "@list_name:{shopping} @user:{7}", "LIMIT", "0", "50",
			"RETURN", "1", "__content", "DIALECT", "2",
		)).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("doc:1"),
			mock.RedisArray(mock.RedisString("__content"), mock.RedisString("milk")),
			mock.RedisString("doc:2"),
			mock.RedisArray(mock.RedisString("__content"), mock.RedisString("bread")),
		)))

	s := NewStoreFromClient(c)
	res, err := s.SearchList(context.Background(), &db.ListQuery{
		IndexName:    "idx",
		Filters:      filter.And(filter.Eq("list_name", "shopping"), filter.Eq("user", "7")),
		Limit:        50,
		ReturnFields: []string{"__content"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Entries[1].Fields["__content"] != "bread" {
		t.Errorf("unexpected entry: %+v", res.Entries[1])
	}
}

func TestSearchCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "idx", "*", "LIMIT", "0", "0", "DIALECT", "2")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "idx", "@user:{8}", "LIMIT", "0", "0", "DIALECT", "2")).
		Return(mock.Result(mock.RedisArray()))

	s := NewStoreFromClient(c)
	count, err := s.SearchCount(context.Background(), &db.ListQuery{IndexName: "idx"})
	if err != nil || count != 42 {
		t.Errorf("got %d, %v; want 42", count, err)
	}
	count, err = s.SearchCount(context.Background(), &db.ListQuery{IndexName: "idx", Filters: filter.And(filter.Eq("user", "8"))})
	if err != nil || count != 0 {
		t.Errorf("got %d, %v; want 0", count, err)
	}
}

// --- Filter building tests ---

func mustFragment(t *testing.T, field string, op filter.Operator, v filter.Value) filter.Fragment {
	t.Helper()
	f, err := filter.NewFragment(field, op, v)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	return f
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		frag filter.Fragment
		want string
	}{
		{"tag eq", mustFragment(t, "user", filter.OpEq, filter.String("7")), `@user:{7}`},
		{"tag ne", mustFragment(t, "list_name", filter.OpNe, filter.String("work")), `-@list_name:{work}`},
		{"tag escaped", mustFragment(t, "list_name", filter.OpEq, filter.String("to-do list")), `@list_name:{to\-do\ list}`},
		{"bool", mustFragment(t, "completed", filter.OpEq, filter.Bool(false)), `@completed:{false}`},
		{"num eq", mustFragment(t, "amount", filter.OpEq, filter.Number(3)), `@amount:[3 3]`},
		{"num ne", mustFragment(t, "amount", filter.OpNe, filter.Number(3)), `-@amount:[3 3]`},
		{"num gt", mustFragment(t, "amount", filter.OpGt, filter.Number(5)), `@amount:[(5 +inf]`},
		{"num gte", mustFragment(t, "timestamp_create", filter.OpGte, filter.Number(1749427200)), `@timestamp_create:[1749427200 +inf]`},
		{"num lt", mustFragment(t, "amount", filter.OpLt, filter.Number(100)), `@amount:[-inf (100]`},
		{"num lte", mustFragment(t, "amount", filter.OpLte, filter.Number(2.5)), `@amount:[-inf 2.5]`},
		{"numeric string ordering", mustFragment(t, "amount", filter.OpGt, filter.String("10")), `@amount:[(10 +inf]`},
		{"text ordering dropped", mustFragment(t, "list_name", filter.OpGt, filter.String("abc")), ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildFilter(filter.And(tt.frag)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildFilter_Conjunction(t *testing.T) {
	expr := filter.And(
		mustFragment(t, "amount", filter.OpGte, filter.Number(10)),
		filter.Eq("list_name", "shopping"),
		filter.Eq("user", "7"),
	)
	want := `@amount:[10 +inf] @list_name:{shopping} @user:{7}`
	if got := buildFilter(expr); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Errorf("empty expression: got %q", got)
	}
	if got := listQuery(filter.Expression{}); got != "*" {
		t.Errorf("empty list query: got %q", got)
	}
}

func TestVectorToBytes(t *testing.T) {
	b := vectorToBytes([]float32{1.0, 2.0})
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	// 1.0 in little-endian IEEE 754
	if b[0] != 0x00 || b[3] != 0x3f {
		t.Errorf("unexpected encoding % x", b[:4])
	}
}

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

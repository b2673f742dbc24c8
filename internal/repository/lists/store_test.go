package lists

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdivo/dev-organizer/internal/domain"
	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "lists.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureUser_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1, err := s.EnsureUser(ctx, "tg-42", "Sam")
	require.NoError(t, err)
	u2, err := s.EnsureUser(ctx, "tg-42", "Other name")
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, "Sam", u2.Name, "existing user keeps its name")
}

func TestEnsureUser_RequiresID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EnsureUser(context.Background(), "  ", "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestCreateList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, "tg-1", "")
	require.NoError(t, err)

	require.NoError(t, s.CreateList(ctx, "tg-1", domcol.Reconstruct("pantry", "", time.Time{})))
	require.NoError(t, s.CreateList(ctx, "tg-1", domcol.Reconstruct("shopping", "", time.Time{})))

	err = s.CreateList(ctx, "tg-1", domcol.Reconstruct("pantry", "", time.Time{}))
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists), "got %v", err)

	lists, err := s.Lists(ctx, "tg-1")
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "pantry", lists[0].Name())
	assert.Equal(t, "shopping", lists[1].Name())
}

func TestCreateList_SameNameDifferentUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := s.EnsureUser(ctx, id, "")
		require.NoError(t, err)
		require.NoError(t, s.CreateList(ctx, id, domcol.Reconstruct("pantry", "", time.Time{})))
	}
}

func TestCreateList_UnknownUser(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateList(context.Background(), "ghost", domcol.Reconstruct("pantry", "", time.Time{}))
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestLists_UnknownUserIsEmpty(t *testing.T) {
	s := newTestStore(t)
	lists, err := s.Lists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, lists)
}

func TestOpen_Error(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := Open(context.Background(), "x")
	assert.Error(t, err)
}

func TestCreateList_BlankName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, "tg-1", "")
	require.NoError(t, err)

	err = s.CreateList(ctx, "tg-1", domcol.List{})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest), "got %v", err)
}

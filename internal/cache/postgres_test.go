package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier emulates artifact_cache in memory.
type fakeQuerier struct {
	mu      sync.Mutex
	rows    map[string]Entry
	execErr error
	queries []string
}

type fakeRow struct {
	entry *Entry
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.entry == nil {
		return pgx.ErrNoRows
	}
	*(dest[0].(*[]byte)) = append([]byte(nil), r.entry.Artifact...)
	*(dest[1].(*time.Time)) = r.entry.StoredAt
	return nil
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, sql)
	if q.execErr != nil {
		return pgconn.CommandTag{}, q.execErr
	}
	if q.rows == nil {
		q.rows = map[string]Entry{}
	}
	switch {
	case strings.HasPrefix(sql, "INSERT"):
		key := args[0].(string)
		existing, ok := q.rows[key]
		cutoff, _ := args[3].(*time.Time)
		if !ok || (cutoff != nil && !existing.StoredAt.After(*cutoff)) {
			q.rows[key] = Entry{Key: key, Artifact: args[1].([]byte), StoredAt: args[2].(time.Time)}
		}
	case strings.HasPrefix(sql, "DELETE"):
		delete(q.rows, args[0].(string))
	}
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, sql)
	e, ok := q.rows[args[0].(string)]
	if !ok {
		return fakeRow{}
	}
	if cutoff, _ := args[1].(*time.Time); cutoff != nil && !e.StoredAt.After(*cutoff) {
		return fakeRow{}
	}
	return fakeRow{entry: &e}
}

func TestPostgresRoundTrip(t *testing.T) {
	db := &fakeQuerier{}
	store := NewPostgres(db, 0)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	require.NoError(t, store.Set(ctx, "k", []byte("png")))
	require.NoError(t, store.Set(ctx, "k", []byte("other")))

	e, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("png"), e.Artifact)
	assert.Equal(t, "k", e.Key)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS artifact_cache")

	require.NoError(t, store.Delete(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgresTTLHidesStaleRows(t *testing.T) {
	orig := now
	t.Cleanup(func() { now = orig })
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return base }

	db := &fakeQuerier{}
	store := NewPostgres(db, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v")))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	// a fresh row inside the ttl is still write-once
	require.NoError(t, store.Set(ctx, "k", []byte("early")))
	e, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), e.Artifact)

	now = func() time.Time { return base.Add(2 * time.Hour) }
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", []byte("refilled")))
	e, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("refilled"), e.Artifact)
	assert.Equal(t, base.Add(2*time.Hour), e.StoredAt)
}

func TestPostgresSurfacesErrors(t *testing.T) {
	db := &fakeQuerier{execErr: errors.New("connection refused")}
	store := NewPostgres(db, 0)
	err := store.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert entry")
}

package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStable(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	a := Fingerprint(img, "make the background white")
	b := Fingerprint(append([]byte(nil), img...), "make the background white")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^imgedit:[0-9a-f]{64}$`, a)
}

func TestFingerprintSeparatesInputs(t *testing.T) {
	img := []byte("image-bytes")
	base := Fingerprint(img, "add soft shadows")
	variants := map[string]string{
		"trailing space": Fingerprint(img, "add soft shadows "),
		"case":           Fingerprint(img, "Add soft shadows"),
		"image byte":     Fingerprint([]byte("image-bytez"), "add soft shadows"),
		"shifted split":  Fingerprint([]byte("image-bytesa"), "dd soft shadows"),
	}
	for name, key := range variants {
		assert.NotEqual(t, base, key, name)
	}
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	lru, err := NewLRU(8)
	require.NoError(t, err)
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"ttl":    NewTTL(time.Hour),
		"lru":    lru,
		"file":   fs,
	}
}

func TestStoresRoundTripAndWriteOnce(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			key := Fingerprint([]byte("img"), name)

			_, found, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Set(ctx, key, []byte("first")))
			require.NoError(t, store.Set(ctx, key, []byte("second")))

			e, found, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []byte("first"), e.Artifact)
			assert.Equal(t, key, e.Key)
			assert.False(t, e.StoredAt.IsZero())

			require.NoError(t, store.Delete(ctx, key))
			_, found, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStoresRejectEmptyKey(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		assert.Error(t, store.Set(context.Background(), "", []byte("x")), name)
	}
}

func TestMemoryConcurrentWritersKeepOneValue(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(ctx, "k", []byte(fmt.Sprintf("v%d", i)))
			_, _, _ = store.Get(ctx, "k")
		}(i)
	}
	wg.Wait()

	first, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	again, _, _ := store.Get(ctx, "k")
	assert.True(t, bytes.Equal(first.Artifact, again.Artifact))
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("abc")))
	e, _, _ := store.Get(ctx, "k")
	e.Artifact[0] = 'z'
	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again.Artifact)
}

func TestTTLExpires(t *testing.T) {
	store := NewTTL(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	_, found, _ := store.Get(ctx, "k")
	require.True(t, found)

	time.Sleep(50 * time.Millisecond)
	_, found, _ = store.Get(ctx, "k")
	assert.False(t, found)
}

func TestLRUEvictsOldest(t *testing.T) {
	store, err := NewLRU(2)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	_, _, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, "c", []byte("3")))

	_, foundA, _ := store.Get(ctx, "a")
	_, foundB, _ := store.Get(ctx, "b")
	assert.True(t, foundA)
	assert.False(t, foundB)
	assert.Equal(t, 2, store.Len())
}

func TestSanitizeKey(t *testing.T) {
	got, err := sanitizeKey("imgedit:ab/../cd")
	require.NoError(t, err)
	assert.Equal(t, "imgedit_ab____cd", got)

	_, err = sanitizeKey("  ")
	assert.Error(t, err)
	_, err = sanitizeKey("../")
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{name: "default", cfg: Config{}, want: &Memory{}},
		{name: "ttl", cfg: Config{Eviction: "ttl", TTL: time.Minute}, want: &TTL{}},
		{name: "lru", cfg: Config{Eviction: "LRU", MaxEntries: 4}, want: &LRU{}},
		{name: "file", cfg: Config{Backend: "file", Dir: t.TempDir()}, want: &FileStore{}},
		{name: "ttl without duration", cfg: Config{Eviction: "ttl"}, wantErr: true},
		{name: "lru without size", cfg: Config{Eviction: "lru"}, wantErr: true},
		{name: "file ttl", cfg: Config{Backend: "file", Eviction: "ttl", TTL: time.Minute, Dir: t.TempDir()}, wantErr: true},
		{name: "redis without client", cfg: Config{Backend: "redis"}, wantErr: true},
		{name: "postgres lru", cfg: Config{Backend: "postgres", Eviction: "lru", Postgres: &fakeQuerier{}}, wantErr: true},
		{name: "unknown", cfg: Config{Backend: "s3"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := New(ctx, tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.want, store)
		})
	}
}

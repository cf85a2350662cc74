package library

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "articles.json")
	store, err := NewStore(path, 1000, fixedClock{at: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}, &seqIDGen{}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	records, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreAddAndRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	added, err := store.Add("Cell growth study", []string{"A. Author"}, "An abstract", "https://example.org/p", "body text")
	require.NoError(t, err)
	require.Equal(t, "id-1", added.ID)

	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Cell growth study", records[0].Title)
	require.Equal(t, []string{"A. Author"}, records[0].Authors)
}

func TestStoreSaveIsAtomicReplacement(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Add("First", nil, "", "", "")
	require.NoError(t, err)

	// No temp files should survive a save.
	entries, err := os.ReadDir(filepath.Dir(store.path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "articles.json", entries[0].Name())
}

func TestStoreUpdateInPlace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	added, err := store.Add("Needs text", nil, "", "https://example.org/p", "")
	require.NoError(t, err)

	added.Text = "filled in later by the content scan"
	require.NoError(t, store.Update(added))

	got, err := store.Get(added.ID)
	require.NoError(t, err)
	require.Equal(t, "filled in later by the content scan", got.Text)

	require.Error(t, store.Update(Record{ID: "missing"}))
}

func TestStoreDeleteVariants(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := store.Now()
	require.NoError(t, store.Append([]Record{
		NewFailed("f-1", "Failed one", "https://example.org/1", "timeout", now),
		NewManual("m-1", "Kept", nil, "has abstract", "", "", now, 1000),
		NewManual("m-2", "Empty", nil, "", "", "", now, 1000),
	}))

	require.NoError(t, store.DeleteFailed())
	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, store.DeleteEmpty())
	records, err = store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "m-1", records[0].ID)

	require.NoError(t, store.DeleteAll())
	records, err = store.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreDeleteByID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := store.Now()
	require.NoError(t, store.Append([]Record{
		NewManual("m-1", "Keep", nil, "", "", "", now, 1000),
		NewManual("m-2", "Drop", nil, "", "", "", now, 1000),
	}))

	require.NoError(t, store.Delete("m-2"))
	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "m-1", records[0].ID)

	err = store.Delete("m-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSeenURLs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := store.Now()
	require.NoError(t, store.Append([]Record{
		NewManual("a", "A", nil, "", "https://example.org/a", "", now, 1000),
		NewManual("b", "B", nil, "", "", "", now, 1000),
	}))

	seen, err := store.SeenURLs()
	require.NoError(t, err)
	require.Contains(t, seen, "https://example.org/a")
	require.Len(t, seen, 1)
}

func TestStoreUnknownFieldsSurviveRewrite(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	raw := `[{"id":"x","title":"T","text":"","created_at":"2025-01-02T03:04:05Z","venue":"unknown field"}]`
	require.NoError(t, os.WriteFile(store.path, []byte(raw), 0o600))

	records, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(records))

	data, err := os.ReadFile(store.path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"venue"`)
}

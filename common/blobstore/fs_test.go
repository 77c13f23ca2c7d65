package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fieldsense/audioingest/common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFSStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return store
}

func TestFSStore_PutExistsOpen(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	ok, err := store.Exists(ctx, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.Put(ctx, "dev1_20240101_120000_a.wav", strings.NewReader("RIFF....WAVE"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	ok, err = store.Exists(ctx, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := ReadAll(ctx, store, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(data))
}

func TestFSStore_PutReplacesContent(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	require.NoError(t, PutBytes(ctx, store, "meta.json", []byte(`{"v":1}`)))
	require.NoError(t, PutBytes(ctx, store, "meta.json", []byte(`{"v":2}`)))

	data, err := ReadAll(ctx, store, "meta.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))
}

func TestFSStore_CreateRefusesExistingName(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	n, err := store.Create(ctx, "dev1_20240101_120000_a.wav", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = store.Create(ctx, "dev1_20240101_120000_a.wav", strings.NewReader("second"))
	assert.ErrorIs(t, err, errs.Conflict)

	data, err := ReadAll(ctx, store, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestFSStore_ConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, "same.wav", strings.NewReader("RIFF"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, errs.Conflict)
	}
	assert.Equal(t, 1, created)
}

func TestFSStore_FailedPutLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	_, err := store.Put(ctx, "broken.wav", io.MultiReader(strings.NewReader("partial"), errReader{}))
	require.Error(t, err)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))

	ok, err := store.Exists(ctx, "broken.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must be cleaned up")
}

func TestFSStore_OpenMissing(t *testing.T) {
	store := newTestFSStore(t)

	_, err := store.Open(context.Background(), "nope.wav")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestFSStore_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	for _, name := range []string{"", "../escape.wav", "a/b.wav", ".hidden", `a\b.wav`} {
		_, err := store.Put(ctx, name, strings.NewReader("x"))
		assert.ErrorIs(t, err, errs.Validation, "name %q", name)

		_, err = store.Exists(ctx, name)
		assert.ErrorIs(t, err, errs.Validation, "name %q", name)
	}
}

func TestFSStore_ConcurrentWritersToDistinctNames(t *testing.T) {
	ctx := context.Background()
	store := newTestFSStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "dev" + string(rune('a'+i)) + "_meta.json"
			_, err := store.Put(ctx, name, strings.NewReader(name))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 16)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

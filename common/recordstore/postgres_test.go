package recordstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/db"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPostgres connects using the POSTGRES_* environment and skips when no
// server is reachable.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	cfg, err := config.Load("recordstore-test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg, logger.Discard())
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	store := NewPostgres(database)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres_InsertIdempotentAndLatest(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()

	device := "pgtest-" + uuid.NewString()[:8]
	rec := testRecord(device, device+"_20240101_120000_a.wav")
	rec.IdempotencyKey = uuid.NewString()

	first, inserted, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Positive(t, first.ID)

	again, inserted, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, first.IngestedAt.Equal(again.IngestedAt))

	latest, err := store.LatestForDevice(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	_, err = store.LatestForDevice(ctx, "pgtest-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, errs.NotFound)

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.MaxID, first.ID)
}

func TestPostgres_IngestedAtOrderedUnderConcurrentInserts(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()

	before, err := store.Version(ctx)
	require.NoError(t, err)

	prefix := "pgorder-" + uuid.NewString()[:8]
	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := testRecord(fmt.Sprintf("%s-%d", prefix, w), fmt.Sprintf("%s_%d_%d.wav", prefix, w, i))
				rec.IdempotencyKey = uuid.NewString()
				_, _, err := store.Insert(ctx, rec)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	records, err := store.ListNewestFirst(ctx)
	require.NoError(t, err)

	var fresh []*models.UploadRecord
	for _, rec := range records {
		if rec.ID > before.MaxID {
			fresh = append(fresh, rec)
		}
	}
	require.GreaterOrEqual(t, len(fresh), writers*perWriter)
	requireIngestedAtOrdered(t, fresh)
}

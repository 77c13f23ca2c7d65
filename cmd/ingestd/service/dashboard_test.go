package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldsense/audioingest/common/cache"
	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/db"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/fieldsense/audioingest/common/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultLocation = Location{Lat: 6.5244, Lng: 3.3792}

func float(v float64) *float64 { return &v }

func epoch(v int64) *int64 { return &v }

// listCounter counts full scans of the wrapped store.
type listCounter struct {
	recordstore.Store
	lists atomic.Int32
}

func (l *listCounter) ListNewestFirst(ctx context.Context) ([]*models.UploadRecord, error) {
	l.lists.Add(1)
	return l.Store.ListNewestFirst(ctx)
}

func newTestDashboard(t *testing.T, withCache bool) (*DashboardService, *listCounter) {
	t.Helper()

	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:", logger.Discard())
	require.NoError(t, err)
	store := &listCounter{Store: recordstore.NewSQLite(sqlDB)}
	t.Cleanup(func() { _ = store.Close() })

	var c cache.Cache
	if withCache {
		mc := cache.NewMemoryCache(logger.Discard(), time.Minute)
		t.Cleanup(func() { _ = mc.Close() })
		c = mc
	}

	rule, err := NewStatusRule(config.DefaultStatusRule, 10*time.Minute)
	require.NoError(t, err)

	return NewDashboardService(store, c, rule, defaultLocation, time.Minute, logger.Discard()), store
}

func commit(t *testing.T, store recordstore.Store, device, filename string, lat, lng *float64) *models.UploadRecord {
	t.Helper()
	meta := filename + "_meta.json"
	rec, inserted, err := store.Insert(context.Background(), &models.UploadRecord{
		DeviceID:       device,
		Filename:       filename,
		MetadataFile:   &meta,
		StartTime:      epoch(1704110400),
		Latitude:       lat,
		Longitude:      lng,
		IdempotencyKey: "key-" + filename,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return rec
}

func TestFoldRecords(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	meta := "m.json"

	// Newest first, as the store returns them
	records := []*models.UploadRecord{
		{ID: 4, DeviceID: "dev2", Filename: "dev2_c.wav", IngestedAt: at.Add(3 * time.Minute)},
		{ID: 3, DeviceID: "dev1", Filename: "dev1_b.wav", MetadataFile: &meta, Latitude: float(7.1), IngestedAt: at.Add(2 * time.Minute), StartTime: epoch(42)},
		{ID: 2, DeviceID: "dev2", Filename: "dev2_a.wav", Latitude: float(1), Longitude: float(2), IngestedAt: at.Add(time.Minute)},
		{ID: 1, DeviceID: "dev1", Filename: "dev1_a.wav", Latitude: float(9), Longitude: float(9), IngestedAt: at},
	}

	devices := FoldRecords(records, defaultLocation)
	require.Len(t, devices, 2)

	dev2 := devices[0]
	assert.Equal(t, "dev2", dev2.UserID)
	assert.Equal(t, "/api/uploads/dev2_c.wav", dev2.LatestAudio)
	assert.Equal(t, at.Add(3*time.Minute), dev2.LastSeen)
	// Newest record had no coordinates; older ones are not consulted
	assert.Equal(t, defaultLocation, dev2.Location)
	assert.Nil(t, dev2.SessionStart)
	require.Len(t, dev2.Uploads, 2)
	assert.Equal(t, "dev2_c.wav", dev2.Uploads[0].Filename)
	assert.Equal(t, "dev2_a.wav", dev2.Uploads[1].Filename)

	dev1 := devices[1]
	assert.Equal(t, "dev1", dev1.UserID)
	assert.Equal(t, "/api/uploads/dev1_b.wav", dev1.LatestAudio)
	assert.Equal(t, Location{Lat: 7.1, Lng: defaultLocation.Lng}, dev1.Location)
	require.NotNil(t, dev1.SessionStart)
	assert.Equal(t, int64(42), *dev1.SessionStart)
	require.Len(t, dev1.Uploads, 2)
	assert.Equal(t, &meta, dev1.Uploads[0].MetadataFile)
}

func TestFoldRecords_Empty(t *testing.T) {
	devices := FoldRecords(nil, defaultLocation)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestUploadURL_EscapesNames(t *testing.T) {
	assert.Equal(t, "/api/uploads/dev1_20240101_120000_a.wav", UploadURL("dev1_20240101_120000_a.wav"))
	assert.Equal(t, "/api/uploads/dev1_20240101_120000_my%20clip.wav", UploadURL("dev1_20240101_120000_my clip.wav"))
}

func TestDashboardView_EmptyStore(t *testing.T) {
	s, _ := newTestDashboard(t, true)

	view, err := s.View(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, view.TotalUsers)
	assert.Equal(t, 0, view.Stats.TotalRecordings)
	assert.NotNil(t, view.Users)
	assert.Empty(t, view.Users)
	assert.NotNil(t, view.ActiveSessions)
	assert.Equal(t, "connected", view.ConnectionStatus)
}

func TestDashboardView_TwoDevices(t *testing.T) {
	s, store := newTestDashboard(t, true)

	commit(t, store, "dev1", "dev1_20240101_120000_a.wav", float(6.6), float(3.4))
	commit(t, store, "dev2", "dev2_20240101_120001_b.wav", nil, nil)

	view, err := s.View(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, view.TotalUsers)
	assert.Equal(t, 2, view.Stats.TotalUsers)
	assert.Equal(t, 2, view.Stats.TotalRecordings)
	require.Len(t, view.Users, 2)

	// Most recent activity first
	assert.Equal(t, "dev2", view.Users[0].UserID)
	assert.Equal(t, defaultLocation, view.Users[0].Location)
	assert.Equal(t, "dev1", view.Users[1].UserID)
	assert.Equal(t, Location{Lat: 6.6, Lng: 3.4}, view.Users[1].Location)

	for _, u := range view.Users {
		assert.Len(t, u.Uploads, 1)
		assert.Equal(t, StatusActive, u.Status)
	}
	assert.ElementsMatch(t, []string{"dev1", "dev2"}, view.ActiveSessions)
	assert.Equal(t, 2, view.ActiveSessionsCount)
}

func TestDashboardView_IdleAfterActiveWindow(t *testing.T) {
	s, store := newTestDashboard(t, false)
	commit(t, store, "dev1", "dev1_a.wav", nil, nil)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	view, err := s.View(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Users, 1)
	assert.Equal(t, StatusIdle, view.Users[0].Status)
	assert.Equal(t, 0, view.ActiveSessionsCount)
	assert.Empty(t, view.ActiveSessions)
}

func TestDashboardView_CacheFollowsRecordSet(t *testing.T) {
	ctx := context.Background()
	s, store := newTestDashboard(t, true)

	commit(t, store, "dev1", "dev1_a.wav", nil, nil)

	_, err := s.View(ctx)
	require.NoError(t, err)
	_, err = s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.lists.Load(), "unchanged record set is served from cache")

	// A new commit changes the version, so the next read sees it
	commit(t, store, "dev1", "dev1_b.wav", nil, nil)

	view, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.lists.Load())
	require.Len(t, view.Users, 1)
	assert.Equal(t, "/api/uploads/dev1_b.wav", view.Users[0].LatestAudio)
	assert.Len(t, view.Users[0].Uploads, 2)
}

func TestDashboardView_WithoutCacheAlwaysFolds(t *testing.T) {
	ctx := context.Background()
	s, store := newTestDashboard(t, false)

	_, err := s.View(ctx)
	require.NoError(t, err)
	_, err = s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.lists.Load())
}

func TestDashboardLatest(t *testing.T) {
	ctx := context.Background()
	s, store := newTestDashboard(t, false)

	commit(t, store, "dev1", "dev1_20240101_120000_a.wav", nil, nil)
	commit(t, store, "dev1", "dev1_20240101_120500_b.wav", nil, nil)

	latest, err := s.Latest(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "dev1_20240101_120500_b.wav", latest.Filename)
	assert.Equal(t, "/api/uploads/dev1_20240101_120500_b.wav", latest.URL)

	_, err = s.Latest(ctx, "ghost")
	assert.True(t, errors.Is(err, errs.NotFound), "got %v", err)

	_, err = s.Latest(ctx, "")
	assert.True(t, errors.Is(err, errs.Validation), "got %v", err)
}

func TestDashboardFlatList(t *testing.T) {
	s, store := newTestDashboard(t, false)

	first := commit(t, store, "dev1", "dev1_a.wav", nil, nil)
	commit(t, store, "dev2", "dev2_b.wav", nil, nil)

	entries, err := s.FlatList(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "dev2", entries[0].DeviceID)
	assert.Equal(t, "dev1_a.wav", entries[1].AudioFile)
	assert.Equal(t, "dev1_a.wav_meta.json", entries[1].MetadataFile)
	assert.Equal(t, first.IngestedAt.UTC().Format(LegacyTimeLayout), entries[1].Timestamp)
}

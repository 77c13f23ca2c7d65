package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/fieldsense/audioingest/common/cache"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/fieldsense/audioingest/common/recordstore"
)

// UploadsPath is the route prefix that serves stored blobs
const UploadsPath = "/api/uploads/"

// LegacyTimeLayout formats timestamps in the flat dashboard list
const LegacyTimeLayout = "2006-01-02 15:04:05"

// Location is a device position
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UploadView is one record in a device's upload history
type UploadView struct {
	Filename     string    `json:"filename"`
	MetadataFile *string   `json:"metadata_file"`
	Timestamp    time.Time `json:"timestamp"`
	StartTime    *int64    `json:"start_time"`
	EndTime      *int64    `json:"end_time"`
}

// DeviceView is the aggregated state of one device
type DeviceView struct {
	UserID           string       `json:"user_id"`
	Status           string       `json:"status"`
	Location         Location     `json:"location"`
	LatestAudio      string       `json:"latest_audio"`
	LastSeen         time.Time    `json:"last_seen"`
	SessionStart     *int64       `json:"session_start"`
	CurrentSessionID *string      `json:"current_session_id"`
	Uploads          []UploadView `json:"uploads"`
}

// DashboardStats summarizes the view
type DashboardStats struct {
	TotalUsers      int `json:"total_users"`
	ActiveSessions  int `json:"active_sessions"`
	TotalRecordings int `json:"total_recordings"`
}

// DashboardView is the response of the dashboard endpoint
type DashboardView struct {
	TotalUsers          int            `json:"total_users"`
	ActiveSessionsCount int            `json:"active_sessions_count"`
	ActiveSessions      []string       `json:"active_sessions"`
	ConnectionStatus    string         `json:"connection_status"`
	Users               []DeviceView   `json:"users"`
	Stats               DashboardStats `json:"stats"`
	LastUpdated         time.Time      `json:"last_updated"`
}

// LatestAudio points at a device's newest recording
type LatestAudio struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// FlatEntry is one row of the legacy dashboard list
type FlatEntry struct {
	DeviceID     string `json:"device_id"`
	MetadataFile string `json:"metadata_file"`
	AudioFile    string `json:"audio_file"`
	Timestamp    string `json:"timestamp"`
}

// UploadURL is the download path for a stored blob
func UploadURL(filename string) string {
	return UploadsPath + url.PathEscape(filename)
}

// FoldRecords groups records into per-device views. records must be ordered
// newest first; the result keeps that order, so devices are listed by most
// recent activity and each device's uploads run newest first. The newest
// record of a device sets its latest audio, last seen time, session start and
// location; a missing coordinate falls back to defaults. Status is left
// empty.
func FoldRecords(records []*models.UploadRecord, defaults Location) []DeviceView {
	devices := make([]DeviceView, 0)
	index := make(map[string]int)

	for _, rec := range records {
		upload := UploadView{
			Filename:     rec.Filename,
			MetadataFile: rec.MetadataFile,
			Timestamp:    rec.IngestedAt,
			StartTime:    rec.StartTime,
			EndTime:      rec.EndTime,
		}

		i, seen := index[rec.DeviceID]
		if !seen {
			loc := defaults
			if rec.Latitude != nil {
				loc.Lat = *rec.Latitude
			}
			if rec.Longitude != nil {
				loc.Lng = *rec.Longitude
			}

			devices = append(devices, DeviceView{
				UserID:       rec.DeviceID,
				Location:     loc,
				LatestAudio:  UploadURL(rec.Filename),
				LastSeen:     rec.IngestedAt,
				SessionStart: rec.StartTime,
				Uploads:      make([]UploadView, 0, 1),
			})
			i = len(devices) - 1
			index[rec.DeviceID] = i
		}

		devices[i].Uploads = append(devices[i].Uploads, upload)
	}

	return devices
}

// DashboardService builds the aggregated per-device view
type DashboardService struct {
	records  recordstore.Store
	cache    cache.Cache
	rule     *StatusRule
	defaults Location
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewDashboardService creates a new dashboard service. c may be nil, in which
// case every view is folded from the store.
func NewDashboardService(records recordstore.Store, c cache.Cache, rule *StatusRule, defaults Location, cacheTTL time.Duration, log *logger.Logger) *DashboardService {
	return &DashboardService{
		records:  records,
		cache:    c,
		rule:     rule,
		defaults: defaults,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

// View returns the per-device view of every committed record
func (s *DashboardService) View(ctx context.Context) (*DashboardView, error) {
	devices, err := s.devices(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	active := make([]string, 0)
	recordings := 0

	for i := range devices {
		d := &devices[i]
		d.Status, err = s.rule.Evaluate(d.LastSeen, now, len(d.Uploads))
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.UserID, err)
		}
		if d.Status == StatusActive {
			active = append(active, d.UserID)
		}
		recordings += len(d.Uploads)
	}

	return &DashboardView{
		TotalUsers:          len(devices),
		ActiveSessionsCount: len(active),
		ActiveSessions:      active,
		ConnectionStatus:    "connected",
		Users:               devices,
		Stats: DashboardStats{
			TotalUsers:      len(devices),
			ActiveSessions:  len(active),
			TotalRecordings: recordings,
		},
		LastUpdated: now,
	}, nil
}

// devices returns the folded device list, from cache when the record set has
// not changed since it was last folded.
func (s *DashboardService) devices(ctx context.Context) ([]DeviceView, error) {
	if s.cache == nil {
		return s.fold(ctx)
	}

	version, err := s.records.Version(ctx)
	if err != nil {
		return nil, err
	}
	key := "dashboard:" + version.String()

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("dashboard cache read failed", "key", key, "error", err)
	}
	if ok {
		var devices []DeviceView
		if err := json.Unmarshal(data, &devices); err == nil {
			return devices, nil
		}
		s.log.Warn("discarding unreadable dashboard cache entry", "key", key)
	}

	devices, err := s.fold(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(devices); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			s.log.Warn("dashboard cache write failed", "key", key, "error", err)
		}
	}

	return devices, nil
}

func (s *DashboardService) fold(ctx context.Context) ([]DeviceView, error) {
	records, err := s.records.ListNewestFirst(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Debug("folding dashboard view", "records", len(records))
	return FoldRecords(records, s.defaults), nil
}

// Latest returns the newest recording of a device
func (s *DashboardService) Latest(ctx context.Context, deviceID string) (*LatestAudio, error) {
	if err := models.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	rec, err := s.records.LatestForDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return &LatestAudio{
		Filename: rec.Filename,
		URL:      UploadURL(rec.Filename),
	}, nil
}

// FlatList returns every record newest first in the legacy dashboard shape
func (s *DashboardService) FlatList(ctx context.Context) ([]FlatEntry, error) {
	records, err := s.records.ListNewestFirst(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]FlatEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, FlatEntry{
			DeviceID:     rec.DeviceID,
			MetadataFile: rec.MetadataFileName(),
			AudioFile:    rec.Filename,
			Timestamp:    rec.IngestedAt.UTC().Format(LegacyTimeLayout),
		})
	}
	return entries, nil
}

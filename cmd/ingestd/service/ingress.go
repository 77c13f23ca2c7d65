package service

import (
	"context"
	"io"
	"time"

	"github.com/fieldsense/audioingest/common/blobstore"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/fieldsense/audioingest/common/queue"
	"github.com/google/uuid"
)

// IngressService accepts device uploads. Binaries go straight to the blob
// store; metadata is validated and queued for the ingestion worker.
type IngressService struct {
	blobs blobstore.Store
	queue queue.Queue
	log   *logger.Logger
	now   func() time.Time
}

// NewIngressService creates a new ingress service
func NewIngressService(blobs blobstore.Store, q queue.Queue, log *logger.Logger) *IngressService {
	return &IngressService{
		blobs: blobs,
		queue: q,
		log:   log,
		now:   time.Now,
	}
}

// SubmitBinary stores a recording as {device_id}_{yyyyMMdd_HHmmss}_{name}
// and returns the stored name. It never touches the record store. A second
// upload that maps to the same name is refused with a conflict error rather
// than replacing audio a record may already point at.
func (s *IngressService) SubmitBinary(ctx context.Context, deviceID, originalName string, r io.Reader) (string, error) {
	if err := models.ValidateDeviceID(deviceID); err != nil {
		return "", err
	}

	filename, err := models.BinaryName(deviceID, originalName, s.now())
	if err != nil {
		return "", err
	}

	size, err := s.blobs.Create(ctx, filename, r)
	if err != nil {
		s.log.WithDeviceID(deviceID).Error("failed to store binary", "filename", filename, "error", err)
		return "", err
	}

	s.log.WithDeviceID(deviceID).Info("binary stored", "filename", filename, "bytes", size)
	return filename, nil
}

// SubmitMetadata validates a metadata document, checks that the recording it
// names was uploaded, and enqueues an ingest job. It returns once the job is
// queued; the record is committed later by the worker.
func (s *IngressService) SubmitMetadata(ctx context.Context, deviceID string, raw []byte) (*models.IngestJob, error) {
	const op = "submit metadata"

	if err := models.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	doc, document, err := models.ParseMetadata(raw, deviceID)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateBlobName(doc.Filename); err != nil {
		return nil, err
	}

	exists, err := s.blobs.Exists(ctx, doc.Filename)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.NotFoundf(op, "audio file %q not found", doc.Filename)
	}

	now := s.now()
	jobID := uuid.NewString()
	job := &models.IngestJob{
		ID:               jobID,
		DeviceID:         deviceID,
		BinaryFilename:   doc.Filename,
		MetadataFilename: models.MetadataName(deviceID, jobID, now),
		Metadata:         *doc,
		Document:         document,
		EnqueuedAt:       now.UTC(),
	}

	log := s.log.WithDeviceID(deviceID).WithJobID(jobID)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Error("failed to enqueue job", "error", err)
		if errs.KindOf(err) == errs.KindInternal {
			return nil, errs.WrapStorage(op, err)
		}
		return nil, err
	}

	log.Info("metadata queued",
		"binary", job.BinaryFilename,
		"metadata_file", job.MetadataFilename,
	)
	return job, nil
}

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
)

// S3Options configures an S3Store. Endpoint switches to path-style
// addressing for MinIO and other S3-compatible servers.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps blobs as objects under a key prefix.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	log    *logger.Logger
}

// NewS3Store loads AWS configuration and builds the client.
func NewS3Store(ctx context.Context, opts S3Options, log *logger.Logger) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info("s3 blob store configured", "bucket", opts.Bucket, "prefix", opts.Prefix, "endpoint", opts.Endpoint)

	return newS3Store(client, opts.Bucket, opts.Prefix, log), nil
}

func newS3Store(client s3API, bucket, prefix string, log *logger.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, log: log}
}

// Backend implements Store.
func (s *S3Store) Backend() string {
	return "s3"
}

func (s *S3Store) key(name string) string {
	return s.prefix + name
}

// Put spools r to a temp file so the upload has a known length and a
// seekable body, then issues a single PutObject.
func (s *S3Store) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	return s.put(ctx, "s3 put", name, r, false)
}

// Create is a conditional PutObject (If-None-Match: *); an existing key is a
// conflict.
func (s *S3Store) Create(ctx context.Context, name string, r io.Reader) (int64, error) {
	return s.put(ctx, "s3 create", name, r, true)
}

func (s *S3Store) put(ctx context.Context, op, name string, r io.Reader, exclusive bool) (int64, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return 0, err
	}

	spool, err := os.CreateTemp("", "blob-*")
	if err != nil {
		return 0, errs.WrapStorage(op, err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	n, err := io.Copy(spool, r)
	if err != nil {
		return 0, errs.WrapStorage(op, fmt.Errorf("spool %s: %w", name, err))
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, errs.WrapStorage(op, err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          spool,
		ContentLength: aws.Int64(n),
	}
	if exclusive {
		in.IfNoneMatch = aws.String("*")
	}

	_, err = s.client.PutObject(ctx, in)
	if err != nil {
		if exclusive && isS3PreconditionFailed(err) {
			return 0, errs.Conflictf(op, "blob %q already exists", name)
		}
		return 0, errs.WrapStorage(op, fmt.Errorf("put object %s: %w", name, err))
	}

	s.log.Debug("s3 object stored", "key", s.key(name), "size", n)
	return n, nil
}

// Exists issues a HeadObject.
func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, errs.WrapStorage("s3 head", err)
}

// Open streams the object body.
func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errs.NotFoundf("s3 get", "blob %q not found", name)
		}
		return nil, errs.WrapStorage("s3 get", err)
	}
	return out.Body, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// isS3PreconditionFailed reports a failed If-None-Match. Concurrent
// conditional writes to one key may also answer ConditionalRequestConflict.
func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

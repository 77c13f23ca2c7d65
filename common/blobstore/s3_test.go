package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and answers like S3 for missing keys.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := *in.Bucket + "/" + *in.Key
	if _, exists := f.objects[key]; exists && in.IfNoneMatch != nil && *in.IfNoneMatch == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_RoundTripUnderPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, "recordings", "uploads/", logger.Discard())

	n, err := store.Put(ctx, "dev1_20240101_120000_a.wav", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Contains(t, fake.objects, "recordings/uploads/dev1_20240101_120000_a.wav")

	ok, err := store.Exists(ctx, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := ReadAll(ctx, store, "dev1_20240101_120000_a.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestS3Store_Missing(t *testing.T) {
	ctx := context.Background()
	store := newS3Store(newFakeS3(), "recordings", "", logger.Discard())

	ok, err := store.Exists(ctx, "ghost.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Open(ctx, "ghost.wav")
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestS3Store_PutFailureIsStorageError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("503 slow down")
	store := newS3Store(fake, "recordings", "", logger.Discard())

	_, err := store.Put(context.Background(), "a.wav", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))
}

func TestS3Store_CreateRefusesExistingKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, "recordings", "", logger.Discard())

	_, err := store.Create(ctx, "a.wav", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = store.Create(ctx, "a.wav", strings.NewReader("second"))
	assert.ErrorIs(t, err, errs.Conflict)

	data, err := ReadAll(ctx, store, "a.wav")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

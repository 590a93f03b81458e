package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaler.json"), []byte(`{"a":1}`), 0o644))

	store, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	data, err := ReadAll(ctx, store, "scaler.json")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(data))

	ok, err := store.Exists(ctx, "scaler.json")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Exists(ctx, "missing.json")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = ReadAll(ctx, store, "missing.json")
	require.ErrorIs(t, err, os.ErrNotExist)

	require.Equal(t, filepath.Join(dir, "scaler.json"), store.Location("scaler.json"))
}

func TestNewLocalRejectsMissingDir(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewLocal(file)
	require.Error(t, err)
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"models/v1/encoder.json": []byte(`{"classes":[]}`),
	}}
	store := NewS3(fake, "artifacts", "/models/v1/")
	ctx := context.Background()

	data, err := ReadAll(ctx, store, "encoder.json")
	require.NoError(t, err)
	require.Equal(t, `{"classes":[]}`, string(data))
	require.Equal(t, "s3://artifacts/models/v1/encoder.json", store.Location("encoder.json"))

	ok, err := store.Exists(ctx, "encoder.json")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Exists(ctx, "classifier.json")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = ReadAll(ctx, store, "classifier.json")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestS3StoreWithoutPrefix(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"scaler.json": []byte("x")}}
	store := NewS3(fake, "b", "")
	require.Equal(t, "s3://b/scaler.json", store.Location("scaler.json"))

	data, err := ReadAll(context.Background(), store, "scaler.json")
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}

func TestS3StorePropagatesOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewS3(&fakeS3{getErr: boom}, "b", "")

	_, err := store.Read(context.Background(), "scaler.json")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestNewS3FromConfigRequiresBucket(t *testing.T) {
	_, err := NewS3FromConfig(context.Background(), S3Config{})
	require.Error(t, err)
}

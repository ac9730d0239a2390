package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/pkg/database"
)

const testKey = "stock_data/20250115/raw_data_20250115.csv"

// exerciseStore runs the BlobStore contract against any backend
func exerciseStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, testKey, []byte("symbol\nAAPL\n")))
	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "symbol\nAAPL\n", string(got))

	require.NoError(t, store.Put(ctx, testKey, []byte("symbol\nMSFT\n")))
	got, err = store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "symbol\nMSFT\n", string(got))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Equal(t, []string{testKey}, store.Keys())
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.Put(context.Background(), "k", data))
	data[0] = 'x'

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	exerciseStore(t, NewLocalStore(dir))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "stock_data", "20250115"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "raw_data_20250115.csv", entries[0].Name())
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	for _, key := range []string{"../outside.csv", "/etc/passwd", "."} {
		assert.Error(t, store.Put(context.Background(), key, []byte("x")), key)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLocalStore(t.TempDir()).Put(ctx, testKey, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	exerciseStore(t, NewS3Store(&fakeS3{objects: map[string][]byte{}}, "screener"))
}

func TestS3Store_PutError(t *testing.T) {
	store := NewS3Store(&fakeS3{objects: map[string][]byte{}, putErr: errors.New("connection reset")}, "screener")

	err := store.Put(context.Background(), testKey, []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "screener/"+testKey)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.NewFromURL(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	table := "dataset_blobs_test"
	store := NewPostgresStore(db.Pool, table)
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, "TRUNCATE "+table)
	require.NoError(t, err)

	exerciseStore(t, store)
}

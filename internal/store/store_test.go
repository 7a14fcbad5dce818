package store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket) + "/"
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		key := strings.TrimPrefix(k, bucket)
		if strings.HasPrefix(k, bucket) && strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	sqliteStore, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ensemble.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
		"s3":     NewS3StoreWithClient(newFakeS3(), "bucket", "/runs/"),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var missing doc
			ok, err := s.Load(ctx, "checkpoint/none", &missing)
			require.NoError(t, err)
			assert.False(t, ok, "missing key should load as not found")

			want := doc{Name: "plan", Count: 3, Tags: []string{"a", "b"}}
			require.NoError(t, s.Save(ctx, "checkpoint/p1", want))

			var got doc
			ok, err = s.Load(ctx, "checkpoint/p1", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			want.Count = 4
			require.NoError(t, s.Save(ctx, "checkpoint/p1", want))
			ok, err = s.Load(ctx, "checkpoint/p1", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 4, got.Count, "Save should overwrite")

			require.NoError(t, s.Save(ctx, "checkpoint/p2", doc{Name: "other"}))
			require.NoError(t, s.Save(ctx, "outputs/p1", doc{Name: "outputs"}))

			keys, err := s.List(ctx, "checkpoint/")
			require.NoError(t, err)
			assert.Equal(t, []string{"checkpoint/p1", "checkpoint/p2"}, keys)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.True(t, slices.IsSorted(all))
			assert.Len(t, all, 3)

			require.NoError(t, s.Delete(ctx, "checkpoint/p1"))
			ok, err = s.Load(ctx, "checkpoint/p1", &got)
			require.NoError(t, err)
			assert.False(t, ok, "deleted key should be gone")
			assert.NoError(t, s.Delete(ctx, "checkpoint/p1"), "deleting a missing key should succeed")

			assert.NoError(t, s.Close())
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	s := NewMemoryStore()
	for _, key := range []string{"", "/abs", "a/../b", "a//b", "./a", "a/", `a\b`} {
		err := s.Save(context.Background(), key, doc{})
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), CheckpointKey("p1"), doc{Name: "x"}))
	assert.FileExists(t, filepath.Join(dir, "checkpoint", "p1.json"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{Config{Dir: dir}, "*store.FileStore", false},
		{Config{Backend: BackendSQLite, Dir: filepath.Join(dir, "nested")}, "*store.SQLiteStore", false},
		{Config{Backend: BackendMemory}, "*store.MemoryStore", false},
		{Config{Backend: BackendFile}, "", true},
		{Config{Backend: BackendS3}, "", true},
		{Config{Backend: "redis"}, "", true},
	}
	for _, tt := range tests {
		s, err := Open(ctx, tt.cfg)
		if tt.wantErr {
			assert.Error(t, err, "Open(%+v)", tt.cfg)
			continue
		}
		require.NoError(t, err, "Open(%+v)", tt.cfg)
		assert.Equal(t, tt.want, typeName(s))
		_ = s.Close()
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *FileStore:
		return "*store.FileStore"
	case *SQLiteStore:
		return "*store.SQLiteStore"
	case *MemoryStore:
		return "*store.MemoryStore"
	case *S3Store:
		return "*store.S3Store"
	}
	return "unknown"
}

package s3

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/pkg/logger"
)

type fakeObjects struct {
	objects  map[string][]byte
	modified map[string]time.Time
	deleted  []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.modified[aws.ToString(in.Key)] = time.Now()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		mod := f.modified[key]
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: &mod})
	}
	return out, nil
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := newS3Storage(newFakeObjects(), "docs", logger.NewNop())

	key, err := s.Store(ctx, bytes.NewReader([]byte("payload")), "uploads/t1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "uploads/t1/a.txt", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestGetMissingKey(t *testing.T) {
	s := newS3Storage(newFakeObjects(), "docs", logger.NewNop())
	_, err := s.Get(context.Background(), "results/none.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCleanupBefore(t *testing.T) {
	fake := newFakeObjects()
	fake.objects["old"] = []byte("x")
	fake.modified["old"] = time.Now().Add(-48 * time.Hour)
	fake.objects["new"] = []byte("y")
	fake.modified["new"] = time.Now()

	s := newS3Storage(fake, "docs", logger.NewNop())
	require.NoError(t, s.CleanupBefore(context.Background(), time.Now().Add(-24*time.Hour)))

	assert.Equal(t, []string{"old"}, fake.deleted)
	assert.Contains(t, fake.objects, "new")
}

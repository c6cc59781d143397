package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"kptnexport/pkg/config"
	"kptnexport/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploaderUpload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Salat.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0644))

	fake := newFakeS3()
	u, err := NewS3Uploader(fake, "recipes-bucket", "/exports/", logger.NewNopLogger())
	require.NoError(t, err)

	loc, err := u.Upload(context.Background(), file, "Salat.pdf")
	require.NoError(t, err)
	assert.Equal(t, "s3://recipes-bucket/exports/Salat.pdf", loc)
	assert.Equal(t, []byte("%PDF"), fake.objects["recipes-bucket/exports/Salat.pdf"])
	assert.Equal(t, "application/pdf", fake.types["recipes-bucket/exports/Salat.pdf"])

	img := filepath.Join(dir, "r1_step01_abcd1234.jpg")
	require.NoError(t, os.WriteFile(img, []byte{0xff, 0xd8}, 0644))
	loc, err = u.Upload(context.Background(), img, "images/r1_step01_abcd1234.jpg")
	require.NoError(t, err)
	assert.Equal(t, "s3://recipes-bucket/exports/images/r1_step01_abcd1234.jpg", loc)
	assert.Equal(t, "image/jpeg", fake.types["recipes-bucket/exports/images/r1_step01_abcd1234.jpg"])
}

func TestS3UploaderErrors(t *testing.T) {
	_, err := NewS3Uploader(newFakeS3(), "", "x", nil)
	assert.True(t, errors.Is(err, ErrNoBucket))

	_, err = NewFromConfig(context.Background(), config.UploadConfig{Enabled: true}, nil)
	assert.True(t, errors.Is(err, ErrNoBucket))

	fake := newFakeS3()
	u, err := NewS3Uploader(fake, "b", "", logger.NewNopLogger())
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "missing.pdf")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "a.md")
	require.NoError(t, os.WriteFile(file, []byte("# a"), 0644))
	fake.err = errors.New("access denied")
	_, err = u.Upload(context.Background(), file, "a.md")
	assert.ErrorContains(t, err, "access denied")
}

func TestKey(t *testing.T) {
	u, _ := NewS3Uploader(newFakeS3(), "b", "", nil)
	key, err := u.Key("a.md")
	require.NoError(t, err)
	assert.Equal(t, "a.md", key)

	u, _ = NewS3Uploader(newFakeS3(), "b", "recipes/", nil)
	key, err = u.Key("images/./x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "recipes/images/x.jpg", key)

	for _, name := range []string{"", "../a.md", "/etc/passwd", "images/../../a.md"} {
		_, err := u.Key(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.pdf":         "application/pdf",
		"a.MD":          "text/markdown; charset=utf-8",
		"manifest.json": "application/json",
		"x.jpeg":        "image/jpeg",
		"x.bin":         "application/octet-stream",
	}
	for file, want := range tests {
		assert.Equal(t, want, ContentType(file), file)
	}
}

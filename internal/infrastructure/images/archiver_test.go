package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsHarvester/internal/logging"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Save(_ context.Context, name string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" {
		return errors.New(m.failOn)
	}
	m.objects[name] = data
	return nil
}

func (m *memoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	small := pngBytes(t, 40, 20)
	wide := pngBytes(t, 300, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.png":
			_, _ = w.Write(small)
		case "/wide.png":
			_, _ = w.Write(wide)
		case "/not-an-image":
			_, _ = w.Write([]byte("<html>nope</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestArchiveTranscodesToJPEG(t *testing.T) {
	server := imageServer(t)
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverOptions{Client: server.Client(), MaxWidth: 100}, logging.Discard())

	id, ok := archiver.Archive(context.Background(), server.URL+"/wide.png?size=large")
	require.True(t, ok)
	require.NotEmpty(t, id)
	assert.NotContains(t, id, ".")

	data, found := store.objects[id+Extension]
	require.True(t, found)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 33, cfg.Height)
}

func TestArchiveFailuresReturnFalse(t *testing.T) {
	server := imageServer(t)
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverOptions{Client: server.Client()}, logging.Discard())

	for _, path := range []string{"/missing.png", "/not-an-image"} {
		id, ok := archiver.Archive(context.Background(), server.URL+path)
		assert.False(t, ok, path)
		assert.Empty(t, id, path)
	}
	assert.Empty(t, store.objects)

	limited := NewArchiver(store, ArchiverOptions{Client: server.Client(), MaxBytes: 10}, logging.Discard())
	_, ok := limited.Archive(context.Background(), server.URL+"/small.png")
	assert.False(t, ok)

	store.failOn = "disk full"
	_, ok = archiver.Archive(context.Background(), server.URL+"/small.png")
	assert.False(t, ok)
}

func TestArchiveAllKeepsSubmissionOrder(t *testing.T) {
	server := imageServer(t)
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverOptions{Client: server.Client()}, logging.Discard())

	urls := []string{server.URL + "/small.png", server.URL + "/missing.png", server.URL + "/wide.png"}
	ids := archiver.ArchiveAll(context.Background(), urls)
	require.Len(t, ids, 2)
	assert.Len(t, store.objects, 2)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(store.objects[ids[0]+Extension]))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)

	archiver.Discard(context.Background(), ids)
	assert.Empty(t, store.objects)

	assert.Empty(t, archiver.ArchiveAll(context.Background(), nil))
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "abc.jpg", []byte("data"), "image/jpeg"))
	got, err := os.ReadFile(filepath.Join(dir, "abc.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	require.NoError(t, store.Save(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg"))
	_, err = os.Stat(filepath.Join(dir, "escape.jpg"))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "abc.jpg"))
	require.NoError(t, store.Delete(context.Background(), "abc.jpg"))
	_, err = os.Stat(filepath.Join(dir, "abc.jpg"))
	assert.True(t, os.IsNotExist(err))
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []*s3.DeleteObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	client := &fakeS3{}
	store := newS3Store(client, "news-media", "images")

	require.NoError(t, store.Save(context.Background(), "abc.jpg", []byte("data"), "image/jpeg"))
	require.Len(t, client.puts, 1)
	assert.Equal(t, "news-media", aws.ToString(client.puts[0].Bucket))
	assert.Equal(t, "images/abc.jpg", aws.ToString(client.puts[0].Key))
	assert.Equal(t, "image/jpeg", aws.ToString(client.puts[0].ContentType))

	require.NoError(t, store.Delete(context.Background(), "abc.jpg"))
	require.Len(t, client.deletes, 1)
	assert.Equal(t, "images/abc.jpg", aws.ToString(client.deletes[0].Key))
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{})
	assert.Error(t, err)
}

package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	deny    bool
	headers http.Header
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied.</Message><Resource>`+r.URL.Path+`</Resource><RequestId>1</RequestId></Error>`)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = string(body)
		f.headers = r.Header.Clone()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func newTestStore(t *testing.T, fake *fakeS3) *MinioStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewMinioStore(Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	return s
}

func TestUploadReportsProgressAndPublicURL(t *testing.T) {
	fake := &fakeS3{puts: map[string]string{}}
	s := newTestStore(t, fake)

	var seen []int
	url, err := s.Upload(context.Background(), "post-images", "u1/post-1-abcde.png", []byte("png-bytes"), "image/png", func(p int) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/post-images/u1/post-1-abcde.png", url)
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	_, ok := fake.puts["/post-images/u1/post-1-abcde.png"]
	assert.True(t, ok)
	assert.Equal(t, "image/png", fake.headers.Get("Content-Type"))
}

func TestUploadFailureIsUploadError(t *testing.T) {
	s := newTestStore(t, &fakeS3{puts: map[string]string{}, deny: true})

	_, err := s.Upload(context.Background(), "post-images", "u1/x.png", []byte("x"), "image/png", nil)
	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusForbidden, ue.Status)
	assert.Equal(t, "Access Denied.", ue.Message)
	assert.Equal(t, http.StatusForbidden, ue.HTTPStatus())
}

func TestProgressReaderIsMonotonic(t *testing.T) {
	var seen []int
	p := &progressReader{total: 10, report: func(v int) { seen = append(seen, v) }}
	_, _ = p.Read(make([]byte, 5))
	_, _ = p.Read(make([]byte, 0))
	_, _ = p.Read(make([]byte, 5))
	p.finish()
	assert.Equal(t, []int{50, 99, 100}, seen)
}

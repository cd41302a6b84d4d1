// Package assets stores uploaded post images in S3-compatible object storage.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadError is a failed upload with an HTTP-like status.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%d): %s", e.Status, e.Message)
}

func (e *UploadError) HTTPStatus() int {
	return e.Status
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	// PublicURL prefixes returned object URLs; defaults to the endpoint.
	PublicURL string
}

// MinioStore uploads objects and reports their public URL.
type MinioStore struct {
	client    *minio.Client
	publicURL string

	mu      sync.Mutex
	buckets map[string]bool
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	public := strings.TrimRight(opts.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + opts.Endpoint
	}
	return &MinioStore{client: client, publicURL: public, buckets: map[string]bool{}}, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	known := s.buckets[bucket]
	s.mu.Unlock()
	if known {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	s.mu.Lock()
	s.buckets[bucket] = true
	s.mu.Unlock()
	return nil
}

// Upload puts data at bucket/path. onProgress sees increasing percentages
// and a final 100 on success. Failures are returned as *UploadError.
func (s *MinioStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, onProgress func(int)) (string, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	progress := &progressReader{total: int64(len(data)), report: onProgress}
	_, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    progress,
	})
	if err != nil {
		return "", toUploadError(err)
	}
	progress.finish()
	return s.PublicURL(bucket, path), nil
}

func (s *MinioStore) PublicURL(bucket, path string) string {
	return s.publicURL + "/" + bucket + "/" + strings.TrimLeft(path, "/")
}

func toUploadError(err error) error {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &UploadError{Status: http.StatusGatewayTimeout, Message: err.Error()}
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		msg := resp.Message
		if msg == "" {
			msg = resp.Code
		}
		return &UploadError{Status: resp.StatusCode, Message: msg}
	}
	return &UploadError{Status: http.StatusBadGateway, Message: err.Error()}
}

// progressReader receives the byte counts minio-go has sent.
type progressReader struct {
	mu     sync.Mutex
	total  int64
	sent   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent += int64(len(b))
	if p.total > 0 {
		pct := int(p.sent * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return len(b), nil
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = 100
	p.report(100)
}

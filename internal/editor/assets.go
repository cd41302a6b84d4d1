package editor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/gabriel-vasile/mimetype"
)

// File is one image picked for upload. Callers restrict files to images.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadBatch is the progress of a running batch. Percent never decreases
// while Active and drops back to zero when the batch ends.
type UploadBatch struct {
	Active  bool `json:"active"`
	Total   int  `json:"total"`
	Done    int  `json:"done"`
	Current int  `json:"current"`
	Percent int  `json:"percent"`
}

// AggregatePercent is the batch percentage after done complete files with
// the next one at current percent.
func AggregatePercent(done, current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done*100+current) / float64(total)))
}

// InsertAssets uploads files one after another and places an embed for
// each at the restored selection, advancing the caret past it. The first
// failure ends the batch; embeds already placed stay in the document and
// the returned *NetworkError says how many there are.
func (s *Session) InsertAssets(ctx context.Context, files []File, onProgress func(UploadBatch)) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	if err := s.guard(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if s.upload.Active {
		s.mu.Unlock()
		return 0, ErrUploadInProgress
	}
	store, bucket := s.opts.Assets, s.opts.Bucket
	if store == nil {
		s.mu.Unlock()
		return 0, &NetworkError{Op: "upload", Status: http.StatusServiceUnavailable, Err: errors.New("asset store not configured")}
	}
	s.restore()
	if !s.doc.ValidSelection(s.sel) {
		s.sel = doc.Caret(s.doc.End())
	}
	s.upload = UploadBatch{Active: true, Total: len(files)}
	userID := s.opts.Identity.UserID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.upload = UploadBatch{}
		s.mu.Unlock()
	}()
	report := func(b UploadBatch) {
		if onProgress != nil {
			onProgress(b)
		}
	}

	n := len(files)
	for i, f := range files {
		s.mu.Lock()
		s.upload.Done = i
		s.upload.Current = 0
		s.mu.Unlock()

		url, err := store.Upload(ctx, bucket, s.assetPath(userID, f), f.Data, contentTypeOf(f), func(pct int) {
			pct = max(0, min(100, pct))
			s.mu.Lock()
			s.upload.Current = max(s.upload.Current, pct)
			s.upload.Percent = max(s.upload.Percent, AggregatePercent(i, s.upload.Current, n))
			b := s.upload
			s.mu.Unlock()
			report(b)
		})
		if err != nil {
			s.opts.Metrics.Upload(false)
			return i, &NetworkError{Op: "upload", Status: statusOf(err), Err: err, Inserted: i}
		}
		s.opts.Metrics.Upload(true)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return i, ErrClosed
		}
		if err := s.collapse(); err != nil {
			s.sel = doc.Caret(s.doc.End())
		}
		p, err := doc.InsertEmbed(s.doc, s.sel.Focus, url, "image")
		if err != nil {
			s.mu.Unlock()
			return i, err
		}
		s.sel = doc.Caret(p)
		s.upload.Done = i + 1
		s.upload.Current = 0
		s.upload.Percent = max(s.upload.Percent, AggregatePercent(i+1, 0, n))
		b := s.upload
		s.mu.Unlock()
		s.notify()
		report(b)
	}
	return n, nil
}

// assetPath is "{user}/post-{unix ms}-{5 random base36 chars}{ext}".
func (s *Session) assetPath(userID string, f File) string {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if ext == "" {
		ext = mimetype.Detect(f.Data).Extension()
	}
	return fmt.Sprintf("%s/post-%d-%s%s", userID, s.opts.Now().UnixMilli(), randomSuffix(5), ext)
}

func contentTypeOf(f File) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return mimetype.Detect(f.Data).String()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}

func statusOf(err error) int {
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	return 0
}

package editor

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Submission is the frozen document handed to the publisher.
type Submission struct {
	UserID string
	Markup string
	Text   string
}

type Publisher interface {
	Publish(ctx context.Context, sub Submission) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, sub Submission) error

func (f PublisherFunc) Publish(ctx context.Context, sub Submission) error {
	return f(ctx, sub)
}

// Submit publishes the document. While it runs the document is read-only
// and onProgress sees a simulated ramp that holds at 90; it gets 100 on
// success, after which the composer is emptied, or 0 on failure, after which
// the user may retry.
func (s *Session) Submit(ctx context.Context, pub Publisher, onProgress func(int)) error {
	s.mu.Lock()
	if err := s.guard(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.upload.Active {
		s.mu.Unlock()
		return ErrUploadInProgress
	}
	if s.doc.IsEmpty() {
		s.mu.Unlock()
		return &ValidationError{Field: "content", Message: "Write something first."}
	}
	s.submitting = true
	sub := Submission{UserID: s.opts.Identity.UserID, Markup: s.doc.Markup(), Text: s.doc.Text()}
	interval := s.opts.ProgressInterval
	s.mu.Unlock()

	report := func(pct int) {
		if onProgress != nil {
			onProgress(pct)
		}
	}
	report(0)
	stop := startProgress(interval, report)
	err := pub.Publish(ctx, sub)
	stop()

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		report(0)
		return &NetworkError{Op: "submit", Status: statusOf(err), Err: err}
	}
	s.resetLocked()
	s.mu.Unlock()
	report(100)
	s.notify()
	return nil
}

// startProgress ticks a fake progress value until stop is called. stop
// returns once the ticker goroutine has exited.
func startProgress(interval time.Duration, report func(int)) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pct := 0.0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				pct += rand.Float64()*18 + 4
				if pct > 90 {
					pct = 90
				}
				report(int(math.Round(pct)))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

package editor

import (
	"context"
	"sync"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
)

// GIFPanel is what the picker shows.
type GIFPanel struct {
	Open    bool      `json:"open"`
	Query   string    `json:"query"`
	Loading bool      `json:"loading"`
	Results []gif.GIF `json:"results"`
}

// GIFPicker searches the GIF provider as the user types. Searches are
// debounced and only the latest one may fill the panel.
type GIFPicker struct {
	provider GIFProvider
	ctx      context.Context
	timeout  time.Duration
	log      logger.Logger
	metrics  *metrics.Metrics
	q        *querier

	mu      sync.Mutex
	open    bool
	query   string
	gen     uint64
	loading bool
	results []gif.GIF
}

func newGIFPicker(ctx context.Context, opts Options) *GIFPicker {
	g := &GIFPicker{
		provider: opts.GIFs,
		ctx:      ctx,
		timeout:  opts.LookupTimeout,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	g.q = newQuerier(opts.GIFDelay, g.fetch)
	return g
}

// Open shows the panel and loads trending GIFs straight away.
func (g *GIFPicker) Open() {
	g.mu.Lock()
	g.open = true
	g.query = ""
	g.results = nil
	g.gen++
	g.loading = g.provider != nil
	g.mu.Unlock()
	g.q.Stop()
	g.q.start(g.fetch)
}

// SetQuery updates the search text; the search itself waits for a pause.
func (g *GIFPicker) SetQuery(query string) {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return
	}
	g.query = query
	g.gen++
	g.loading = g.provider != nil
	g.mu.Unlock()
	g.q.Schedule()
}

// Close hides the panel. A search already sent finishes but is ignored.
func (g *GIFPicker) Close() {
	g.mu.Lock()
	g.open = false
	g.gen++
	g.loading = false
	g.results = nil
	g.mu.Unlock()
	g.q.Stop()
}

func (g *GIFPicker) State() GIFPanel {
	g.mu.Lock()
	defer g.mu.Unlock()
	results := make([]gif.GIF, len(g.results))
	copy(results, g.results)
	return GIFPanel{Open: g.open, Query: g.query, Loading: g.loading, Results: results}
}

func (g *GIFPicker) find(id string) (gif.GIF, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.results {
		if r.ID == id {
			return r, true
		}
	}
	return gif.GIF{}, false
}

func (g *GIFPicker) fetch() {
	g.mu.Lock()
	if !g.open || g.provider == nil {
		g.mu.Unlock()
		return
	}
	gen, query := g.gen, g.query
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
	found, err := g.provider.Search(ctx, query)
	cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || !g.open {
		g.metrics.StaleResponse("gif")
		return
	}
	g.loading = false
	if err != nil {
		g.log.Debug("editor: gif search failed", "query", query, "err", err)
		g.results = nil
		return
	}
	g.results = found
}

func (g *GIFPicker) stop() {
	g.q.Close()
}

// GIFs returns the session's picker.
func (s *Session) GIFs() *GIFPicker {
	return s.gifs
}

// OpenGIFPicker captures the selection and opens the picker.
func (s *Session) OpenGIFPicker() {
	s.ToolbarPointerDown()
	s.gifs.Open()
}

// InsertGIF places the picked GIF at the restored selection and closes the
// picker.
func (s *Session) InsertGIF(id string) error {
	picked, ok := s.gifs.find(id)
	if !ok {
		return &ValidationError{Field: "gif", Message: "Unknown GIF."}
	}
	err := s.mutate(func() error {
		s.restore()
		if err := s.collapse(); err != nil {
			s.sel = doc.Caret(s.doc.End())
		}
		s.focused = true
		p, err := doc.InsertEmbed(s.doc, s.sel.Focus, picked.FullURL, "gif")
		if err != nil {
			return err
		}
		s.sel = doc.Caret(p)
		return nil
	})
	if err == nil {
		s.gifs.Close()
	}
	return err
}

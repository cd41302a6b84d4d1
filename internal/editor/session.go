// Package editor owns one composer: the document being written, the live
// and saved selections, and the asynchronous flows (mention lookup, asset
// upload, GIF search, submit) that feed into it.
package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/directory"
	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/ShahafRSeza/feed-social/internal/link"
	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
	"github.com/ShahafRSeza/feed-social/internal/sanitize"
)

const (
	DefaultMentionDelay     = 150 * time.Millisecond
	DefaultMentionLimit     = directory.MaxResults
	DefaultGIFDelay         = 400 * time.Millisecond
	DefaultProgressInterval = 180 * time.Millisecond
	DefaultLookupTimeout    = 5 * time.Second
)

// Key names understood by HandleKey.
const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyEnter     = "Enter"
	KeyTab       = "Tab"
	KeyEscape    = "Escape"
	KeyBackspace = "Backspace"
)

type Identity struct {
	UserID   string
	Username string
}

type Directory interface {
	Lookup(ctx context.Context, prefix string, limit int) ([]directory.Profile, error)
}

type AssetStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, onProgress func(int)) (string, error)
}

type GIFProvider interface {
	Search(ctx context.Context, query string) ([]gif.GIF, error)
}

type Options struct {
	// Identity is nil when nobody is signed in.
	Identity         *Identity
	Directory        Directory
	Assets           AssetStore
	Bucket           string
	GIFs             GIFProvider
	MentionDelay     time.Duration
	MentionLimit     int
	GIFDelay         time.Duration
	ProgressInterval time.Duration
	LookupTimeout    time.Duration
	// OnChange runs after every document mutation, outside the session lock.
	OnChange func()
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (o *Options) withDefaults() {
	if o.MentionDelay <= 0 {
		o.MentionDelay = DefaultMentionDelay
	}
	if o.MentionLimit <= 0 || o.MentionLimit > directory.MaxResults {
		o.MentionLimit = DefaultMentionLimit
	}
	if o.GIFDelay <= 0 {
		o.GIFDelay = DefaultGIFDelay
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	if o.Logger == nil {
		o.Logger = logger.FromContext(context.Background())
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type savedSelection struct {
	sel doc.Selection
	rev uint64
}

// Session is a single composer. All methods are safe for concurrent use;
// network calls run without holding the session lock.
type Session struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	doc        *doc.Document
	sel        doc.Selection
	focused    bool
	saved      *savedSelection
	typing     doc.TypingStyle
	submitting bool
	closed     bool
	mention    mentionState
	upload     UploadBatch

	mentions *querier
	gifs     *GIFPicker
}

func New(opts Options) *Session {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		doc:    doc.New(),
	}
	s.sel = doc.Caret(s.doc.Start())
	s.mentions = newQuerier(opts.MentionDelay, s.runMentionLookup)
	s.gifs = newGIFPicker(ctx, opts)
	return s
}

// Hydrate turns stored post content into a document for editing. Stored
// content passes the render pipeline first, so legacy posts open as rich
// documents and nothing unsafe reaches the editor.
func Hydrate(content string) (*doc.Document, error) {
	markup, _ := sanitize.Render(content)
	return doc.Parse(markup)
}

// Load replaces the document, placing the caret at its end.
func (s *Session) Load(d *doc.Document) {
	s.mu.Lock()
	s.doc = d
	s.sel = doc.Caret(d.End())
	s.saved = nil
	s.typing = doc.TypingStyle{}
	s.cancelMention()
	s.mu.Unlock()
	s.notify()
}

// Reset empties the composer.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) resetLocked() {
	s.doc = doc.New()
	s.sel = doc.Caret(s.doc.Start())
	s.saved = nil
	s.typing = doc.TypingStyle{}
	s.cancelMention()
}

// Close stops background work and waits for it to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.mentions.Close()
	s.gifs.stop()
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

func (s *Session) guard() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.opts.Identity == nil:
		return ErrUnauthenticated
	case s.submitting:
		return ErrSubmitInProgress
	}
	return nil
}

// mutate runs fn under the lock after the common checks and reports a
// change when the document revision moved.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	if err := s.guard(); err != nil {
		s.mu.Unlock()
		return err
	}
	rev := s.doc.Rev()
	err := fn()
	changed := s.doc.Rev() != rev
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return err
}

// Select moves the live selection to linear offsets and focuses the surface.
func (s *Session) Select(anchor, focus int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSelection(doc.Selection{Anchor: s.doc.PositionAt(anchor), Focus: s.doc.PositionAt(focus)})
}

// SelectRange moves the live selection to sel.
func (s *Session) SelectRange(sel doc.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.doc.ValidSelection(sel) {
		return ErrNoDraftSelection
	}
	s.setSelection(sel)
	return nil
}

func (s *Session) setSelection(sel doc.Selection) {
	s.sel = sel
	s.focused = true
	s.typing = doc.TypingStyle{}
	s.detectMention()
}

// Blur records that focus left the editable surface.
func (s *Session) Blur() {
	s.mu.Lock()
	s.focused = false
	s.mu.Unlock()
}

// Capture remembers the live selection when it lies inside the surface.
func (s *Session) Capture() {
	s.mu.Lock()
	s.capture()
	s.mu.Unlock()
}

func (s *Session) capture() {
	if !s.focused || !s.doc.ValidSelection(s.sel) {
		return
	}
	s.saved = &savedSelection{sel: s.sel, rev: s.doc.Rev()}
}

// Restore re-applies the captured selection. It works once per capture and
// not at all when the document changed since.
func (s *Session) Restore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restore()
}

func (s *Session) restore() bool {
	saved := s.saved
	s.saved = nil
	if saved == nil || saved.rev != s.doc.Rev() || !s.doc.ValidSelection(saved.sel) {
		return false
	}
	s.sel = saved.sel
	s.focused = true
	return true
}

// ToolbarPointerDown is called when a toolbar control is pressed. Focus
// stays on the surface, so the capture reflects the user's range.
func (s *Session) ToolbarPointerDown() {
	s.Capture()
}

// Apply runs a formatting command over the restored selection. Inline
// commands on a caret change the style of text typed next instead.
func (s *Session) Apply(cmd doc.Command, value string) error {
	return s.mutate(func() error {
		s.restore()
		if !s.doc.ValidSelection(s.sel) {
			return nil
		}
		s.focused = true
		if cmd.IsInline() && s.doc.IsCollapsed(s.sel) {
			switch cmd {
			case doc.CmdColor:
				s.typing.Color = value
			case doc.CmdFont:
				s.typing.Font = value
			default:
				m, _ := cmd.Mark()
				s.typing = s.typing.ToggleMark(m)
			}
			return nil
		}
		sel, err := doc.Apply(s.doc, s.sel, cmd, value)
		if errors.Is(err, doc.ErrOutsideDocument) {
			return nil
		}
		if err != nil {
			return err
		}
		s.sel = sel
		return nil
	})
}

// collapse deletes a ranged selection, leaving a caret.
func (s *Session) collapse() error {
	if !s.doc.ValidSelection(s.sel) {
		return ErrNoDraftSelection
	}
	if s.doc.IsCollapsed(s.sel) {
		s.sel = doc.Caret(s.sel.Focus)
		return nil
	}
	p, err := doc.DeleteRange(s.doc, s.sel)
	if err != nil {
		return err
	}
	s.sel = doc.Caret(p)
	return nil
}

func (s *Session) InsertText(text string) error {
	return s.mutate(func() error {
		if err := s.insertText(text); err != nil {
			return err
		}
		s.detectMention()
		return nil
	})
}

func (s *Session) insertText(text string) error {
	if err := s.collapse(); err != nil {
		return err
	}
	p, err := doc.InsertText(s.doc, s.sel.Focus, text, s.typing)
	if err != nil {
		return err
	}
	s.sel = doc.Caret(p)
	return nil
}

// Paste inserts text only; line breaks become new lines.
func (s *Session) Paste(text string) error {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return s.mutate(func() error {
		for i, line := range strings.Split(text, "\n") {
			if i > 0 {
				p, err := doc.InsertParagraph(s.doc, s.sel.Focus)
				if err != nil {
					return err
				}
				s.sel = doc.Caret(p)
			}
			if err := s.insertText(line); err != nil {
				return err
			}
		}
		s.detectMention()
		return nil
	})
}

func (s *Session) InsertParagraph() error {
	return s.mutate(func() error {
		if err := s.collapse(); err != nil {
			return err
		}
		p, err := doc.InsertParagraph(s.doc, s.sel.Focus)
		if err != nil {
			return err
		}
		s.sel = doc.Caret(p)
		s.cancelMention()
		return nil
	})
}

// Backspace deletes a ranged selection, or the unit before the caret.
func (s *Session) Backspace() error {
	return s.mutate(func() error {
		if !s.doc.ValidSelection(s.sel) {
			return ErrNoDraftSelection
		}
		if !s.doc.IsCollapsed(s.sel) {
			if err := s.collapse(); err != nil {
				return err
			}
		} else {
			p, err := doc.Backspace(s.doc, s.sel.Focus)
			if err != nil {
				return err
			}
			s.sel = doc.Caret(p)
		}
		s.detectMention()
		return nil
	})
}

// InsertLink links the restored range to rawURL, or inserts a new link
// labelled label (or the URL) at the caret.
func (s *Session) InsertLink(label, rawURL string) error {
	return s.mutate(func() error {
		if strings.TrimSpace(rawURL) == "" {
			return &ValidationError{Field: "url", Message: "Enter a URL."}
		}
		href := link.Normalize(rawURL)
		if !link.IsValid(href) {
			return &ValidationError{Field: "url", Message: "Invalid URL."}
		}
		s.restore()
		if !s.doc.ValidSelection(s.sel) {
			s.sel = doc.Caret(s.doc.End())
		}
		s.focused = true
		if !s.doc.IsCollapsed(s.sel) {
			sel, err := doc.Apply(s.doc, s.sel, doc.CmdLink, href)
			if err != nil {
				return err
			}
			s.sel = sel
			return nil
		}
		p, err := doc.InsertLink(s.doc, s.sel.Focus, href, label)
		if err != nil {
			return err
		}
		s.sel = doc.Caret(p)
		return nil
	})
}

// HandleKey routes navigation keys to an open mention list and falls back
// to editing keys. It reports whether the key was consumed.
func (s *Session) HandleKey(key string) (bool, error) {
	s.mu.Lock()
	if s.mention.phase == MentionSuggesting {
		switch key {
		case KeyArrowDown:
			s.mention.move(1)
			s.mu.Unlock()
			return true, nil
		case KeyArrowUp:
			s.mention.move(-1)
			s.mu.Unlock()
			return true, nil
		case KeyEscape:
			s.cancelMention()
			s.mu.Unlock()
			return true, nil
		case KeyEnter, KeyTab:
			if len(s.mention.candidates) > 0 {
				username := s.mention.candidates[s.mention.active].Username
				s.mu.Unlock()
				return true, s.CommitMention(username)
			}
		}
	}
	s.mu.Unlock()
	switch key {
	case KeyEnter:
		return true, s.InsertParagraph()
	case KeyBackspace:
		return true, s.Backspace()
	}
	return false, nil
}

// Range is a selection as linear offsets.
type Range struct {
	Anchor int `json:"anchor"`
	Focus  int `json:"focus"`
}

// Active reports which toggles are on at the caret.
type Active struct {
	Bold        bool `json:"bold"`
	Italic      bool `json:"italic"`
	Strike      bool `json:"strike"`
	BulletList  bool `json:"bulletList"`
	OrderedList bool `json:"orderedList"`
	Indent      bool `json:"indent"`
	Link        bool `json:"link"`
}

type TypingState struct {
	Bold   bool   `json:"bold"`
	Italic bool   `json:"italic"`
	Strike bool   `json:"strike"`
	Color  string `json:"color,omitempty"`
	Font   string `json:"font,omitempty"`
}

type State struct {
	Markup     string        `json:"markup"`
	Text       string        `json:"text"`
	Empty      bool          `json:"empty"`
	Rev        uint64        `json:"rev"`
	Selection  Range         `json:"selection"`
	Focused    bool          `json:"focused"`
	Active     Active        `json:"active"`
	Typing     TypingState   `json:"typing"`
	Mention    *MentionQuery `json:"mention,omitempty"`
	Upload     UploadBatch   `json:"upload"`
	Submitting bool          `json:"submitting"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Markup:     s.doc.Markup(),
		Text:       s.doc.Text(),
		Empty:      s.doc.IsEmpty(),
		Rev:        s.doc.Rev(),
		Focused:    s.focused,
		Mention:    s.mentionQuery(),
		Upload:     s.upload,
		Submitting: s.submitting,
		Typing: TypingState{
			Bold:   s.typing.Has(doc.MarkBold),
			Italic: s.typing.Has(doc.MarkItalic),
			Strike: s.typing.Has(doc.MarkStrike),
			Color:  s.typing.Color,
			Font:   s.typing.Font,
		},
	}
	if s.doc.ValidSelection(s.sel) {
		st.Selection = Range{Anchor: s.doc.OffsetOf(s.sel.Anchor), Focus: s.doc.OffsetOf(s.sel.Focus)}
		p := s.sel.Focus
		st.Active = Active{
			Bold:        s.doc.Within(p, doc.IsFormat(doc.MarkBold)) != nil,
			Italic:      s.doc.Within(p, doc.IsFormat(doc.MarkItalic)) != nil,
			Strike:      s.doc.Within(p, doc.IsFormat(doc.MarkStrike)) != nil,
			BulletList:  s.doc.Within(p, doc.IsList(false)) != nil,
			OrderedList: s.doc.Within(p, doc.IsList(true)) != nil,
			Indent:      s.doc.Within(p, doc.IsIndent) != nil,
			Link:        s.doc.Within(p, doc.IsAnchor) != nil,
		}
	}
	return st
}

// Document returns a fresh parse of the current markup, detached from the
// session.
func (s *Session) Document() (*doc.Document, error) {
	s.mu.Lock()
	markup := s.doc.Markup()
	s.mu.Unlock()
	return doc.Parse(markup)
}

package editor

import (
	"context"
	"unicode"

	"github.com/ShahafRSeza/feed-social/internal/directory"
	"github.com/ShahafRSeza/feed-social/internal/doc"
)

type MentionPhase string

const (
	MentionIdle       MentionPhase = "idle"
	MentionDetecting  MentionPhase = "detecting"
	MentionSuggesting MentionPhase = "suggesting"
)

// MentionQuery is the open suggestion list. TriggerOffset is the linear
// offset of the "@".
type MentionQuery struct {
	TriggerOffset int                 `json:"triggerOffset"`
	Query         string              `json:"query"`
	Candidates    []directory.Profile `json:"candidates"`
	ActiveIndex   int                 `json:"activeIndex"`
	Loading       bool                `json:"loading"`
}

type mentionState struct {
	phase      MentionPhase
	node       *doc.Node
	trigger    int
	query      string
	candidates []directory.Profile
	active     int
	loading    bool
	// gen identifies the latest query; answers to older ones are dropped.
	gen uint64
}

func (m *mentionState) move(delta int) {
	if len(m.candidates) == 0 {
		m.active = 0
		return
	}
	m.active += delta
	if m.active < 0 {
		m.active = 0
	}
	if m.active >= len(m.candidates) {
		m.active = len(m.candidates) - 1
	}
}

// scanMention looks backward from a caret for an "@" at the start of the
// text node or after whitespace. Whitespace before reaching one ends the
// scan.
func scanMention(d *doc.Document, sel doc.Selection) (*doc.Node, int, string, bool) {
	if !d.ValidSelection(sel) || !d.IsCollapsed(sel) {
		return nil, 0, "", false
	}
	p := sel.Focus
	r := []rune(p.Node.Text)[:p.Offset]
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return nil, 0, "", false
		}
		if r[i] == '@' {
			if i == 0 || unicode.IsSpace(r[i-1]) {
				return p.Node, i, string(r[i+1:]), true
			}
			return nil, 0, "", false
		}
	}
	return nil, 0, "", false
}

// detectMention runs after every text change or caret move.
func (s *Session) detectMention() {
	m := &s.mention
	wasSuggesting := m.phase == MentionSuggesting
	prevNode, prevTrigger, prevQuery := m.node, m.trigger, m.query

	m.phase = MentionDetecting
	node, trigger, query, ok := scanMention(s.doc, s.sel)
	if !ok {
		if wasSuggesting {
			s.cancelMention()
		}
		m.phase = MentionIdle
		return
	}
	if wasSuggesting && node == prevNode && trigger == prevTrigger && query == prevQuery {
		m.phase = MentionSuggesting
		return
	}
	if !wasSuggesting || node != prevNode || trigger != prevTrigger {
		m.candidates = nil
		m.active = 0
	}
	m.gen++
	m.phase = MentionSuggesting
	m.node = node
	m.trigger = trigger
	m.query = query
	m.loading = true
	s.mentions.Schedule()
}

// cancelMention drops pending input and any answer still on its way.
func (s *Session) cancelMention() {
	m := &s.mention
	if m.phase != MentionIdle && m.phase != "" {
		s.mentions.Stop()
	}
	gen := m.gen + 1
	*m = mentionState{phase: MentionIdle, gen: gen}
}

func (s *Session) mentionQuery() *MentionQuery {
	m := s.mention
	if m.phase != MentionSuggesting || m.node == nil || !s.doc.Contains(m.node) {
		return nil
	}
	candidates := make([]directory.Profile, len(m.candidates))
	copy(candidates, m.candidates)
	return &MentionQuery{
		TriggerOffset: s.doc.OffsetOf(doc.Position{Node: m.node, Offset: m.trigger}),
		Query:         m.query,
		Candidates:    candidates,
		ActiveIndex:   m.active,
		Loading:       m.loading,
	}
}

func (s *Session) runMentionLookup() {
	s.mu.Lock()
	if s.closed || s.mention.phase != MentionSuggesting {
		s.mu.Unlock()
		return
	}
	gen, query := s.mention.gen, s.mention.query
	dir, limit := s.opts.Directory, s.opts.MentionLimit
	s.mu.Unlock()

	var found []directory.Profile
	var err error
	if dir != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.LookupTimeout)
		found, err = dir.Lookup(ctx, query, limit)
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mention.gen != gen || s.mention.phase != MentionSuggesting {
		s.opts.Metrics.StaleResponse("mention")
		return
	}
	s.mention.loading = false
	if err != nil {
		s.opts.Logger.Debug("editor: mention lookup failed", "query", query, "err", err)
		found = nil
	}
	if len(found) > limit {
		found = found[:limit]
	}
	s.mention.candidates = found
	s.mention.active = 0
}

// CommitMention replaces the "@query" before the caret with a mention of
// username followed by a non-breaking space.
func (s *Session) CommitMention(username string) error {
	return s.mutate(func() error {
		m := s.mention
		if m.phase != MentionSuggesting || username == "" {
			return nil
		}
		if !s.doc.ValidSelection(s.sel) || !s.doc.IsCollapsed(s.sel) {
			s.cancelMention()
			return nil
		}
		caret := s.sel.Focus
		r := []rune(caret.Node.Text)
		if caret.Node != m.node || caret.Offset <= m.trigger || m.trigger >= len(r) || r[m.trigger] != '@' {
			s.cancelMention()
			return nil
		}
		p, err := doc.CommitMention(s.doc, m.node, m.trigger, caret.Offset, username)
		if err != nil {
			return err
		}
		s.sel = doc.Caret(p)
		s.focused = true
		s.cancelMention()
		return nil
	})
}

// SelectMention commits the candidate at index i.
func (s *Session) SelectMention(i int) error {
	s.mu.Lock()
	if s.mention.phase != MentionSuggesting || i < 0 || i >= len(s.mention.candidates) {
		s.mu.Unlock()
		return nil
	}
	username := s.mention.candidates[i].Username
	s.mu.Unlock()
	return s.CommitMention(username)
}

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/drafts"
	"github.com/ShahafRSeza/feed-social/internal/editor"
	"github.com/ShahafRSeza/feed-social/internal/sanitize"
	"github.com/ShahafRSeza/feed-social/internal/store"
	"github.com/ShahafRSeza/feed-social/internal/util"
	"github.com/gabriel-vasile/mimetype"
	"github.com/romdo/go-debounce"
)

// draftRecord is one live composer. It expires after a period without
// requests; its last state is then written to the draft store.
type draftRecord struct {
	id        string
	userID    string
	postID    string
	session   *editor.Session
	expiresAt time.Time
	autosave  func()
	stop      func()
}

type CreateDraftInput struct {
	// PostID opens an existing post for editing.
	PostID string `json:"postId"`
	// RestoreID reopens a draft saved by an earlier process.
	RestoreID string `json:"restoreId"`
}

type DraftSelectInput struct {
	Anchor int `json:"anchor"`
	Focus  int `json:"focus"`
}

type DraftCommandInput struct {
	Command string `json:"command"`
	Value   string `json:"value"`
}

type DraftLinkInput struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type DraftMentionInput struct {
	Index    *int   `json:"index"`
	Username string `json:"username"`
}

type DraftGIFPanelInput struct {
	Open  bool    `json:"open"`
	Query *string `json:"query"`
}

func (s *Service) CreateDraft(ctx context.Context, session Session, input CreateDraftInput) (map[string]any, error) {
	id := util.NewID("draft")
	postID := strings.TrimSpace(input.PostID)
	var initial *doc.Document

	switch {
	case strings.TrimSpace(input.RestoreID) != "":
		restoreID := strings.TrimSpace(input.RestoreID)
		if record, err := s.lookupDraft(session, restoreID); err == nil {
			return s.draftView(record, nil), nil
		}
		if s.drafts == nil {
			return nil, drafts.ErrNotFound
		}
		snap, err := s.drafts.Load(ctx, restoreID)
		if err != nil {
			return nil, err
		}
		if snap.UserID != session.UserID {
			return nil, drafts.ErrNotFound
		}
		parsed, err := doc.Parse(sanitize.Sanitize(snap.Markup))
		if err != nil {
			return nil, err
		}
		id, postID, initial = snap.ID, snap.PostID, parsed
	case postID != "":
		post, err := s.store.GetPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if post.UserID != session.UserID {
			return nil, forbidden("Only the author can edit this post")
		}
		parsed, err := editor.Hydrate(post.Content)
		if err != nil {
			return nil, err
		}
		initial = parsed
	}

	record := &draftRecord{id: id, userID: session.UserID, postID: postID}
	record.autosave, record.stop = debounce.NewWithMaxWait(s.autosaveWait, s.autosaveMaxWait, func() {
		s.saveDraft(record)
	})

	opts := s.editorOpts
	opts.Identity = &editor.Identity{UserID: session.UserID, Username: session.UserName}
	opts.Directory = s.directory
	opts.Assets = s.assets
	opts.Bucket = s.cfg.AssetBucket
	if s.gifs != nil && s.gifs.Enabled() {
		opts.GIFs = s.gifs
	}
	opts.Logger = s.log.With("draft_id", id)
	opts.Metrics = s.metrics
	opts.Now = s.now
	opts.OnChange = func() { record.autosave() }
	record.session = editor.New(opts)
	if initial != nil {
		record.session.Load(initial)
	}

	now := s.now()
	s.draftMu.Lock()
	expired := s.pruneDraftsLocked(now)
	record.expiresAt = now.Add(s.draftSessionTTL)
	s.draftSessions[id] = record
	s.draftMu.Unlock()
	s.expireDrafts(expired)

	s.log.Info("draft opened", "draft_id", id, "user_id", session.UserID, "post_id", postID)
	return s.draftView(record, nil), nil
}

func (s *Service) GetDraft(_ context.Context, session Session, draftID string) (map[string]any, error) {
	record, err := s.lookupDraft(session, draftID)
	if err != nil {
		return nil, err
	}
	return s.draftView(record, nil), nil
}

// ListDrafts returns the caller's saved drafts, including those of sessions
// that already expired.
func (s *Service) ListDrafts(ctx context.Context, session Session) (map[string]any, error) {
	items := make([]map[string]any, 0)
	if s.drafts == nil {
		return map[string]any{"drafts": items}, nil
	}
	snaps, err := s.drafts.ListByUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		items = append(items, map[string]any{
			"id":      snap.ID,
			"postId":  nilIfEmpty(snap.PostID),
			"markup":  sanitize.Sanitize(snap.Markup),
			"savedAt": snap.SavedAt,
		})
	}
	return map[string]any{"drafts": items}, nil
}

// DeleteDraft discards a draft, live or saved.
func (s *Service) DeleteDraft(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	s.draftMu.Lock()
	record, ok := s.draftSessions[draftID]
	if ok && record.userID == session.UserID {
		delete(s.draftSessions, draftID)
	} else {
		ok = false
	}
	s.draftMu.Unlock()
	if ok {
		record.stop()
		record.session.Close()
	}
	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, session.UserID, draftID); err != nil {
			return nil, err
		}
	}
	return map[string]any{"ok": true, "id": draftID}, nil
}

func (s *Service) DraftSelect(ctx context.Context, session Session, draftID string, input DraftSelectInput) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		ed.Select(input.Anchor, input.Focus)
		return nil
	})
}

func (s *Service) DraftBlur(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		ed.Blur()
		return nil
	})
}

func (s *Service) DraftToolbar(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		ed.ToolbarPointerDown()
		return nil
	})
}

func (s *Service) DraftInput(ctx context.Context, session Session, draftID, text string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.InsertText(text)
	})
}

func (s *Service) DraftPaste(ctx context.Context, session Session, draftID, text string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.Paste(text)
	})
}

func (s *Service) DraftParagraph(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.InsertParagraph()
	})
}

func (s *Service) DraftBackspace(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.Backspace()
	})
}

func (s *Service) DraftCommand(ctx context.Context, session Session, draftID string, input DraftCommandInput) (map[string]any, error) {
	cmd, ok := doc.ParseCommand(strings.TrimSpace(input.Command))
	if !ok {
		return nil, validationError("command", "Unknown command.")
	}
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.Apply(cmd, strings.TrimSpace(input.Value))
	})
}

func (s *Service) DraftLink(ctx context.Context, session Session, draftID string, input DraftLinkInput) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.InsertLink(input.Label, input.URL)
	})
}

func (s *Service) DraftKey(ctx context.Context, session Session, draftID, key string) (map[string]any, error) {
	record, err := s.lookupDraft(session, draftID)
	if err != nil {
		return nil, err
	}
	handled, err := record.session.HandleKey(key)
	if err != nil {
		return nil, err
	}
	return s.draftView(record, map[string]any{"handled": handled}), nil
}

func (s *Service) DraftMention(ctx context.Context, session Session, draftID string, input DraftMentionInput) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		if input.Index != nil {
			return ed.SelectMention(*input.Index)
		}
		if strings.TrimSpace(input.Username) == "" {
			return validationError("username", "username or index is required")
		}
		return ed.CommitMention(strings.TrimSpace(input.Username))
	})
}

func (s *Service) DraftGIFPanel(ctx context.Context, session Session, draftID string, input DraftGIFPanelInput) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		picker := ed.GIFs()
		if !input.Open {
			picker.Close()
			return nil
		}
		if !picker.State().Open {
			ed.OpenGIFPicker()
		}
		if input.Query != nil {
			picker.SetQuery(strings.TrimSpace(*input.Query))
		}
		return nil
	})
}

func (s *Service) DraftGIF(ctx context.Context, session Session, draftID, gifID string) (map[string]any, error) {
	return s.withDraft(session, draftID, func(ed *editor.Session) error {
		return ed.InsertGIF(strings.TrimSpace(gifID))
	})
}

// DraftAssets uploads images into the draft. Non-image files reject the
// whole batch before anything is sent.
func (s *Service) DraftAssets(ctx context.Context, session Session, draftID string, files []editor.File) (map[string]any, error) {
	if len(files) == 0 {
		return nil, validationError("files", "Choose at least one image.")
	}
	for i := range files {
		detected := mimetype.Detect(files[i].Data)
		if !strings.HasPrefix(detected.String(), "image/") {
			return nil, validationError("files", "Only images can be uploaded.")
		}
		files[i].ContentType = detected.String()
	}
	record, err := s.lookupDraft(session, draftID)
	if err != nil {
		return nil, err
	}
	inserted, err := record.session.InsertAssets(ctx, files, func(batch editor.UploadBatch) {
		s.log.Debug("draft upload progress", "draft_id", draftID, "percent", batch.Percent, "done", batch.Done, "total", batch.Total)
	})
	if err != nil {
		return nil, err
	}
	return s.draftView(record, map[string]any{"inserted": inserted}), nil
}

// SubmitDraft publishes the draft as a new post, or as an edit of the post
// it was opened from. A published draft is discarded.
func (s *Service) SubmitDraft(ctx context.Context, session Session, draftID string) (map[string]any, error) {
	record, err := s.lookupDraft(session, draftID)
	if err != nil {
		return nil, err
	}
	var published map[string]any
	pub := editor.PublisherFunc(func(ctx context.Context, sub editor.Submission) error {
		var err error
		if record.postID != "" {
			published, err = s.UpdatePost(ctx, session, record.postID, sub.Markup)
		} else {
			published, err = s.CreatePost(ctx, session, CreatePostInput{Kind: store.PostKindText, Content: sub.Markup})
		}
		return err
	})
	err = record.session.Submit(ctx, pub, func(pct int) {
		s.log.Debug("draft submit progress", "draft_id", draftID, "percent", pct)
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.DeleteDraft(ctx, session, draftID); err != nil {
		s.log.Warn("drafts: discard published draft", "draft_id", draftID, "err", err)
	}
	return map[string]any{"draftId": draftID, "post": published}, nil
}

// Close saves and stops every live draft.
func (s *Service) Close() {
	s.draftMu.Lock()
	records := make([]*draftRecord, 0, len(s.draftSessions))
	for key, record := range s.draftSessions {
		records = append(records, record)
		delete(s.draftSessions, key)
	}
	s.draftMu.Unlock()
	s.expireDrafts(records)
}

func (s *Service) withDraft(session Session, draftID string, fn func(*editor.Session) error) (map[string]any, error) {
	record, err := s.lookupDraft(session, draftID)
	if err != nil {
		return nil, err
	}
	if err := fn(record.session); err != nil {
		return nil, err
	}
	return s.draftView(record, nil), nil
}

// lookupDraft finds a live draft of the caller and extends its lifetime.
// Drafts of other users are reported as missing.
func (s *Service) lookupDraft(session Session, draftID string) (*draftRecord, error) {
	now := s.now()
	s.draftMu.Lock()
	expired := s.pruneDraftsLocked(now)
	record, ok := s.draftSessions[draftID]
	if ok && record.userID == session.UserID {
		record.expiresAt = now.Add(s.draftSessionTTL)
	}
	s.draftMu.Unlock()
	s.expireDrafts(expired)

	if !ok || record.userID != session.UserID {
		return nil, drafts.ErrNotFound
	}
	return record, nil
}

func (s *Service) pruneDraftsLocked(now time.Time) []*draftRecord {
	var expired []*draftRecord
	for key, record := range s.draftSessions {
		if now.After(record.expiresAt) {
			expired = append(expired, record)
			delete(s.draftSessions, key)
		}
	}
	return expired
}

// expireDrafts runs outside the draft lock: closing a session waits for
// its lookups.
func (s *Service) expireDrafts(records []*draftRecord) {
	for _, record := range records {
		record.stop()
		s.saveDraft(record)
		record.session.Close()
		s.log.Debug("draft session closed", "draft_id", record.id)
	}
}

func (s *Service) saveDraft(record *draftRecord) {
	if s.drafts == nil {
		return
	}
	state := record.session.State()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.drafts.Save(ctx, drafts.Snapshot{
		ID:      record.id,
		UserID:  record.userID,
		PostID:  record.postID,
		Markup:  state.Markup,
		Caret:   state.Selection.Focus,
		SavedAt: s.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("drafts: autosave failed", "draft_id", record.id, "err", err)
	}
}

func (s *Service) draftView(record *draftRecord, extra map[string]any) map[string]any {
	view := map[string]any{
		"id":     record.id,
		"postId": nilIfEmpty(record.postID),
		"state":  record.session.State(),
		"gifs":   record.session.GIFs().State(),
	}
	for key, value := range extra {
		view[key] = value
	}
	return view
}

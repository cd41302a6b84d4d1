package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ShahafRSeza/feed-social/internal/archive"
	"github.com/ShahafRSeza/feed-social/internal/auth"
	"github.com/ShahafRSeza/feed-social/internal/config"
	"github.com/ShahafRSeza/feed-social/internal/directory"
	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/drafts"
	"github.com/ShahafRSeza/feed-social/internal/editor"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/ShahafRSeza/feed-social/internal/history"
	"github.com/ShahafRSeza/feed-social/internal/link"
	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
	"github.com/ShahafRSeza/feed-social/internal/sanitize"
	"github.com/ShahafRSeza/feed-social/internal/store"
	"github.com/ShahafRSeza/feed-social/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

type CreatePostInput struct {
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	LinkURL  string `json:"linkUrl"`
	ImageURL string `json:"imageUrl"`
}

type UpdateProfileInput struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type postStore interface {
	InsertPost(context.Context, store.Post) (store.Post, error)
	GetPost(context.Context, string) (store.Post, error)
	ListPostsByUser(context.Context, string, int) ([]store.Post, error)
	UpdatePost(context.Context, string, func(store.Post) (store.Post, bool, error)) (store.Post, error)
	GetProfile(context.Context, string) (store.Profile, error)
	UpsertProfile(context.Context, store.Profile) error
	Ping(ctx context.Context) error
}

type profileDirectory interface {
	Lookup(ctx context.Context, prefix string, limit int) ([]directory.Profile, error)
	Index(p directory.Profile)
}

type gifSearcher interface {
	Search(ctx context.Context, query string) ([]gif.GIF, error)
	Enabled() bool
}

type draftStore interface {
	Save(context.Context, drafts.Snapshot) error
	Load(context.Context, string) (drafts.Snapshot, error)
	ListByUser(context.Context, string) ([]drafts.Snapshot, error)
	Delete(context.Context, string, string) error
}

type revisionArchive interface {
	Record(postID string, content archive.Content, author, message string, when time.Time) (archive.Revision, error)
	Revisions(postID string, limit int) ([]archive.Revision, error)
	ContentAt(postID, hash string) (archive.Content, error)
}

// Deps are the collaborators of a Service. Store and Directory are
// required; the rest disable their feature when nil.
type Deps struct {
	Store     postStore
	Directory profileDirectory
	Assets    editor.AssetStore
	GIFs      gifSearcher
	Drafts    draftStore
	Archive   revisionArchive
	Metrics   *metrics.Metrics
	Logger    logger.Logger
	// AutosaveWait is the pause before a changed draft is written to the
	// draft store.
	AutosaveWait time.Duration
	// EditorOptions are copied into every draft session; identity,
	// collaborators and callbacks are filled in by the service.
	EditorOptions editor.Options
	Now           func() time.Time
}

type Service struct {
	cfg       config.Config
	store     postStore
	directory profileDirectory
	assets    editor.AssetStore
	gifs      gifSearcher
	drafts    draftStore
	archive   revisionArchive
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time

	editorOpts      editor.Options
	autosaveWait    time.Duration
	autosaveMaxWait time.Duration
	draftSessionTTL time.Duration
	draftMu         sync.Mutex
	draftSessions   map[string]*draftRecord
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.FromContext(context.Background())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AutosaveWait <= 0 {
		deps.AutosaveWait = 2 * time.Second
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		cfg:             cfg,
		store:           deps.Store,
		directory:       deps.Directory,
		assets:          deps.Assets,
		gifs:            deps.GIFs,
		drafts:          deps.Drafts,
		archive:         deps.Archive,
		metrics:         deps.Metrics,
		log:             deps.Logger,
		now:             deps.Now,
		editorOpts:      deps.EditorOptions,
		autosaveWait:    deps.AutosaveWait,
		autosaveMaxWait: 5 * deps.AutosaveWait,
		draftSessionTTL: ttl,
		draftSessions:   make(map[string]*draftRecord),
	}
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// prepareContent normalizes authored content for storage. Rich markup is
// stored sanitized; legacy content is stored as written and converted when
// rendered. Text posts need visible content; link and image posts may omit
// it.
func prepareContent(kind, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		if kind == store.PostKindText {
			return "", validationError("content", "Write something first.")
		}
		return "", nil
	}
	stored := content
	if sanitize.IsRich(content) {
		stored = sanitize.Sanitize(content)
	}
	rendered, _ := sanitize.Render(stored)
	parsed, err := doc.Parse(rendered)
	if err != nil || parsed.IsEmpty() {
		if kind == store.PostKindText {
			return "", validationError("content", "Write something first.")
		}
		return "", nil
	}
	return stored, nil
}

func prepareURL(field, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", validationError(field, "Enter a URL.")
	}
	normalized := link.Normalize(raw)
	if !link.IsValid(normalized) {
		return "", validationError(field, "Invalid URL.")
	}
	return normalized, nil
}

func (s *Service) CreatePost(ctx context.Context, session Session, input CreatePostInput) (map[string]any, error) {
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	if kind == "" {
		kind = store.PostKindText
	}
	post := store.Post{
		ID:     util.NewID("post"),
		UserID: session.UserID,
		Kind:   kind,
	}
	var err error
	switch kind {
	case store.PostKindText:
	case store.PostKindLink:
		if post.LinkURL, err = prepareURL("linkUrl", input.LinkURL); err != nil {
			return nil, err
		}
	case store.PostKindImage:
		if post.ImageURL, err = prepareURL("imageUrl", input.ImageURL); err != nil {
			return nil, err
		}
	default:
		return nil, validationError("kind", "kind must be text, link or image")
	}
	if post.Content, err = prepareContent(kind, input.Content); err != nil {
		return nil, err
	}

	created, err := s.store.InsertPost(ctx, post)
	if err != nil {
		return nil, err
	}
	s.metrics.PostWritten("create")
	s.archivePost(created, session.UserName, "Create post")
	s.log.Info("post created", "post_id", created.ID, "user_id", created.UserID, "kind", created.Kind)
	return s.postView(created), nil
}

// UpdatePost replaces the content of the caller's own post. The previous
// content is appended to the edit history unless the content is unchanged.
func (s *Service) UpdatePost(ctx context.Context, session Session, postID, content string) (map[string]any, error) {
	changed := false
	updated, err := s.store.UpdatePost(ctx, postID, func(current store.Post) (store.Post, bool, error) {
		if current.UserID != session.UserID {
			return current, false, forbidden("Only the author can edit this post")
		}
		next, err := prepareContent(current.Kind, content)
		if err != nil {
			return current, false, err
		}
		edit := history.RecordEdit(current, next, s.now().UTC())
		if !edit.Changed {
			return current, false, nil
		}
		changed = true
		return edit.Apply(current), true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.PostWritten("edit")
		s.archivePost(updated, session.UserName, "Edit post")
		s.log.Info("post edited", "post_id", updated.ID, "history", len(updated.EditHistory))
	}
	return s.postView(updated), nil
}

func (s *Service) GetPost(ctx context.Context, postID string) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.postView(post), nil
}

func (s *Service) ListPosts(ctx context.Context, userID string, limit int) ([]map[string]any, error) {
	posts, err := s.store.ListPostsByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		items = append(items, s.postView(post))
	}
	return items, nil
}

func (s *Service) Revisions(ctx context.Context, postID string) (map[string]any, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	items := make([]archive.Revision, 0)
	if s.archive != nil {
		revisions, err := s.archive.Revisions(postID, 50)
		if err != nil && !errors.Is(err, archive.ErrNoArchive) {
			return nil, err
		}
		items = append(items, revisions...)
	}
	return map[string]any{"postId": postID, "revisions": items}, nil
}

func (s *Service) RevisionContent(ctx context.Context, postID, hash string) (map[string]any, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	}
	content, err := s.archive.ContentAt(postID, hash)
	if err != nil {
		s.log.Debug("archive: read revision", "post_id", postID, "hash", hash, "err", err)
		return nil, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	}
	rendered, report := sanitize.Render(content.Content)
	s.recordReport(report)
	return map[string]any{
		"postId":   postID,
		"hash":     hash,
		"kind":     content.Kind,
		"content":  content.Content,
		"html":     rendered,
		"linkUrl":  nilIfEmpty(content.LinkURL),
		"imageUrl": nilIfEmpty(content.ImageURL),
	}, nil
}

func (s *Service) archivePost(post store.Post, author, message string) {
	if s.archive == nil {
		return
	}
	when := post.CreatedAt
	if post.EditedAt != nil {
		when = *post.EditedAt
	}
	_, err := s.archive.Record(post.ID, archive.Content{
		Kind:     post.Kind,
		Content:  post.Content,
		LinkURL:  post.LinkURL,
		ImageURL: post.ImageURL,
	}, firstNonBlank(author, post.UserID), message, when)
	if err != nil {
		s.log.Warn("archive: record post", "post_id", post.ID, "err", err)
	}
}

// postView renders a stored post for display. Content always passes the
// render pipeline, whatever was stored.
func (s *Service) postView(post store.Post) map[string]any {
	rendered, report := sanitize.Render(post.Content)
	s.recordReport(report)
	summary := sanitize.Inspect(rendered)

	entries := make([]map[string]any, 0, len(post.EditHistory))
	for _, entry := range post.EditHistory {
		entries = append(entries, map[string]any{
			"content":  entry.Content,
			"editedAt": entry.EditedAt,
		})
	}
	var editedAt any
	if post.EditedAt != nil {
		editedAt = *post.EditedAt
	}
	return map[string]any{
		"id":          post.ID,
		"userId":      post.UserID,
		"kind":        post.Kind,
		"content":     post.Content,
		"html":        rendered,
		"linkUrl":     nilIfEmpty(post.LinkURL),
		"imageUrl":    nilIfEmpty(post.ImageURL),
		"createdAt":   post.CreatedAt,
		"edited":      post.EditedAt != nil,
		"editedAt":    editedAt,
		"editHistory": entries,
		"mentions":    nonNil(summary.Mentions),
		"embeds":      nonNil(summary.Embeds),
		"links":       nonNil(summary.Links),
	}
}

func (s *Service) recordReport(report sanitize.Report) {
	s.metrics.Sanitized("element", report.RemovedElements)
	s.metrics.Sanitized("unwrapped", report.UnwrappedElements)
	s.metrics.Sanitized("attribute", report.RemovedAttrs)
	s.metrics.Sanitized("event", report.NeutralizedEvents)
	s.metrics.Sanitized("style", report.RemovedStyles)
	s.metrics.Sanitized("href", report.RewrittenHrefs)
}

func (s *Service) LookupProfiles(ctx context.Context, prefix string) (map[string]any, error) {
	found, err := s.directory.Lookup(ctx, strings.TrimSpace(prefix), directory.MaxResults)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []directory.Profile{}
	}
	return map[string]any{"profiles": found}, nil
}

// UpdateProfile stores the caller's profile and pushes it to the mention
// directory.
func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (map[string]any, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = session.UserName
	}
	if username == "" || strings.ContainsFunc(username, isSpaceOrAt) {
		return nil, validationError("username", "username must be a single word")
	}
	profile := store.Profile{
		ID:          session.UserID,
		Username:    username,
		DisplayName: strings.TrimSpace(input.DisplayName),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.directory.Index(directory.Profile{
		ID:          profile.ID,
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
	})
	return map[string]any{
		"id":          profile.ID,
		"username":    profile.Username,
		"displayName": profile.DisplayName,
		"avatarUrl":   profile.AvatarURL,
	}, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (map[string]any, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          profile.ID,
		"username":    profile.Username,
		"displayName": profile.DisplayName,
		"avatarUrl":   profile.AvatarURL,
	}, nil
}

func (s *Service) SearchGIFs(ctx context.Context, query string) (map[string]any, error) {
	if s.gifs == nil || !s.gifs.Enabled() {
		return nil, gif.ErrDisabled
	}
	found, err := s.gifs.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": found}, nil
}

func isSpaceOrAt(r rune) bool {
	return r == '@' || unicode.IsSpace(r)
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

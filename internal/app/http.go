package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/assets"
	"github.com/ShahafRSeza/feed-social/internal/auth"
	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/drafts"
	"github.com/ShahafRSeza/feed-social/internal/editor"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
)

const (
	maxUploadBytes = 32 << 20
	maxUploadFiles = 10
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    *metrics.Metrics
	log        logger.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metrics: service.metrics, log: service.log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		// Check database connectivity
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// Reading posts needs no session
	if r.Method == http.MethodGet && len(parts) >= 3 && parts[0] == "api" && parts[1] == "posts" {
		s.handlePostRead(w, r, parts[2], parts[3:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/posts" {
		userID := strings.TrimSpace(r.URL.Query().Get("userId"))
		if userID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
			return
		}
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		items, err := s.service.ListPosts(r.Context(), userID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": items})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"expiresAt":     session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/posts" {
		var body CreatePostInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreatePost(r.Context(), session, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "api" && parts[1] == "posts" {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdatePost(r.Context(), session, parts[2], body.Content)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/profiles" {
		payload, err := s.service.LookupProfiles(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/profile" {
		payload, err := s.service.GetProfile(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/profile" {
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/gifs" {
		payload, err := s.service.SearchGIFs(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "drafts" {
		s.handleDrafts(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePostRead(w http.ResponseWriter, r *http.Request, postID string, rest []string) {
	var (
		payload map[string]any
		err     error
	)
	switch {
	case len(rest) == 0:
		payload, err = s.service.GetPost(r.Context(), postID)
	case len(rest) == 1 && rest[0] == "revisions":
		payload, err = s.service.Revisions(r.Context(), postID)
	case len(rest) == 2 && rest[0] == "revisions":
		payload, err = s.service.RevisionContent(r.Context(), postID, rest[1])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListDrafts(r.Context(), session)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPost:
			var body CreateDraftInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDraft(r.Context(), session, body)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	draftID := parts[0]
	if len(parts) == 1 {
		var (
			payload map[string]any
			err     error
		)
		switch r.Method {
		case http.MethodGet:
			payload, err = s.service.GetDraft(r.Context(), session, draftID)
		case http.MethodDelete:
			payload, err = s.service.DeleteDraft(r.Context(), session, draftID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	s.handleDraftAction(w, r, session, draftID, parts[1])
}

func (s *HTTPServer) handleDraftAction(w http.ResponseWriter, r *http.Request, session Session, draftID, action string) {
	ctx := r.Context()
	var (
		payload map[string]any
		err     error
	)

	if action == "assets" {
		files, ferr := readUploadFiles(r)
		if ferr != nil {
			writeServiceError(w, ferr)
			return
		}
		payload, err = s.service.DraftAssets(ctx, session, draftID, files)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	var body struct {
		Text     string  `json:"text"`
		Anchor   int     `json:"anchor"`
		Focus    int     `json:"focus"`
		Command  string  `json:"command"`
		Value    string  `json:"value"`
		Label    string  `json:"label"`
		URL      string  `json:"url"`
		Key      string  `json:"key"`
		Index    *int    `json:"index"`
		Username string  `json:"username"`
		Open     bool    `json:"open"`
		Query    *string `json:"query"`
		ID       string  `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	switch action {
	case "select":
		payload, err = s.service.DraftSelect(ctx, session, draftID, DraftSelectInput{Anchor: body.Anchor, Focus: body.Focus})
	case "blur":
		payload, err = s.service.DraftBlur(ctx, session, draftID)
	case "toolbar":
		payload, err = s.service.DraftToolbar(ctx, session, draftID)
	case "input":
		payload, err = s.service.DraftInput(ctx, session, draftID, body.Text)
	case "paste":
		payload, err = s.service.DraftPaste(ctx, session, draftID, body.Text)
	case "paragraph":
		payload, err = s.service.DraftParagraph(ctx, session, draftID)
	case "backspace":
		payload, err = s.service.DraftBackspace(ctx, session, draftID)
	case "command":
		payload, err = s.service.DraftCommand(ctx, session, draftID, DraftCommandInput{Command: body.Command, Value: body.Value})
	case "link":
		payload, err = s.service.DraftLink(ctx, session, draftID, DraftLinkInput{Label: body.Label, URL: body.URL})
	case "key":
		payload, err = s.service.DraftKey(ctx, session, draftID, body.Key)
	case "mention":
		payload, err = s.service.DraftMention(ctx, session, draftID, DraftMentionInput{Index: body.Index, Username: body.Username})
	case "gif-panel":
		payload, err = s.service.DraftGIFPanel(ctx, session, draftID, DraftGIFPanelInput{Open: body.Open, Query: body.Query})
	case "gif":
		payload, err = s.service.DraftGIF(ctx, session, draftID, body.ID)
	case "submit":
		payload, err = s.service.SubmitDraft(ctx, session, draftID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// readUploadFiles reads the "files" parts of a multipart upload.
func readUploadFiles(r *http.Request) ([]editor.File, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "expected multipart form with files", nil)
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) > maxUploadFiles {
		return nil, validationError("files", fmt.Sprintf("At most %d images per upload.", maxUploadFiles))
	}
	files := make([]editor.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
		}
		files = append(files, editor.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", editor.ErrUnauthenticated.Error(), nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		reqLog := s.log.With("request_id", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = logger.ContextWithLogger(ctx, reqLog)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, writer.status, elapsed.Seconds())
		reqLog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validation *editor.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Message, map[string]any{"field": validation.Field}
	}
	var network *editor.NetworkError
	if errors.As(err, &network) {
		details := map[string]any{"op": network.Op, "inserted": network.Inserted}
		if network.Status != 0 {
			details["status"] = network.Status
		}
		return http.StatusBadGateway, "NETWORK_ERROR", network.Error(), details
	}
	var upload *assets.UploadError
	if errors.As(err, &upload) {
		return http.StatusBadGateway, "UPLOAD_FAILED", upload.Error(), map[string]any{"status": upload.Status}
	}
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, drafts.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, editor.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, editor.ErrSubmitInProgress), errors.Is(err, editor.ErrUploadInProgress):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, editor.ErrNoDraftSelection):
		return http.StatusUnprocessableEntity, "NO_SELECTION", err.Error(), nil
	case errors.Is(err, editor.ErrClosed):
		return http.StatusGone, "DRAFT_CLOSED", err.Error(), nil
	case errors.Is(err, doc.ErrUnknownCommand):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown command.", nil
	case errors.Is(err, gif.ErrDisabled):
		return http.StatusServiceUnavailable, "GIFS_UNAVAILABLE", "GIF search is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

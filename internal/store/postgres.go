package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const postColumns = `id, user_id, kind, content, link_url, image_url, created_at, edited_at, edit_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var item Post
	var editedAt sql.NullTime
	var historyRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Kind,
		&item.Content,
		&item.LinkURL,
		&item.ImageURL,
		&item.CreatedAt,
		&editedAt,
		&historyRaw,
	); err != nil {
		return Post{}, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		item.EditedAt = &t
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &item.EditHistory); err != nil {
			return Post{}, fmt.Errorf("decode edit history: %w", err)
		}
	}
	return item, nil
}

func encodeHistory(history []EditHistoryEntry) (string, error) {
	if history == nil {
		history = []EditHistoryEntry{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal edit history: %w", err)
	}
	return string(encoded), nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) (Post, error) {
	history, err := encodeHistory(post.EditHistory)
	if err != nil {
		return Post{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (id, user_id, kind, content, link_url, image_url, edit_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING `+postColumns,
		post.ID, post.UserID, post.Kind, post.Content, post.LinkURL, post.ImageURL, history)
	created, err := scanPost(row)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, postID)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) ListPostsByUser(ctx context.Context, userID string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		item, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

// UpdatePost locks the post row and hands it to mutate. When mutate reports
// a change the result is written back in the same transaction.
func (s *PostgresStore) UpdatePost(ctx context.Context, postID string, mutate func(Post) (Post, bool, error)) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("begin update post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1 FOR UPDATE`, postID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("lock post: %w", err)
	}

	next, changed, err := mutate(current)
	if err != nil {
		return Post{}, err
	}
	if !changed {
		return current, nil
	}

	history, err := encodeHistory(next.EditHistory)
	if err != nil {
		return Post{}, err
	}
	updated, err := scanPost(tx.QueryRowContext(ctx, `
		UPDATE posts
		SET content=$2, link_url=$3, image_url=$4, edited_at=$5, edit_history=$6::jsonb
		WHERE id=$1
		RETURNING `+postColumns,
		postID, next.Content, next.LinkURL, next.ImageURL, next.EditedAt, history))
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("commit update post: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, avatar_url FROM profiles WHERE id=$1
	`, userID).Scan(&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username=EXCLUDED.username, display_name=EXCLUDED.display_name, avatar_url=EXCLUDED.avatar_url, updated_at=NOW()
	`, p.ID, p.Username, p.DisplayName, p.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// SearchProfilesByPrefix matches usernames case-insensitively by prefix.
func (s *PostgresStore) SearchProfilesByPrefix(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, display_name, avatar_url
		FROM profiles
		WHERE LOWER(username) LIKE LOWER($1) ESCAPE '\'
		ORDER BY username
		LIMIT $2
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, display_name, avatar_url FROM profiles ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func scanProfiles(rows *sql.Rows) ([]Profile, error) {
	items := make([]Profile, 0)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

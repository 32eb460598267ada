package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/lexhelper/counsel/config"
)

// Store wraps the Postgres connection for users, chat sessions, messages
// and research templates.
type Store struct {
	DB *sql.DB
}

// Message roles persisted on chat_messages.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatSession groups the messages of one research conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Archived  bool      `json:"is_archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn in a session. Assistant messages carry the full
// research result in Metadata.
type ChatMessage struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResearchTemplate is a reusable prompt with a {{variable}} placeholder
// vocabulary, grouped by category.
type ResearchTemplate struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	PromptTemplate string    `json:"prompt_template"`
	IsDefault      bool      `json:"is_default"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// New opens a connection using the configured Postgres settings.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// CreateUser inserts a user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`, id, email, hash)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail returns the user's id and password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// CreateSession starts a new chat session for a user.
func (s *Store) CreateSession(ctx context.Context, userID, title string) (ChatSession, error) {
	sess := ChatSession{ID: uuid.NewString(), UserID: userID, Title: title}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		sess.ID, userID, title).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a user's sessions, most recently updated first.
// Archived sessions are excluded unless includeArchived is set.
func (s *Store) ListSessions(ctx context.Context, userID string, includeArchived bool) ([]ChatSession, error) {
	q := `SELECT id, user_id, title, is_archived, created_at, updated_at
	      FROM chat_sessions WHERE user_id=$1`
	if !includeArchived {
		q += ` AND is_archived=FALSE`
	}
	q += ` ORDER BY updated_at DESC`
	rows, err := s.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatSession
	for rows.Next() {
		var sess ChatSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Archived, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession fetches one session, scoped to its owner.
func (s *Store) GetSession(ctx context.Context, id, userID string) (ChatSession, bool, error) {
	var sess ChatSession
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, is_archived, created_at, updated_at
		 FROM chat_sessions WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Archived, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return ChatSession{}, false, nil
	}
	if err != nil {
		return ChatSession{}, false, err
	}
	return sess, true, nil
}

// RenameSession updates a session title.
func (s *Store) RenameSession(ctx context.Context, id, userID, title string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE chat_sessions SET title=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		id, userID, title)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// SetSessionArchived archives or unarchives a session.
func (s *Store) SetSessionArchived(ctx context.Context, id, userID string, archived bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE chat_sessions SET is_archived=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		id, userID, archived)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// DeleteSession removes a session; messages cascade at the schema level.
func (s *Store) DeleteSession(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// AppendMessage adds a message to a session and bumps the session's
// updated_at so listing order tracks activity.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string, metadata json.RawMessage) (ChatMessage, error) {
	msg := ChatMessage{ID: uuid.NewString(), SessionID: sessionID, Role: role, Content: content, Metadata: metadata}
	var meta interface{}
	if len(metadata) > 0 {
		meta = []byte(metadata)
	}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, sessionID, role, content, meta).Scan(&msg.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at=NOW() WHERE id=$1`, sessionID); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// ListMessages returns a session's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_messages WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var meta []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &meta, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Metadata = meta
		out = append(out, msg)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a research template.
func (s *Store) CreateTemplate(ctx context.Context, t ResearchTemplate) (ResearchTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var createdBy interface{}
	if t.CreatedBy != "" {
		createdBy = t.CreatedBy
	}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO research_templates (id, name, description, category, prompt_template, is_default, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		t.ID, t.Name, t.Description, t.Category, t.PromptTemplate, t.IsDefault, createdBy).
		Scan(&t.CreatedAt)
	if err != nil {
		return ResearchTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// ListTemplates returns templates, optionally filtered by category.
func (s *Store) ListTemplates(ctx context.Context, category string) ([]ResearchTemplate, error) {
	q := `SELECT id, name, description, category, prompt_template, is_default, COALESCE(created_by::text, ''), created_at
	      FROM research_templates`
	args := []interface{}{}
	if category != "" {
		q += ` WHERE category=$1`
		args = append(args, category)
	}
	q += ` ORDER BY category, name`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResearchTemplate
	for rows.Next() {
		var t ResearchTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.PromptTemplate,
			&t.IsDefault, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTemplate fetches one template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (ResearchTemplate, bool, error) {
	var t ResearchTemplate
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, description, category, prompt_template, is_default, COALESCE(created_by::text, ''), created_at
		 FROM research_templates WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.PromptTemplate, &t.IsDefault, &t.CreatedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return ResearchTemplate{}, false, nil
	}
	if err != nil {
		return ResearchTemplate{}, false, err
	}
	return t, true, nil
}

// UpdateTemplate rewrites a non-default template's editable fields.
// Default templates are immutable.
func (s *Store) UpdateTemplate(ctx context.Context, t ResearchTemplate) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE research_templates SET name=$2, description=$3, category=$4, prompt_template=$5
		 WHERE id=$1 AND is_default=FALSE`,
		t.ID, t.Name, t.Description, t.Category, t.PromptTemplate)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// DeleteTemplate removes a non-default template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM research_templates WHERE id=$1 AND is_default=FALSE`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// ListTemplateCategories returns the distinct categories in use.
func (s *Store) ListTemplateCategories(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT category FROM research_templates ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Package chat stores chat tabs and their messages. Query history rows hang
// off messages, so a tab gives the context for "latest queries".
package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/store"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "U"
	SenderAI   Sender = "A"
)

func (s Sender) valid() bool { return s == SenderUser || s == SenderAI }

// Tab is a conversation.
type Tab struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages,omitempty"`
}

// Message is one entry of a tab.
type Message struct {
	ID        string    `json:"id"`
	TabID     string    `json:"chat_tab_id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository reads and writes chat_tab and chat_message.
type Repository struct {
	db store.Querier
}

// NewRepository creates a Repository.
func NewRepository(db store.Querier) *Repository {
	return &Repository{db: db}
}

// CreateTab stores a new tab.
func (r *Repository) CreateTab(ctx context.Context, name string) (*Tab, error) {
	id := store.NewID(store.PrefixChatTab)
	if _, err := r.db.ExecContext(ctx, `INSERT INTO chat_tab (id, name) VALUES (?, ?)`, id, strings.TrimSpace(name)); err != nil {
		return nil, store.MapError(err, "failed to create chat tab")
	}
	return r.tab(ctx, id)
}

// RenameTab changes a tab's name.
func (r *Repository) RenameTab(ctx context.Context, id, name string) (*Tab, error) {
	if err := validateTabID(id); err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE chat_tab SET name = ? WHERE id = ?`, strings.TrimSpace(name), id)
	if err != nil {
		return nil, store.MapError(err, "failed to rename chat tab")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, tabNotFound(id)
	}
	return r.tab(ctx, id)
}

// DeleteTab removes a tab with its messages and their query history.
func (r *Repository) DeleteTab(ctx context.Context, id string) error {
	if err := validateTabID(id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_tab WHERE id = ?`, id)
	if err != nil {
		return store.MapError(err, "failed to delete chat tab")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tabNotFound(id)
	}
	return nil
}

// ListTabs returns every tab, most recently updated first, without messages.
func (r *Repository) ListTabs(ctx context.Context) ([]*Tab, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM chat_tab ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, store.MapError(err, "failed to list chat tabs")
	}
	defer rows.Close()

	out := []*Tab{}
	for rows.Next() {
		var (
			t    Tab
			name sql.NullString
		)
		if err := rows.Scan(&t.ID, &name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, store.MapError(err, "failed to read chat tab")
		}
		t.Name = name.String
		out = append(out, &t)
	}
	return out, store.MapError(rows.Err(), "failed to list chat tabs")
}

// GetTab returns a tab with its messages in chronological order.
func (r *Repository) GetTab(ctx context.Context, id string) (*Tab, error) {
	if err := validateTabID(id); err != nil {
		return nil, err
	}
	t, err := r.tab(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_tab_id, sender, message, created_at, updated_at
		FROM chat_message
		WHERE chat_tab_id = ?
		ORDER BY created_at, rowid`, id)
	if err != nil {
		return nil, store.MapError(err, "failed to read chat messages")
	}
	defer rows.Close()

	t.Messages = []*Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TabID, &m.Sender, &m.Message, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, store.MapError(err, "failed to read chat message")
		}
		t.Messages = append(t.Messages, &m)
	}
	return t, store.MapError(rows.Err(), "failed to read chat messages")
}

// AddMessage appends a message to a tab.
func (r *Repository) AddMessage(ctx context.Context, tabID string, sender Sender, text string) (*Message, error) {
	if err := validateTabID(tabID); err != nil {
		return nil, err
	}
	if !sender.valid() {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown sender %q", string(sender)).WithCode(errs.CodeInvalidParameter)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "message is empty").WithCode(errs.CodeNoValue)
	}
	if _, err := r.tab(ctx, tabID); err != nil {
		return nil, err
	}

	m := Message{ID: store.NewID(store.PrefixChatMessage), TabID: tabID, Sender: sender, Message: text}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_message (id, chat_tab_id, sender, message) VALUES (?, ?, ?, ?)`,
		m.ID, m.TabID, string(m.Sender), m.Message)
	if err != nil {
		return nil, store.MapError(err, "failed to store chat message")
	}

	err = r.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM chat_message WHERE id = ?`, m.ID).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, store.MapError(err, "failed to read chat message")
	}
	return &m, nil
}

func (r *Repository) tab(ctx context.Context, id string) (*Tab, error) {
	var (
		t    Tab
		name sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM chat_tab WHERE id = ?`, id).
		Scan(&t.ID, &name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tabNotFound(id)
	}
	if err != nil {
		return nil, store.MapError(err, "failed to read chat tab")
	}
	t.Name = name.String
	return &t, nil
}

func validateTabID(id string) error {
	if !strings.HasPrefix(id, store.PrefixChatTab+"-") {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid chat tab id %q", id).WithCode(errs.CodeInvalidParameter)
	}
	return nil
}

func tabNotFound(id string) error {
	return errs.Newf(errs.ErrKindNotFound, "chat tab %s not found", id).WithCode(errs.CodeNoSearchData)
}

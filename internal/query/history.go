package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/store"
)

// DefaultHistoryLimit is how many records Latest returns by default.
const DefaultHistoryLimit = 5

// Record is one executed statement. Records are append-only.
type Record struct {
	ID            string       `json:"id"`
	ChatMessageID string       `json:"chat_message_id,omitempty"`
	QueryText     string       `json:"query_text"`
	DBType        dialect.Type `json:"db_type"`
	Success       bool         `json:"is_success"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// History appends to and reads the query_history table.
type History struct {
	db store.Querier
}

// NewHistory creates a History.
func NewHistory(db store.Querier) *History {
	return &History{db: db}
}

// Append stores rec under a fresh id and returns that id.
func (h *History) Append(ctx context.Context, rec Record) (string, error) {
	id := store.NewID(store.PrefixQuery)
	success := "N"
	if rec.Success {
		success = "Y"
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO query_history (id, chat_message_id, query_text, db_type, is_success, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, nullable(rec.ChatMessageID), rec.QueryText, string(rec.DBType), success, nullable(rec.ErrorMessage))
	if err != nil {
		return "", store.MapError(err, "failed to record query history")
	}
	return id, nil
}

// Latest returns the newest records attached to messages of a chat tab.
func (h *History) Latest(ctx context.Context, chatTabID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT qh.id, qh.chat_message_id, qh.query_text, qh.db_type, qh.is_success, qh.error_message, qh.created_at
		FROM query_history AS qh
		JOIN chat_message AS cm ON qh.chat_message_id = cm.id
		WHERE cm.chat_tab_id = ?
		ORDER BY qh.created_at DESC, qh.rowid DESC
		LIMIT ?`, chatTabID, limit)
	if err != nil {
		return nil, store.MapError(err, "failed to read query history")
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r                     Record
			msgID, dbType, errMsg sql.NullString
			success               string
		)
		if err := rows.Scan(&r.ID, &msgID, &r.QueryText, &dbType, &success, &errMsg, &r.CreatedAt); err != nil {
			return nil, store.MapError(err, "failed to read query history")
		}
		r.ChatMessageID = msgID.String
		r.DBType = dialect.Type(dbType.String)
		r.Success = success == "Y"
		r.ErrorMessage = errMsg.String
		out = append(out, r)
	}
	return out, store.MapError(rows.Err(), "failed to read query history")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/onebox/internal/model"
)

// ErrNotFound is returned when a lookup matches no stored message.
var ErrNotFound = errors.New("message not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Sessions for multiple accounts write concurrently; serialize at
	// the connection level to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// messageRow is the database representation of a model.Message.
type messageRow struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	AccountID   string    `db:"account_id"`
	FromEmail   string    `db:"from_email"`
	ToEmails    string    `db:"to_emails"`
	Subject     string    `db:"subject"`
	Body        string    `db:"body"`
	HTMLBody    string    `db:"html_body"`
	Date        time.Time `db:"date"`
	Folder      string    `db:"folder"`
	Category    string    `db:"category"`
	IsRead      bool      `db:"is_read"`
	Attachments string    `db:"attachments"`
	Headers     string    `db:"headers"`
	FetchedAt   time.Time `db:"fetched_at"`
}

func (r *messageRow) toModel() (*model.Message, error) {
	msg := &model.Message{
		ID:        r.ID,
		MessageID: r.MessageID,
		AccountID: r.AccountID,
		From:      r.FromEmail,
		Subject:   r.Subject,
		TextBody:  r.Body,
		HTMLBody:  r.HTMLBody,
		Date:      r.Date,
		Folder:    r.Folder,
		Category:  model.Category(r.Category),
		Read:      r.IsRead,
		FetchedAt: r.FetchedAt,
	}

	if err := json.Unmarshal([]byte(r.ToEmails), &msg.To); err != nil {
		return nil, fmt.Errorf("unmarshaling to_emails for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Attachments), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshaling attachments for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Headers), &msg.Headers); err != nil {
		return nil, fmt.Errorf("unmarshaling headers for %s: %w", r.ID, err)
	}

	return msg, nil
}

// UpsertMessage inserts or overwrites a message keyed on the
// (message_id, account_id) dedupe pair. The generated record id of the
// first write is preserved; every other field takes the new value, so
// re-processing after a reconnect overwrites rather than duplicates.
func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg *model.Message) error {
	toEmails, err := json.Marshal(emptySlice(msg.To))
	if err != nil {
		return fmt.Errorf("marshaling to_emails for %s: %w", msg.MessageID, err)
	}
	attachments, err := json.Marshal(emptyAttachments(msg.Attachments))
	if err != nil {
		return fmt.Errorf("marshaling attachments for %s: %w", msg.MessageID, err)
	}
	headers, err := json.Marshal(emptyMap(msg.Headers))
	if err != nil {
		return fmt.Errorf("marshaling headers for %s: %w", msg.MessageID, err)
	}

	fetchedAt := msg.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	const query = `
		INSERT INTO messages (
			id, message_id, account_id,
			from_email, to_emails, subject,
			body, html_body, date, folder,
			category, is_read, attachments, headers, fetched_at
		) VALUES (
			?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?
		)
		ON CONFLICT(message_id, account_id) DO UPDATE SET
			from_email  = excluded.from_email,
			to_emails   = excluded.to_emails,
			subject     = excluded.subject,
			body        = excluded.body,
			html_body   = excluded.html_body,
			date        = excluded.date,
			folder      = excluded.folder,
			category    = excluded.category,
			is_read     = excluded.is_read,
			attachments = excluded.attachments,
			headers     = excluded.headers,
			fetched_at  = excluded.fetched_at`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.MessageID, msg.AccountID,
		msg.From, string(toEmails), msg.Subject,
		msg.TextBody, msg.HTMLBody, msg.Date.UTC(), msg.Folder,
		string(msg.Category), msg.Read, string(attachments), string(headers),
		fetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.MessageID, err)
	}

	return nil
}

// GetMessage fetches one message by its dedupe key.
func (s *SQLiteStore) GetMessage(
	ctx context.Context,
	accountID, messageID string,
) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM messages WHERE account_id = ? AND message_id = ?",
		accountID, messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}
	return row.toModel()
}

// ListMessages returns messages matching the filter, newest first.
func (s *SQLiteStore) ListMessages(
	ctx context.Context,
	filter MessageFilter,
) ([]model.Message, error) {
	var conditions []string
	var args []interface{}

	if filter.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR body LIKE ?)")
		q := "%" + filter.Query + "%"
		args = append(args, q, q)
	}
	if filter.Unread {
		conditions = append(conditions, "is_read = 0")
	}

	query := "SELECT * FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages := make([]model.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return messages, nil
}

// MarkRead flips the read flag on one message.
func (s *SQLiteStore) MarkRead(
	ctx context.Context,
	accountID, messageID string,
	read bool,
) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = ? WHERE account_id = ? AND message_id = ?",
		read, accountID, messageID,
	)
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", messageID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", messageID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByCategory returns message counts per category, optionally
// restricted to one account.
func (s *SQLiteStore) CountByCategory(
	ctx context.Context,
	accountID string,
) (map[model.Category]int, error) {
	query := "SELECT category, COUNT(*) AS n FROM messages"
	var args []interface{}
	if accountID != "" {
		query += " WHERE account_id = ?"
		args = append(args, accountID)
	}
	query += " GROUP BY category"

	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("counting messages by category: %w", err)
	}

	counts := make(map[model.Category]int, len(rows))
	for _, r := range rows {
		counts[model.Category(r.Category)] = r.N
	}
	return counts, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyAttachments(a []model.Attachment) []model.Attachment {
	if a == nil {
		return []model.Attachment{}
	}
	return a
}

func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

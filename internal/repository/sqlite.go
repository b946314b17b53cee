package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"agent-relay/internal/domain"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "./data/messages.db"

// busyTimeoutMS bounds how long a relay waits on a lock held by another process.
const busyTimeoutMS = 5000

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the log in a SQLite file that several relay processes may
// open at once. Read state is tracked per message in the read_by column.
//
// Transactions are opened IMMEDIATE so the select-then-mark sequence in
// UnreadFor holds the write lock from its first statement.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath. The containing
// directory is created if it does not exist.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = DefaultSQLitePath
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create data dir: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", dbPath, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		read_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts a new row with an empty read_by set. Senders follow the same
// id rules as readers so every sender can also poll.
func (s *SQLiteStore) Append(ctx context.Context, sender, content string) (domain.Message, error) {
	if !validReadByMember(sender) {
		return domain.Message{}, fmt.Errorf("%w: %q", domain.ErrInvalidAgentID, sender)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (sender, message, timestamp, read_by)
		VALUES (?, ?, ?, '')
	`, sender, content, now)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: Append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: Append last id: %w", err)
	}
	return domain.Message{ID: id, Sender: sender, Content: content, CreatedAt: now}, nil
}

type pendingMark struct {
	msg    domain.Message
	readBy readBySet
}

// UnreadFor selects every message from other senders that agentID is not yet
// recorded against and adds agentID to each row's read_by, all in one
// transaction. Nothing is marked if any step fails.
func (s *SQLiteStore) UnreadFor(ctx context.Context, agentID string) ([]domain.Message, error) {
	if !validReadByMember(agentID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAgentID, agentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: UnreadFor begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// instr over the comma-wrapped column is a token match, not a substring match.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, sender, message, timestamp, read_by
		FROM messages
		WHERE sender != ?
		  AND instr(',' || read_by || ',', ',' || ? || ',') = 0
		ORDER BY id ASC
	`, agentID, agentID)
	if err != nil {
		return nil, fmt.Errorf("repository: UnreadFor query: %w", err)
	}

	var pending []pendingMark
	for rows.Next() {
		var (
			msg    domain.Message
			ts     sql.NullTime
			readBy string
		)
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Content, &ts, &readBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository: UnreadFor scan: %w", err)
		}
		if ts.Valid {
			msg.CreatedAt = ts.Time
		}
		pending = append(pending, pendingMark{msg: msg, readBy: readBySet(readBy).add(agentID)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("repository: UnreadFor rows: %w", err)
	}
	rows.Close()

	out := make([]domain.Message, 0, len(pending))
	for _, p := range pending {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET read_by = ? WHERE id = ?`, string(p.readBy), p.msg.ID); err != nil {
			return nil, fmt.Errorf("repository: UnreadFor mark %d: %w", p.msg.ID, err)
		}
		p.msg.ReadBy = p.readBy.members()
		out = append(out, p.msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: UnreadFor commit: %w", err)
	}
	return out, nil
}

// History returns the whole log in id order without touching read state.
func (s *SQLiteStore) History(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, message, timestamp, read_by
		FROM messages
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			msg    domain.Message
			ts     sql.NullTime
			readBy string
		)
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Content, &ts, &readBy); err != nil {
			return nil, fmt.Errorf("repository: History scan: %w", err)
		}
		if ts.Valid {
			msg.CreatedAt = ts.Time
		}
		msg.ReadBy = readBySet(readBy).members()
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: History rows: %w", err)
	}
	return out, nil
}

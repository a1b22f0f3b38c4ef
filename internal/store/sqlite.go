package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chatbridge/chatbridge/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		uid TEXT UNIQUE,
		ip_address TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);
	CREATE INDEX IF NOT EXISTS idx_sessions_ip ON sessions(ip_address);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		body TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_unprocessed ON messages(processed, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		body TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		message_id INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id, timestamp);

	CREATE TABLE IF NOT EXISTS rate_limits (
		ip_address TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		count INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		PRIMARY KEY (ip_address, endpoint)
	);
	CREATE INDEX IF NOT EXISTS idx_rate_limits_window ON rate_limits(window_start);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves a session by its ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, uid, ip_address, metadata, created_at, last_active
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var sess domain.Session
	var uid, ip sql.NullString
	var createdAt, lastActive int64

	err := row.Scan(&sess.SessionID, &uid, &ip, &sess.Metadata, &createdAt, &lastActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan session row", err)
	}

	sess.UID = uid.String
	sess.IPAddress = ip.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastActive = time.Unix(lastActive, 0)

	return &sess, nil
}

// InsertSession creates a session row if none exists.
func (s *SQLiteStore) InsertSession(ctx context.Context, sessionID, ipAddress string, now time.Time) error {
	query := `
	INSERT INTO sessions (session_id, ip_address, created_at, last_active)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	var ip interface{}
	if ipAddress != "" {
		ip = ipAddress
	}

	if _, err := s.db.ExecContext(ctx, query, sessionID, ip, now.Unix(), now.Unix()); err != nil {
		return storageErr("insert session", err)
	}
	return nil
}

// TouchSession advances last_active for the sliding expiry window.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, now time.Time) error {
	query := `UPDATE sessions SET last_active = ? WHERE session_id = ? AND last_active < ?`
	if _, err := s.db.ExecContext(ctx, query, now.Unix(), sessionID, now.Unix()); err != nil {
		return storageErr("touch session", err)
	}
	return nil
}

// DeleteSession removes a single session row.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

// SetSessionUID persists a UID only if the session has none yet.
func (s *SQLiteStore) SetSessionUID(ctx context.Context, sessionID, uid, ipAddress string) (bool, error) {
	query := `UPDATE sessions SET uid = ?, ip_address = ? WHERE session_id = ? AND uid IS NULL`

	var ip interface{}
	if ipAddress != "" {
		ip = ipAddress
	}

	result, err := s.db.ExecContext(ctx, query, uid, ip, sessionID)
	if err != nil {
		return false, storageErr("set session uid", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("get rows affected", err)
	}
	return rows > 0, nil
}

// DeleteExpiredSessions removes sessions inactive since before cutoff.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, cutoff.Unix())
	if err != nil {
		return 0, storageErr("delete expired sessions", err)
	}
	return result.RowsAffected()
}

// ListSessions returns session summaries with message/response counts.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int, activeOnly bool, activeCutoff time.Time) ([]domain.SessionSummary, error) {
	query := `
		SELECT s.session_id, s.uid, s.ip_address, s.metadata, s.created_at, s.last_active,
		       COUNT(DISTINCT m.id) AS message_count,
		       COUNT(DISTINCT r.id) AS response_count
		FROM sessions s
		LEFT JOIN messages m ON s.session_id = m.session_id
		LEFT JOIN responses r ON s.session_id = r.session_id`
	args := []interface{}{}

	if activeOnly {
		query += ` WHERE s.last_active > ?`
		args = append(args, activeCutoff.Unix())
	}
	query += `
		GROUP BY s.session_id
		ORDER BY s.last_active DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query sessions", err)
	}
	defer closeRows(rows, "sessions")

	var summaries []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var uid, ip sql.NullString
		var createdAt, lastActive int64

		if err := rows.Scan(&sum.SessionID, &uid, &ip, &sum.Metadata,
			&createdAt, &lastActive, &sum.MessageCount, &sum.ResponseCount); err != nil {
			return nil, storageErr("scan session summary", err)
		}
		sum.UID = uid.String
		sum.IPAddress = ip.String
		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.LastActive = time.Unix(lastActive, 0)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate sessions", err)
	}
	return summaries, nil
}

// CountSessions returns the total matching a ListSessions filter.
func (s *SQLiteStore) CountSessions(ctx context.Context, activeOnly bool, activeCutoff time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM sessions`
	args := []interface{}{}
	if activeOnly {
		query += ` WHERE last_active > ?`
		args = append(args, activeCutoff.Unix())
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, storageErr("count sessions", err)
	}
	return total, nil
}

// InsertMessage appends a widget message to the inbox queue.
func (s *SQLiteStore) InsertMessage(ctx context.Context, sessionID, body string, ts time.Time) (int64, error) {
	query := `INSERT INTO messages (session_id, body, timestamp) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, sessionID, body, ts.UnixNano())
	if err != nil {
		return 0, storageErr("insert message", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("message insert id", err)
	}
	return id, nil
}

// DrainInbox selects and marks a batch of unprocessed messages in a
// single transaction so concurrent drains never deliver duplicates.
func (s *SQLiteStore) DrainInbox(ctx context.Context, limit, offset int, since *time.Time) ([]domain.Message, int64, error) {
	var messages []domain.Message
	var total int64
	err := withBusyRetry("drain inbox", func() error {
		var opErr error
		messages, total, opErr = s.drainInboxOnce(ctx, limit, offset, since)
		return opErr
	})
	return messages, total, err
}

func (s *SQLiteStore) drainInboxOnce(ctx context.Context, limit, offset int, since *time.Time) ([]domain.Message, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, storageErr("begin drain transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	where := `m.processed = 0`
	args := []interface{}{}
	if since != nil {
		where += ` AND m.timestamp > ?`
		args = append(args, since.UnixNano())
	}

	query := `
		SELECT m.id, m.session_id, m.body, m.timestamp, s.uid
		FROM messages m
		LEFT JOIN sessions s ON m.session_id = s.session_id
		WHERE ` + where + `
		ORDER BY m.timestamp ASC, m.id ASC
		LIMIT ? OFFSET ?`
	queryArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := tx.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, storageErr("query inbox", err)
	}

	var messages []domain.Message
	var ids []interface{}
	for rows.Next() {
		var msg domain.Message
		var uid sql.NullString
		var ts int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Body, &ts, &uid); err != nil {
			closeRows(rows, "inbox")
			return nil, 0, storageErr("scan inbox row", err)
		}
		msg.Timestamp = time.Unix(0, ts)
		msg.UID = uid.String
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows, "inbox")
		return nil, 0, storageErr("iterate inbox", err)
	}
	closeRows(rows, "inbox")

	// Total unprocessed under the same filter, before this batch is
	// marked, for pagination metadata.
	countQuery := `SELECT COUNT(*) FROM messages m WHERE ` + where
	var total int64
	if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count unprocessed", err)
	}

	if len(ids) > 0 {
		placeholders := ""
		for i := range ids {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
		}
		markQuery := `UPDATE messages SET processed = 1 WHERE id IN (` + placeholders + `)`
		if _, err := tx.ExecContext(ctx, markQuery, ids...); err != nil {
			return nil, 0, storageErr("mark processed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, storageErr("commit drain", err)
	}
	// Marked messages are delivered exactly now; a processed flag never
	// reverts, so delivery is at most once.
	for i := range messages {
		messages[i].Processed = true
	}
	return messages, total, nil
}

// ListSessionMessages returns every message for one session.
func (s *SQLiteStore) ListSessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, body, timestamp, processed
		FROM messages WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, storageErr("query session messages", err)
	}
	defer closeRows(rows, "session messages")

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var ts int64
		var processed int
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Body, &ts, &processed); err != nil {
			return nil, storageErr("scan session message", err)
		}
		msg.Timestamp = time.Unix(0, ts)
		msg.Processed = processed != 0
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate session messages", err)
	}
	return messages, nil
}

// InsertResponse appends an agent reply for a session.
func (s *SQLiteStore) InsertResponse(ctx context.Context, sessionID, body string, messageID int64, ts time.Time) (int64, error) {
	query := `INSERT INTO responses (session_id, body, timestamp, message_id) VALUES (?, ?, ?, ?)`

	var msgID interface{}
	if messageID > 0 {
		msgID = messageID
	}

	result, err := s.db.ExecContext(ctx, query, sessionID, body, ts.UnixNano(), msgID)
	if err != nil {
		return 0, storageErr("insert response", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("response insert id", err)
	}
	return id, nil
}

// ListResponses returns a session's responses after since, ascending.
func (s *SQLiteStore) ListResponses(ctx context.Context, sessionID string, since *time.Time) ([]domain.Response, error) {
	query := `
		SELECT id, session_id, body, timestamp, message_id
		FROM responses WHERE session_id = ?`
	args := []interface{}{sessionID}
	if since != nil {
		query += ` AND timestamp > ?`
		args = append(args, since.UnixNano())
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query responses", err)
	}
	defer closeRows(rows, "responses")

	var responses []domain.Response
	for rows.Next() {
		var resp domain.Response
		var ts int64
		var msgID sql.NullInt64
		if err := rows.Scan(&resp.ID, &resp.SessionID, &resp.Body, &ts, &msgID); err != nil {
			return nil, storageErr("scan response row", err)
		}
		resp.Timestamp = time.Unix(0, ts)
		resp.MessageID = msgID.Int64
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate responses", err)
	}
	return responses, nil
}

// AdmitRate runs one fixed-window admission check as a transaction:
// purge stale counters, compare accumulated counts against the limits,
// increment on admission.
func (s *SQLiteStore) AdmitRate(ctx context.Context, ipAddress, endpoint string, endpointLimit, globalLimit int, windowStart, now time.Time) (bool, error) {
	var allowed bool
	err := withBusyRetry("rate admission", func() error {
		var opErr error
		allowed, opErr = s.admitRateOnce(ctx, ipAddress, endpoint, endpointLimit, globalLimit, windowStart, now)
		return opErr
	})
	return allowed, err
}

func (s *SQLiteStore) admitRateOnce(ctx context.Context, ipAddress, endpoint string, endpointLimit, globalLimit int, windowStart, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin rate transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE window_start < ?`, windowStart.Unix()); err != nil {
		return false, storageErr("purge rate counters", err)
	}

	var count int64
	err = tx.QueryRowContext(ctx,
		`SELECT count FROM rate_limits WHERE ip_address = ? AND endpoint = ?`,
		ipAddress, endpoint).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return false, storageErr("read rate counter", err)
	}

	var total int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM rate_limits WHERE ip_address = ?`,
		ipAddress).Scan(&total); err != nil {
		return false, storageErr("sum rate counters", err)
	}

	if count >= int64(endpointLimit) || total >= int64(globalLimit) {
		if err := tx.Commit(); err != nil {
			return false, storageErr("commit rate check", err)
		}
		return false, nil
	}

	// The window_start of an existing row is preserved: the window is
	// anchored at the first admitted request, not slid by later ones.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_limits (ip_address, endpoint, count, window_start)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(ip_address, endpoint) DO UPDATE SET count = count + 1`,
		ipAddress, endpoint, now.Unix()); err != nil {
		return false, storageErr("bump rate counter", err)
	}

	if err := tx.Commit(); err != nil {
		return false, storageErr("commit rate admission", err)
	}
	return true, nil
}

// ClearAll wipes responses, messages and sessions.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin clear transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"responses", "messages", "sessions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return storageErr("clear "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit clear", err)
	}
	return nil
}

// storageErr tags a database failure with the storage sentinel so the
// API boundary can map it without inspecting driver errors.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "rows", what, "error", err)
	}
}

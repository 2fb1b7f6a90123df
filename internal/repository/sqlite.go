package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/guttosm/offline-sync/internal/domain/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Unique idempotency keys on queued_actions
const currentSchemaVersion = 2

// SQLiteStore persists the cache and the queue in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_queued_actions_idempotency
			ON queued_actions(idempotency_key) WHERE idempotency_key != ''
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if version < 2 {
		if _, err := db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_queued_actions_temp_id
			ON queued_actions(temp_id) WHERE temp_id != ''
		`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// HealthCheck verifies the database file is usable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEntry(ctx context.Context, partition, key string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT partition, key, method, url, status, header, body, stored_at, expires_at
		FROM cache_entries WHERE partition = ? AND key = ?`, partition, key)

	var (
		e                   model.CacheEntry
		header              string
		storedAt, expiresAt int64
	)
	err := row.Scan(&e.Partition, &e.Key, &e.Method, &e.URL, &e.Status, &header, &e.Body, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.Header, err = decodeHeader(header); err != nil {
		return nil, err
	}
	e.StoredAt = fromMillis(storedAt)
	e.ExpiresAt = fromMillis(expiresAt)
	return &e, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	header, err := encodeHeader(entry.Header)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (partition, key, method, url, status, header, body, size, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition, key) DO UPDATE SET
			method = excluded.method,
			url = excluded.url,
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			size = excluded.size,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`,
		entry.Partition, entry.Key, entry.Method, entry.URL, entry.Status, header, entry.Body,
		entry.Size(), toMillis(entry.StoredAt), toMillis(entry.ExpiresAt))
	return err
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, partition, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition = ? AND key = ?`, partition, key)
	return err
}

func (s *SQLiteStore) ListKeys(ctx context.Context, partition string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries WHERE partition = ? ORDER BY key`, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) ClearPartition(ctx context.Context, partition string) (int, error) {
	return affected(s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition = ?`, partition))
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, partition string, storedBefore, now time.Time) (int, error) {
	return affected(s.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE partition = ? AND (stored_at < ? OR (expires_at > 0 AND expires_at <= ?))`,
		partition, toMillis(storedBefore), toMillis(now)))
}

func (s *SQLiteStore) TrimPartition(ctx context.Context, partition string, max int) (int, error) {
	if max < 0 {
		return 0, nil
	}
	return affected(s.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE partition = ? AND key NOT IN (
			SELECT key FROM cache_entries WHERE partition = ?
			ORDER BY stored_at DESC, key DESC LIMIT ?
		)`, partition, partition, max))
}

func (s *SQLiteStore) Usage(ctx context.Context) ([]model.PartitionUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition, COUNT(*), COALESCE(SUM(size), 0)
		FROM cache_entries GROUP BY partition ORDER BY partition`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := []model.PartitionUsage{}
	for rows.Next() {
		var u model.PartitionUsage
		if err := rows.Scan(&u.Partition, &u.Entries, &u.Bytes); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

const actionColumns = `seq, id, type, kind, entity_id, temp_id, server_id, method, path, header, payload,
	idempotency_key, status, retry_count, max_retries, last_error, terminal,
	enqueued_at, updated_at, next_attempt_at, completed_at`

func (s *SQLiteStore) InsertAction(ctx context.Context, action *model.QueuedAction) error {
	header, err := encodeHeader(action.Header)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_actions (id, type, kind, entity_id, temp_id, server_id, method, path, header, payload,
			idempotency_key, status, retry_count, max_retries, last_error, terminal,
			enqueued_at, updated_at, next_attempt_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, string(action.Type), action.Kind, action.EntityID, action.TempID, action.ServerID,
		action.Method, action.Path, header, action.Payload, action.IdempotencyKey, string(action.Status),
		action.RetryCount, action.MaxRetries, action.LastError, action.Terminal,
		toMillis(action.EnqueuedAt), toMillis(action.UpdatedAt), toMillis(action.NextAttemptAt), toMillis(action.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	action.Seq = seq
	return nil
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*model.QueuedAction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM queued_actions WHERE id = ?`, id)
	return scanAction(row)
}

func (s *SQLiteStore) UpdateAction(ctx context.Context, action *model.QueuedAction) error {
	header, err := encodeHeader(action.Header)
	if err != nil {
		return err
	}
	n, err := affected(s.db.ExecContext(ctx, `
		UPDATE queued_actions SET
			type = ?, kind = ?, entity_id = ?, temp_id = ?, server_id = ?, method = ?, path = ?,
			header = ?, payload = ?, idempotency_key = ?, status = ?, retry_count = ?, max_retries = ?,
			last_error = ?, terminal = ?, enqueued_at = ?, updated_at = ?, next_attempt_at = ?, completed_at = ?
		WHERE id = ?`,
		string(action.Type), action.Kind, action.EntityID, action.TempID, action.ServerID, action.Method, action.Path,
		header, action.Payload, action.IdempotencyKey, string(action.Status), action.RetryCount, action.MaxRetries,
		action.LastError, action.Terminal, toMillis(action.EnqueuedAt), toMillis(action.UpdatedAt),
		toMillis(action.NextAttemptAt), toMillis(action.CompletedAt), action.ID))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteAction(ctx context.Context, id string) error {
	n, err := affected(s.db.ExecContext(ctx, `DELETE FROM queued_actions WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListActions(ctx context.Context, statuses ...model.ActionStatus) ([]*model.QueuedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM queued_actions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []*model.QueuedAction{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, key string) (*model.QueuedAction, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM queued_actions WHERE idempotency_key = ?`, key)
	return scanAction(row)
}

func (s *SQLiteStore) FindByTempID(ctx context.Context, tempID string) (*model.QueuedAction, error) {
	if tempID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM queued_actions WHERE temp_id = ? AND type = ? ORDER BY seq LIMIT 1`,
		tempID, string(model.ActionCreate))
	return scanAction(row)
}

func (s *SQLiteStore) DeleteFinishedBefore(ctx context.Context, status model.ActionStatus, cutoff time.Time) (int, error) {
	return affected(s.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE status = ? AND updated_at < ?`, string(status), toMillis(cutoff)))
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.ActionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queued_actions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ActionStatus]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.ActionStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) ClearActions(ctx context.Context) (int, error) {
	return affected(s.db.ExecContext(ctx, `DELETE FROM queued_actions`))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*model.QueuedAction, error) {
	var (
		a                                             model.QueuedAction
		typ, status, header                           string
		enqueuedAt, updatedAt, nextAttempt, completed int64
	)
	err := row.Scan(&a.Seq, &a.ID, &typ, &a.Kind, &a.EntityID, &a.TempID, &a.ServerID, &a.Method, &a.Path,
		&header, &a.Payload, &a.IdempotencyKey, &status, &a.RetryCount, &a.MaxRetries, &a.LastError, &a.Terminal,
		&enqueuedAt, &updatedAt, &nextAttempt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Type = model.ActionType(typ)
	a.Status = model.ActionStatus(status)
	if a.Header, err = decodeHeader(header); err != nil {
		return nil, err
	}
	a.EnqueuedAt = fromMillis(enqueuedAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.NextAttemptAt = fromMillis(nextAttempt)
	a.CompletedAt = fromMillis(completed)
	return &a, nil
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	return string(b), nil
}

func decodeHeader(s string) (http.Header, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var h http.Header
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ Store = (*SQLiteStore)(nil)

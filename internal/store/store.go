// Package store implements the embedded, versioned, transactional record
// store every repository and the sync coordinator share.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

// Config holds store configuration.
type Config struct {
	// Path is the database file, or ":memory:" for tests.
	Path string `mapstructure:"path"`
}

// Row is the engine-level view of a persisted record.
type Row struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	Synced    bool
	// Index holds the extracted secondary-index values, keyed by column.
	Index map[string]interface{}
}

// Store is the process-wide store handle. The underlying connection is
// opened lazily on first use; concurrent first callers share a single
// open/upgrade. An open failure is surfaced to the caller and retried on
// the next operation.
type Store struct {
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
	db *sqlx.DB
}

// New creates a store handle without opening the database.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	if m == nil {
		m = metrics.New("clinicsync")
	}
	return &Store{cfg: cfg, log: log, metrics: m}
}

// observe counts one engine operation by outcome.
func (s *Store) observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.StoreOperations.WithLabelValues(op, status).Inc()
}

// conn returns the shared connection, opening and upgrading on first use.
func (s *Store) conn(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", s.cfg.Path)
	if err != nil {
		return nil, apperror.StoreUnavailable(fmt.Errorf("failed to open database: %w", err))
	}

	// SQLite serializes writers anyway; a single connection also keeps
	// ":memory:" databases coherent across goroutines.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, apperror.StoreUnavailable(fmt.Errorf("failed to upgrade schema: %w", err))
	}

	s.db = db
	s.log.Info("store opened", "path", s.cfg.Path, "schema_version", SchemaVersion)
	return s.db, nil
}

// migrate creates missing collections and indexes and records the schema
// version. All DDL is IF NOT EXISTS, so re-running is a no-op.
func migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, systemDDL); err != nil {
		return err
	}

	var current int
	err = tx.GetContext(ctx, &current, `SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported %d", current, SchemaVersion)
	}

	for _, c := range Collections {
		for _, stmt := range c.ddl() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("collection %s: %w", c.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Close releases the underlying connection if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put upserts a record row by primary key.
func (s *Store) Put(ctx context.Context, collection string, row Row) (err error) {
	defer func() { s.observe("put", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return putRow(ctx, db, collection, row)
}

// Get returns a record row or a NotFound error.
func (s *Store) Get(ctx context.Context, collection, id string) (_ Row, err error) {
	defer func() { s.observe("get", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return Row{}, err
	}
	return getRow(ctx, db, collection, id)
}

// GetAll returns every row of a collection in store-native order.
func (s *Store) GetAll(ctx context.Context, collection string) (_ []Row, err error) {
	defer func() { s.observe("get_all", err) }()
	return s.queryRows(ctx, collection, "", nil)
}

// GetAllByIndex returns the rows whose named index column equals value.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index string, value interface{}) (_ []Row, err error) {
	defer func() { s.observe("get_by_index", err) }()
	c, ok := collectionByName(collection)
	if !ok {
		return nil, apperror.Internal(fmt.Errorf("unknown collection %q", collection))
	}
	found := false
	for _, col := range c.indexColumns() {
		if col == index {
			found = true
			break
		}
	}
	if !found {
		return nil, apperror.Internal(fmt.Errorf("collection %q has no index %q", collection, index))
	}
	return s.queryRows(ctx, collection, index, value)
}

func (s *Store) queryRows(ctx context.Context, collection, index string, value interface{}) ([]Row, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, data, created_at, updated_at, synced FROM %s`, collection)
	var args []interface{}
	if index != "" {
		query += fmt.Sprintf(" WHERE %s = ?", index)
		args = append(args, value)
	}

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError(collection, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var r Row
		var synced int
		if err := rows.Scan(&r.ID, &r.Data, &r.CreatedAt, &r.UpdatedAt, &synced); err != nil {
			return nil, apperror.Internal(err)
		}
		r.Synced = synced != 0
		result = append(result, r)
	}
	return result, rows.Err()
}

// Delete removes a record by id. Missing ids are reported as NotFound.
func (s *Store) Delete(ctx context.Context, collection, id string) (err error) {
	defer func() { s.observe("delete", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, collection), id)
	if err != nil {
		return mapSQLError(collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Internal(err)
	}
	if n == 0 {
		return apperror.NotFound(collection + " record")
	}
	return nil
}

// Clear removes every row of a collection. Irreversible.
func (s *Store) Clear(ctx context.Context, collection string) (err error) {
	defer func() { s.observe("clear", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, collection)); err != nil {
		return mapSQLError(collection, err)
	}
	return nil
}

// ClearAll wipes every collection, the pending queue and the kv slots in a
// single transaction. Used for reset and testing only.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, c := range Collections {
			if _, err := tx.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, c.Name)); err != nil {
				return mapSQLError(c.Name, err)
			}
		}
		for _, table := range []string{"pending_changes", "kv"} {
			if _, err := tx.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
				return mapSQLError(table, err)
			}
		}
		return nil
	})
}

// MarkSynced flips the synced flag without touching UpdatedAt; only the
// sync coordinator owns this transition.
func (s *Store) MarkSynced(ctx context.Context, collection, id string) (err error) {
	defer func() { s.observe("mark_synced", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET synced = 1 WHERE id = ?`, collection), id,
	); err != nil {
		return mapSQLError(collection, err)
	}
	return nil
}

// Tx is a multi-collection transaction scope. All operations inside the
// WithTx callback commit or roll back together.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside one transaction, committing on success and rolling
// back on error. The first failure inside fn is the error surfaced.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	defer func() { s.observe("tx", err) }()
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Internal(err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// Put upserts a row within the transaction.
func (t *Tx) Put(ctx context.Context, collection string, row Row) error {
	return putRow(ctx, t.tx, collection, row)
}

// Get reads a row within the transaction.
func (t *Tx) Get(ctx context.Context, collection, id string) (Row, error) {
	return getRow(ctx, t.tx, collection, id)
}

// KVPut writes a durable key-value slot within the transaction.
func (t *Tx) KVPut(ctx context.Context, key string, value []byte) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC(),
	)
	if err != nil {
		return mapSQLError("kv", err)
	}
	return nil
}

// EnqueueChange appends a pending local mutation to the sync queue.
func (t *Tx) EnqueueChange(ctx context.Context, change model.Change) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO pending_changes (id, collection, record_id, op, queued_at) VALUES (?, ?, ?, ?, ?)`,
		change.ID, change.Collection, change.RecordID, string(change.Op), change.QueuedAt,
	)
	if err != nil {
		return mapSQLError("pending_changes", err)
	}
	return nil
}

// PendingChanges returns the queued local mutations in enqueue order.
func (s *Store) PendingChanges(ctx context.Context) ([]model.Change, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var changes []model.Change
	err = db.SelectContext(ctx, &changes,
		`SELECT id, collection, record_id, op, queued_at FROM pending_changes ORDER BY queued_at, id`,
	)
	if err != nil {
		return nil, mapSQLError("pending_changes", err)
	}
	return changes, nil
}

// DequeueChange removes one drained queue entry.
func (s *Store) DequeueChange(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id); err != nil {
		return mapSQLError("pending_changes", err)
	}
	return nil
}

// PendingCount returns the queue depth.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pending_changes`); err != nil {
		return 0, mapSQLError("pending_changes", err)
	}
	return n, nil
}

// KVPut writes a durable key-value slot.
func (s *Store) KVPut(ctx context.Context, key string, value []byte) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC(),
	)
	if err != nil {
		return mapSQLError("kv", err)
	}
	return nil
}

// KVGet reads a durable key-value slot, or NotFound.
func (s *Store) KVGet(ctx context.Context, key string) ([]byte, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var value string
	err = db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("kv slot")
	}
	if err != nil {
		return nil, mapSQLError("kv", err)
	}
	return []byte(value), nil
}

// KVDelete removes a durable key-value slot. Deleting a missing slot is a
// no-op.
func (s *Store) KVDelete(ctx context.Context, key string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return mapSQLError("kv", err)
	}
	return nil
}

// execer is the subset of sqlx shared by DB and Tx handles.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func putRow(ctx context.Context, e execer, collection string, row Row) error {
	c, ok := collectionByName(collection)
	if !ok {
		return apperror.Internal(fmt.Errorf("unknown collection %q", collection))
	}

	cols := []string{"id", "data", "created_at", "updated_at", "synced"}
	args := []interface{}{row.ID, string(row.Data), row.CreatedAt, row.UpdatedAt, boolToInt(row.Synced)}
	updates := []string{
		"data = excluded.data",
		"updated_at = excluded.updated_at",
		"synced = excluded.synced",
	}
	for _, col := range c.indexColumns() {
		cols = append(cols, col)
		args = append(args, row.Index[col])
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		collection,
		joinColumns(cols),
		placeholders(len(cols)),
		joinColumns(updates),
	)
	if _, err := e.ExecContext(ctx, query, args...); err != nil {
		return mapSQLError(collection, err)
	}
	return nil
}

func getRow(ctx context.Context, e execer, collection, id string) (Row, error) {
	var r Row
	var synced int
	err := e.QueryRowxContext(ctx,
		fmt.Sprintf(`SELECT id, data, created_at, updated_at, synced FROM %s WHERE id = ?`, collection), id,
	).Scan(&r.ID, &r.Data, &r.CreatedAt, &r.UpdatedAt, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, apperror.NotFound(collection + " record")
	}
	if err != nil {
		return Row{}, mapSQLError(collection, err)
	}
	r.Synced = synced != 0
	return r, nil
}

// mapSQLError translates driver failures into the application taxonomy.
func mapSQLError(collection string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return apperror.Conflict(fmt.Sprintf("duplicate value in %s", collection), err)
		}
	}
	return apperror.Internal(fmt.Errorf("%s: %w", collection, err))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ", ")
}

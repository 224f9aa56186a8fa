package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/elipena/durable"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteClient is a SQLite-backed durable.Client. Designed for:
//   - Development and testing with zero external setup
//   - Single-process durable executions
//   - Prototyping before migrating to MySQL or Redis
//
// Uses WAL mode for concurrent reads and a single writer connection, the
// same tradeoff the teacher's own SQLiteStore makes.
type SQLiteClient struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteClient opens (creating if needed) the database at path and
// migrates its schema.
func NewSQLiteClient(path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("durable/client: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("durable/client: %s: %w", pragma, err)
		}
	}

	c := &SQLiteClient{db: db}
	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteClient) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS durable_executions (
	arn TEXT PRIMARY KEY,
	token TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS durable_operations (
	arn TEXT NOT NULL,
	operation_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (arn, operation_id)
);
`
	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("durable/client: migrate sqlite schema: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (c *SQLiteClient) Close() error { return c.db.Close() }

// Checkpoint implements durable.Client.
func (c *SQLiteClient) Checkpoint(ctx context.Context, arn, token string, updates []durable.OperationUpdate) (string, []durable.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("durable/client: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentToken string
	err = tx.QueryRowContext(ctx, `SELECT token FROM durable_executions WHERE arn = ?`, arn).Scan(&currentToken)
	switch {
	case err == sql.ErrNoRows:
		currentToken = ""
	case err != nil:
		return "", nil, fmt.Errorf("durable/client: read token: %w", err)
	}
	if currentToken != token {
		return "", nil, durable.ErrStaleCheckpointToken
	}

	nextSeq, err := c.nextSeq(ctx, tx, arn)
	if err != nil {
		return "", nil, err
	}

	for _, u := range updates {
		existing, exists, err := c.getOpTx(ctx, tx, arn, u.OperationID)
		if err != nil {
			return "", nil, err
		}
		op := applyUpdate(existing, exists, u)
		raw, err := encodeOperation(op)
		if err != nil {
			return "", nil, err
		}
		if exists {
			if _, err := tx.ExecContext(ctx, `UPDATE durable_operations SET payload = ? WHERE arn = ? AND operation_id = ?`, raw, arn, u.OperationID); err != nil {
				return "", nil, fmt.Errorf("durable/client: update operation: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `INSERT INTO durable_operations (arn, operation_id, seq, payload) VALUES (?, ?, ?, ?)`, arn, u.OperationID, nextSeq, raw); err != nil {
				return "", nil, fmt.Errorf("durable/client: insert operation: %w", err)
			}
			nextSeq++
		}
	}

	newToken := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO durable_executions (arn, token) VALUES (?, ?)
		ON CONFLICT(arn) DO UPDATE SET token = excluded.token`, arn, newToken); err != nil {
		return "", nil, fmt.Errorf("durable/client: write token: %w", err)
	}

	state, err := c.snapshotTx(ctx, tx, arn)
	if err != nil {
		return "", nil, err
	}
	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("durable/client: commit: %w", err)
	}
	return newToken, state, nil
}

func (c *SQLiteClient) nextSeq(ctx context.Context, tx *sql.Tx, arn string) (int, error) {
	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM durable_operations WHERE arn = ?`, arn).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("durable/client: read max seq: %w", err)
	}
	return int(maxSeq.Int64) + 1, nil
}

func (c *SQLiteClient) getOpTx(ctx context.Context, tx *sql.Tx, arn, opID string) (durable.Operation, bool, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT payload FROM durable_operations WHERE arn = ? AND operation_id = ?`, arn, opID).Scan(&raw)
	if err == sql.ErrNoRows {
		return durable.Operation{}, false, nil
	}
	if err != nil {
		return durable.Operation{}, false, fmt.Errorf("durable/client: read operation: %w", err)
	}
	op, err := decodeOperation(raw)
	if err != nil {
		return durable.Operation{}, false, err
	}
	return op, true, nil
}

func (c *SQLiteClient) snapshotTx(ctx context.Context, tx *sql.Tx, arn string) ([]durable.Operation, error) {
	rows, err := tx.QueryContext(ctx, `SELECT payload FROM durable_operations WHERE arn = ? ORDER BY seq ASC`, arn)
	if err != nil {
		return nil, fmt.Errorf("durable/client: snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []durable.Operation
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("durable/client: scan operation: %w", err)
		}
		op, err := decodeOperation(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// GetState implements durable.Client. SQLiteClient returns the whole state
// on the first call; marker is unused since a single-file database has no
// real pagination boundary to honor.
func (c *SQLiteClient) GetState(ctx context.Context, arn string, _ string) ([]durable.Operation, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `SELECT payload FROM durable_operations WHERE arn = ? ORDER BY seq ASC`, arn)
	if err != nil {
		return nil, "", fmt.Errorf("durable/client: get state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []durable.Operation
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, "", fmt.Errorf("durable/client: scan operation: %w", err)
		}
		op, err := decodeOperation(raw)
		if err != nil {
			return nil, "", err
		}
		out = append(out, op)
	}
	return out, "", rows.Err()
}

package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/elipena/durable"
	"github.com/google/uuid"
)

// MySQLClient is a MySQL-backed durable.Client, for multi-process
// deployments that need a shared, durable checkpoint store. Designed for:
//   - Production executions spread across multiple worker processes
//   - Deployments that already operate a MySQL cluster
//
// dsn follows github.com/go-sql-driver/mysql's DSN format, e.g.
// "user:pass@tcp(127.0.0.1:3306)/durable?parseTime=true".
type MySQLClient struct {
	db *sql.DB
}

// NewMySQLClient opens a connection pool against dsn and migrates the
// schema.
func NewMySQLClient(dsn string) (*MySQLClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("durable/client: open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := &MySQLClient{db: db}
	if err := c.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *MySQLClient) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS durable_executions (
	arn VARCHAR(255) PRIMARY KEY,
	token VARCHAR(64) NOT NULL
) ENGINE=InnoDB;
CREATE TABLE IF NOT EXISTS durable_operations (
	arn VARCHAR(255) NOT NULL,
	operation_id VARCHAR(255) NOT NULL,
	seq INT NOT NULL,
	payload LONGTEXT NOT NULL,
	PRIMARY KEY (arn, operation_id)
) ENGINE=InnoDB;
`
	for _, stmt := range splitStatements(schema) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("durable/client: migrate mysql schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *MySQLClient) Close() error { return c.db.Close() }

// Checkpoint implements durable.Client.
func (c *MySQLClient) Checkpoint(ctx context.Context, arn, token string, updates []durable.OperationUpdate) (string, []durable.Operation, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("durable/client: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentToken string
	err = tx.QueryRowContext(ctx, `SELECT token FROM durable_executions WHERE arn = ? FOR UPDATE`, arn).Scan(&currentToken)
	switch {
	case err == sql.ErrNoRows:
		currentToken = ""
	case err != nil:
		return "", nil, fmt.Errorf("durable/client: read token: %w", err)
	}
	if currentToken != token {
		return "", nil, durable.ErrStaleCheckpointToken
	}

	var nextSeq int
	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM durable_operations WHERE arn = ?`, arn).Scan(&maxSeq); err != nil {
		return "", nil, fmt.Errorf("durable/client: read max seq: %w", err)
	}
	nextSeq = int(maxSeq.Int64) + 1

	for _, u := range updates {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT payload FROM durable_operations WHERE arn = ? AND operation_id = ?`, arn, u.OperationID).Scan(&raw)
		exists := err == nil
		if err != nil && err != sql.ErrNoRows {
			return "", nil, fmt.Errorf("durable/client: read operation: %w", err)
		}
		var existing durable.Operation
		if exists {
			existing, err = decodeOperation(raw)
			if err != nil {
				return "", nil, err
			}
		}
		op := applyUpdate(existing, exists, u)
		encoded, err := encodeOperation(op)
		if err != nil {
			return "", nil, err
		}
		if exists {
			if _, err := tx.ExecContext(ctx, `UPDATE durable_operations SET payload = ? WHERE arn = ? AND operation_id = ?`, encoded, arn, u.OperationID); err != nil {
				return "", nil, fmt.Errorf("durable/client: update operation: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `INSERT INTO durable_operations (arn, operation_id, seq, payload) VALUES (?, ?, ?, ?)`, arn, u.OperationID, nextSeq, encoded); err != nil {
				return "", nil, fmt.Errorf("durable/client: insert operation: %w", err)
			}
			nextSeq++
		}
	}

	newToken := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO durable_executions (arn, token) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE token = VALUES(token)`, arn, newToken); err != nil {
		return "", nil, fmt.Errorf("durable/client: write token: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT payload FROM durable_operations WHERE arn = ? ORDER BY seq ASC`, arn)
	if err != nil {
		return "", nil, fmt.Errorf("durable/client: snapshot: %w", err)
	}
	var state []durable.Operation
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			_ = rows.Close()
			return "", nil, fmt.Errorf("durable/client: scan operation: %w", err)
		}
		op, err := decodeOperation(raw)
		if err != nil {
			_ = rows.Close()
			return "", nil, err
		}
		state = append(state, op)
	}
	if err := rows.Close(); err != nil {
		return "", nil, err
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("durable/client: commit: %w", err)
	}
	return newToken, state, nil
}

// GetState implements durable.Client. marker is unused: MySQLClient pages
// by returning everything under a single ORDER BY seq scan, which is
// adequate for the operation counts a single durable execution produces.
func (c *MySQLClient) GetState(ctx context.Context, arn string, _ string) ([]durable.Operation, string, error) {
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

func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/storage"
)

const schemaQueue = `
CREATE TABLE IF NOT EXISTS sync_queue (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	op_id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	resource TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	payload TEXT,
	enqueued_at TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);`

const schemaAbandoned = `
CREATE TABLE IF NOT EXISTS sync_abandoned (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	op_id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	resource TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	payload TEXT,
	enqueued_at TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	abandoned_at TEXT NOT NULL
);`

const opColumns = `op_id, kind, resource, resource_id, payload, enqueued_at, attempts, last_error`

type entry struct {
	seq int64
	op  itinerary.Operation
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPending(ctx context.Context, db execer, op itinerary.Operation) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sync_queue (`+opColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, string(op.Kind), string(op.Resource), op.ResourceID, nullablePayload(op.Payload),
		op.EnqueuedAt.UTC().Format(time.RFC3339Nano), op.Attempts, op.LastError)
	if err != nil {
		return storage.Unavailable("enqueue operation", err)
	}
	return nil
}

func listPending(ctx context.Context, db *sql.DB) ([]entry, error) {
	rows, err := db.QueryContext(ctx, `SELECT seq, `+opColumns+` FROM sync_queue ORDER BY seq`)
	if err != nil {
		return nil, storage.Unavailable("list queue", err)
	}
	defer rows.Close()

	var out []entry
	for rows.Next() {
		var e entry
		if err := scanOp(rows, &e.seq, &e.op); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list queue", err)
	}
	return out, nil
}

func listAbandoned(ctx context.Context, db *sql.DB) ([]itinerary.Operation, error) {
	rows, err := db.QueryContext(ctx, `SELECT seq, `+opColumns+` FROM sync_abandoned ORDER BY seq`)
	if err != nil {
		return nil, storage.Unavailable("list abandoned", err)
	}
	defer rows.Close()

	ops := []itinerary.Operation{}
	for rows.Next() {
		var seq int64
		var op itinerary.Operation
		if err := scanOp(rows, &seq, &op); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list abandoned", err)
	}
	return ops, nil
}

func scanOp(rows *sql.Rows, seq *int64, op *itinerary.Operation) error {
	var kind, resource, enqueued string
	var payload sql.NullString
	if err := rows.Scan(seq, &op.ID, &kind, &resource, &op.ResourceID, &payload, &enqueued, &op.Attempts, &op.LastError); err != nil {
		return storage.Unavailable("scan operation", err)
	}
	op.Kind = itinerary.OpKind(kind)
	op.Resource = itinerary.Resource(resource)
	if payload.Valid && payload.String != "" {
		op.Payload = []byte(payload.String)
	}
	if t, err := time.Parse(time.RFC3339Nano, enqueued); err == nil {
		op.EnqueuedAt = t
	}
	return nil
}

func deletePending(ctx context.Context, db *sql.DB, seq int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq); err != nil {
		return storage.Unavailable("remove replayed operation", err)
	}
	return nil
}

func recordFailure(ctx context.Context, db *sql.DB, seq int64, msg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE seq = ?`, msg, seq)
	if err != nil {
		return storage.Unavailable("record replay failure", err)
	}
	return nil
}

func abandon(ctx context.Context, db *sql.DB, seq int64, op itinerary.Operation, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin abandon", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_abandoned (`+opColumns+`, abandoned_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, string(op.Kind), string(op.Resource), op.ResourceID, nullablePayload(op.Payload),
		op.EnqueuedAt.UTC().Format(time.RFC3339Nano), op.Attempts, op.LastError,
		at.Format(time.RFC3339Nano))
	if err != nil {
		return storage.Unavailable("abandon operation", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq); err != nil {
		return storage.Unavailable("abandon operation", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit abandon", err)
	}
	return nil
}

// ErrUnknownOperation is returned by Requeue for ids not in the abandoned list.
var ErrUnknownOperation = errors.New("unknown abandoned operation")

func requeue(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin requeue", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (`+opColumns+`)
		SELECT op_id, kind, resource, resource_id, payload, enqueued_at, 0, last_error
		FROM sync_abandoned WHERE op_id = ?`, id)
	if err != nil {
		return storage.Unavailable("requeue operation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_abandoned WHERE op_id = ?`, id); err != nil {
		return storage.Unavailable("requeue operation", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit requeue", err)
	}
	return nil
}

func countPending(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, storage.Unavailable("count queue", err)
	}
	return n, nil
}

func readStats(ctx context.Context, db *sql.DB) (Stats, error) {
	var st Stats
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sync_queue),
			(SELECT COUNT(*) FROM sync_queue WHERE attempts > 0),
			(SELECT COUNT(*) FROM sync_abandoned)`).Scan(&st.Pending, &st.Failing, &st.Abandoned)
	if err != nil {
		return Stats{}, storage.Unavailable("queue stats", err)
	}
	return st, nil
}

func nullablePayload(p []byte) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}

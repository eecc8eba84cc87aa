package results

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pending_submissions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	distance_m  REAL NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS pending_submissions_user ON pending_submissions (user_id, created_at)`

// SQLiteOutbox is the single-node Store used when postgres is not deployed.
// created_at is kept as unix nanoseconds.
type SQLiteOutbox struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteOutbox(db *sql.DB) *SQLiteOutbox {
	return &SQLiteOutbox{db: db, now: time.Now}
}

func (o *SQLiteOutbox) EnsureSchema(ctx context.Context) error {
	_, err := o.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (o *SQLiteOutbox) Save(ctx context.Context, userID string, distanceM float64, cause string) (PendingSubmission, error) {
	p := PendingSubmission{
		ID:        uuid.NewString(),
		UserID:    userID,
		DistanceM: distanceM,
		Attempts:  1,
		LastError: cause,
		CreatedAt: o.now().UTC(),
	}
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO pending_submissions (id, user_id, distance_m, attempts, last_error, created_at)
		VALUES (?,?,?,?,?,?)
	`, p.ID, p.UserID, p.DistanceM, p.Attempts, p.LastError, p.CreatedAt.UnixNano())
	if err != nil {
		return PendingSubmission{}, err
	}
	return p, nil
}

func (o *SQLiteOutbox) Get(ctx context.Context, id string) (PendingSubmission, error) {
	row := o.db.QueryRowContext(ctx, `
		SELECT id, user_id, distance_m, attempts, last_error, created_at
		FROM pending_submissions WHERE id=?
	`, id)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingSubmission{}, ErrPendingNotFound
	}
	return p, err
}

func (o *SQLiteOutbox) Pending(ctx context.Context, userID string) ([]PendingSubmission, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, user_id, distance_m, attempts, last_error, created_at
		FROM pending_submissions WHERE user_id=?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := []PendingSubmission{}
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (o *SQLiteOutbox) RecordFailure(ctx context.Context, id, cause string) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE pending_submissions
		SET attempts = attempts + 1, last_error = ?
		WHERE id=?
	`, cause, id)
	return err
}

func (o *SQLiteOutbox) Delete(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id=?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (PendingSubmission, error) {
	var (
		p       PendingSubmission
		created int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.DistanceM, &p.Attempts, &p.LastError, &created); err != nil {
		return PendingSubmission{}, err
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}

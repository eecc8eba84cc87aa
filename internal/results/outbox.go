package results

import (
	"context"
	"errors"

	"backend-runshare/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_submissions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	distance_m  DOUBLE PRECISION NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps failed submissions so the computed distance is never lost.
// Get returns ErrPendingNotFound for an unknown id.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, userID string, distanceM float64, cause string) (PendingSubmission, error)
	Get(ctx context.Context, id string) (PendingSubmission, error)
	Pending(ctx context.Context, userID string) ([]PendingSubmission, error)
	RecordFailure(ctx context.Context, id, cause string) error
	Delete(ctx context.Context, id string) error
}

// Outbox is the postgres Store.
type Outbox struct {
	db db.Querier
}

func NewOutbox(db db.Querier) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) EnsureSchema(ctx context.Context) error {
	_, err := o.db.Exec(ctx, schema)
	return err
}

func (o *Outbox) Save(ctx context.Context, userID string, distanceM float64, cause string) (PendingSubmission, error) {
	p := PendingSubmission{
		ID:        uuid.NewString(),
		UserID:    userID,
		DistanceM: distanceM,
		Attempts:  1,
		LastError: cause,
	}
	row := o.db.QueryRow(ctx, `
		INSERT INTO pending_submissions (id, user_id, distance_m, attempts, last_error)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, p.ID, p.UserID, p.DistanceM, p.Attempts, p.LastError)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return PendingSubmission{}, err
	}
	return p, nil
}

func (o *Outbox) Get(ctx context.Context, id string) (PendingSubmission, error) {
	var p PendingSubmission
	row := o.db.QueryRow(ctx, `
		SELECT id, user_id, distance_m, attempts, last_error, created_at
		FROM pending_submissions WHERE id=$1
	`, id)
	err := row.Scan(&p.ID, &p.UserID, &p.DistanceM, &p.Attempts, &p.LastError, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingSubmission{}, ErrPendingNotFound
	}
	if err != nil {
		return PendingSubmission{}, err
	}
	return p, nil
}

func (o *Outbox) Pending(ctx context.Context, userID string) ([]PendingSubmission, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, user_id, distance_m, attempts, last_error, created_at
		FROM pending_submissions WHERE user_id=$1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := []PendingSubmission{}
	for rows.Next() {
		var p PendingSubmission
		if err := rows.Scan(&p.ID, &p.UserID, &p.DistanceM, &p.Attempts, &p.LastError, &p.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (o *Outbox) RecordFailure(ctx context.Context, id, cause string) error {
	_, err := o.db.Exec(ctx, `
		UPDATE pending_submissions
		SET attempts = attempts + 1, last_error = $2
		WHERE id=$1
	`, id, cause)
	return err
}

func (o *Outbox) Delete(ctx context.Context, id string) error {
	_, err := o.db.Exec(ctx, `DELETE FROM pending_submissions WHERE id=$1`, id)
	return err
}

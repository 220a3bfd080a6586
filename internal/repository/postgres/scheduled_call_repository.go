package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/predictive-dialer/internal/domain"
	"github.com/acme/predictive-dialer/internal/repository"
)

// ScheduledCallRepository implements repository.ScheduledCallRepository
// using PostgreSQL.
type ScheduledCallRepository struct {
	db *sqlx.DB
}

// NewScheduledCallRepository constructs a new repository.
func NewScheduledCallRepository(db *sqlx.DB) *ScheduledCallRepository {
	return &ScheduledCallRepository{db: db}
}

const scheduledCallColumns = `id, contact_id, campaign_id, phone_number, due_at, priority, status, created_at, updated_at`

// Create inserts a new scheduled call.
func (r *ScheduledCallRepository) Create(ctx context.Context, call *domain.ScheduledCall) error {
	q := `INSERT INTO scheduled_calls (
		id, contact_id, campaign_id, phone_number, due_at, priority, status, created_at, updated_at
	) VALUES (
		:id, :contact_id, :campaign_id, :phone_number, :due_at, :priority, :status, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":           call.ID,
		"contact_id":   call.ContactID,
		"campaign_id":  call.CampaignID,
		"phone_number": call.PhoneNumber,
		"due_at":       call.DueAt,
		"priority":     call.Priority,
		"status":       call.Status,
		"created_at":   call.CreatedAt,
		"updated_at":   call.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("scheduled call repo: insert: %w", err)
	}
	return nil
}

// Get fetches a scheduled call by id.
func (r *ScheduledCallRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledCall, error) {
	q := `SELECT ` + scheduledCallColumns + ` FROM scheduled_calls WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record scheduledCallRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scheduled call repo: get: %w", err)
	}

	call := record.toDomain()
	return &call, nil
}

// ListDue returns pending calls due at the given minute, highest priority
// first. dueAt is expected to be minute-truncated by the caller.
func (r *ScheduledCallRepository) ListDue(ctx context.Context, dueAt time.Time, limit int) ([]*domain.ScheduledCall, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + scheduledCallColumns + `
		FROM scheduled_calls
		WHERE status = $1 AND due_at >= $2 AND due_at < $3
		ORDER BY priority DESC, created_at ASC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, q, domain.ScheduledCallPending, dueAt, dueAt.Add(time.Minute), limit)
	if err != nil {
		return nil, fmt.Errorf("scheduled call repo: list due: %w", err)
	}
	defer rows.Close()

	return scanScheduledCalls(rows)
}

// MarkCompleted transitions a pending call to completed.
func (r *ScheduledCallRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_calls SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		domain.ScheduledCallCompleted, at, id, domain.ScheduledCallPending)
	if err != nil {
		return fmt.Errorf("scheduled call repo: mark completed: %w", err)
	}
	return requireRow(res, "mark completed")
}

// Cancel transitions a pending call to cancelled. Completed or already
// cancelled calls conflict.
func (r *ScheduledCallRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_calls SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		domain.ScheduledCallCancelled, time.Now().UTC(), id, domain.ScheduledCallPending)
	if err != nil {
		return fmt.Errorf("scheduled call repo: cancel: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("scheduled call repo: rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return repository.ErrConflict
	}
	return nil
}

// List returns scheduled calls with keyset pagination.
func (r *ScheduledCallRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.ScheduledCall, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx,
			`SELECT `+scheduledCallColumns+` FROM scheduled_calls WHERE id > $1 ORDER BY id ASC LIMIT $2`,
			*afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx,
			`SELECT `+scheduledCallColumns+` FROM scheduled_calls ORDER BY id ASC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduled call repo: list: %w", err)
	}
	defer rows.Close()

	return scanScheduledCalls(rows)
}

func scanScheduledCalls(rows *sqlx.Rows) ([]*domain.ScheduledCall, error) {
	var results []*domain.ScheduledCall
	for rows.Next() {
		var record scheduledCallRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("scheduled call repo: scan: %w", err)
		}
		call := record.toDomain()
		results = append(results, &call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduled call repo: rows err: %w", err)
	}
	return results, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("scheduled call repo: %s rows affected: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type scheduledCallRecord struct {
	ID          uuid.UUID    `db:"id"`
	ContactID   int64        `db:"contact_id"`
	CampaignID  int64        `db:"campaign_id"`
	PhoneNumber string       `db:"phone_number"`
	DueAt       time.Time    `db:"due_at"`
	Priority    int          `db:"priority"`
	Status      string       `db:"status"`
	CreatedAt   sql.NullTime `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
}

func (r scheduledCallRecord) toDomain() domain.ScheduledCall {
	return domain.ScheduledCall{
		ID:          r.ID,
		ContactID:   r.ContactID,
		CampaignID:  r.CampaignID,
		PhoneNumber: r.PhoneNumber,
		DueAt:       r.DueAt,
		Priority:    r.Priority,
		Status:      domain.ScheduledCallStatus(r.Status),
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
}

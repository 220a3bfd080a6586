package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/predictive-dialer/internal/domain"
	apperrors "github.com/acme/predictive-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates the entity is not in a state that permits
	// the mutation.
	ErrConflict = apperrors.ErrConflict
)

// ScheduledCallRepository manages scheduled-call persistence.
type ScheduledCallRepository interface {
	Create(ctx context.Context, call *domain.ScheduledCall) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledCall, error)
	// ListDue returns pending calls whose due minute equals dueAt,
	// highest priority first.
	ListDue(ctx context.Context, dueAt time.Time, limit int) ([]*domain.ScheduledCall, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.ScheduledCall, error)
}

// SettingsRepository reads operator-tunable key/value settings.
type SettingsRepository interface {
	Values(ctx context.Context, keys []string) (map[string]string, error)
}

// CallRecordStore persists origination outcomes.
type CallRecordStore interface {
	Append(ctx context.Context, record domain.CallRecord) error
	ListByCampaign(ctx context.Context, campaignID int64, limit int, pagingState []byte) ([]domain.CallRecord, []byte, error)
}

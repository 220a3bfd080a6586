package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledCallStatus enumerates lifecycle states of a scheduled call.
type ScheduledCallStatus string

const (
	ScheduledCallPending   ScheduledCallStatus = "pending"
	ScheduledCallCompleted ScheduledCallStatus = "completed"
	ScheduledCallCancelled ScheduledCallStatus = "cancelled"
)

// ScheduledCall models a persisted "place this call at this date/time" request.
// The dispatcher consumes pending calls whose due minute has arrived; it marks
// them completed after a successful origination and never deletes them.
type ScheduledCall struct {
	ID          uuid.UUID
	ContactID   int64
	CampaignID  int64
	PhoneNumber string
	DueAt       time.Time
	Priority    int
	Status      ScheduledCallStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CallRecord captures one origination outcome for a scheduled call.
type CallRecord struct {
	ID              uuid.UUID
	ScheduledCallID uuid.UUID
	ContactID       int64
	CampaignID      int64
	PhoneNumber     string
	Channel         string
	ActionID        string
	Accepted        bool
	Error           string
	OriginatedAt    time.Time
}

// DialPolicy is the throttling policy applied to one dispatch cycle.
// It is resolved once per cycle from configuration plus settings overrides
// and never mutated while the cycle runs.
type DialPolicy struct {
	MaxConcurrentCalls int
	DialRatio          float64
	AnswerTimeout      time.Duration
	WrapupTime         time.Duration
	InterCallDelay     time.Duration
}

// FetchLimit bounds how many due calls one cycle pulls from storage. The
// dial ratio over-fetches relative to the concurrency cap since some
// originations are expected to fail; pacing beyond the cap is not attempted.
func (p DialPolicy) FetchLimit() int {
	limit := p.MaxConcurrentCalls
	if p.DialRatio > 1 {
		limit = int(float64(p.MaxConcurrentCalls)*p.DialRatio + 0.999)
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

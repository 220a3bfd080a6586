package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status values carried by CallStatusMessage.
const (
	CallStatusOriginated = "originated"
	CallStatusFailed     = "failed"
)

// CallStatusMessage reports the outcome of one origination attempt to
// downstream consumers. Originated means the manager accepted the request;
// whether the far end answered is a CDR concern, not carried here.
type CallStatusMessage struct {
	ScheduledCallID uuid.UUID `json:"scheduled_call_id"`
	ContactID       int64     `json:"contact_id"`
	CampaignID      int64     `json:"campaign_id"`
	PhoneNumber     string    `json:"phone_number"`
	Channel         string    `json:"channel,omitempty"`
	ActionID        string    `json:"action_id,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

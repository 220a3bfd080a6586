package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/acme/predictive-dialer/internal/domain"
)

// CallRecordStore persists origination outcomes in Scylla, partitioned by
// campaign and day bucket for append-heavy write patterns.
type CallRecordStore struct {
	session *gocql.Session
}

// NewCallRecordStore creates a new store.
func NewCallRecordStore(session *gocql.Session) *CallRecordStore {
	return &CallRecordStore{session: session}
}

// Append inserts one call record.
func (s *CallRecordStore) Append(ctx context.Context, record domain.CallRecord) error {
	bucket := bucketDate(record.OriginatedAt)
	if err := s.session.Query(`INSERT INTO call_records_by_campaign
		(campaign_id, bucket, record_id, scheduled_call_id, contact_id, phone_number, channel, action_id, accepted, error, originated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CampaignID, bucket, record.ID.String(), record.ScheduledCallID.String(), record.ContactID,
		record.PhoneNumber, record.Channel, record.ActionID, record.Accepted, record.Error, record.OriginatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call record store: insert: %w", err)
	}
	return nil
}

// ListByCampaign pages through a campaign's call records, newest bucket
// first within the partition clustering order.
func (s *CallRecordStore) ListByCampaign(ctx context.Context, campaignID int64, limit int, pagingState []byte) ([]domain.CallRecord, []byte, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT campaign_id, bucket, record_id, scheduled_call_id, contact_id, phone_number, channel, action_id, accepted, error, originated_at
		FROM call_records_by_campaign WHERE campaign_id = ?`,
		campaignID,
	).WithContext(ctx).PageSize(limit).PageState(pagingState).Iter()

	var (
		records         []domain.CallRecord
		bucket          time.Time
		recordIDStr     string
		scheduledIDStr  string
		rec             domain.CallRecord
	)

	for iter.Scan(&rec.CampaignID, &bucket, &recordIDStr, &scheduledIDStr, &rec.ContactID,
		&rec.PhoneNumber, &rec.Channel, &rec.ActionID, &rec.Accepted, &rec.Error, &rec.OriginatedAt) {

		id, err := gocql.ParseUUID(recordIDStr)
		if err != nil {
			iter.Close()
			return nil, nil, fmt.Errorf("call record store: parse record_id: %w", err)
		}
		scheduledID, err := gocql.ParseUUID(scheduledIDStr)
		if err != nil {
			iter.Close()
			return nil, nil, fmt.Errorf("call record store: parse scheduled_call_id: %w", err)
		}

		out := rec
		copy(out.ID[:], id[:])
		copy(out.ScheduledCallID[:], scheduledID[:])
		records = append(records, out)

		if len(records) >= limit {
			break
		}
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call record store: iterate: %w", err)
	}

	return records, nextState, nil
}

func bucketDate(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

package dialer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/predictive-dialer/internal/config"
	"github.com/acme/predictive-dialer/internal/domain"
	"github.com/acme/predictive-dialer/internal/queue"
	"github.com/acme/predictive-dialer/pkg/logger"
)

type fakeCalls struct {
	due       []*domain.ScheduledCall
	limit     int
	completed []uuid.UUID
}

func (f *fakeCalls) ListDue(ctx context.Context, dueAt time.Time, limit int) ([]*domain.ScheduledCall, error) {
	f.limit = limit
	return f.due, nil
}

func (f *fakeCalls) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.completed = append(f.completed, id)
	return nil
}

type fakeRecords struct {
	records []domain.CallRecord
}

func (f *fakeRecords) Append(ctx context.Context, record domain.CallRecord) error {
	f.records = append(f.records, record)
	return nil
}

type fakeStatus struct {
	messages []queue.CallStatusMessage
}

func (f *fakeStatus) PublishStatus(ctx context.Context, msg queue.CallStatusMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

type passthroughPolicy struct{}

func (passthroughPolicy) Resolve(ctx context.Context, defaults domain.DialPolicy) (domain.DialPolicy, error) {
	return defaults, nil
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func pendingCall(phone string, contactID, campaignID int64, priority int) *domain.ScheduledCall {
	return &domain.ScheduledCall{
		ID:          uuid.New(),
		ContactID:   contactID,
		CampaignID:  campaignID,
		PhoneNumber: phone,
		DueAt:       time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC),
		Priority:    priority,
		Status:      domain.ScheduledCallPending,
	}
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	calls      *fakeCalls
	records    *fakeRecords
	status     *fakeStatus
	session    *fakeSession
}

func newFixture(cfg config.DialConfig, session *fakeSession, due ...*domain.ScheduledCall) *dispatcherFixture {
	calls := &fakeCalls{due: due}
	records := &fakeRecords{}
	status := &fakeStatus{}

	d := NewDispatcher(cfg, Deps{
		Calls:   calls,
		Records: records,
		Status:  status,
		Policy:  passthroughPolicy{},
		Sessions: func(ctx context.Context) (ManagerSession, error) {
			return session, nil
		},
		Logger: testLogger(),
	})
	d.now = func() time.Time { return time.Date(2024, 6, 3, 14, 0, 30, 0, time.UTC) }
	d.sleep = func(ctx context.Context, _ time.Duration) error { return nil }

	return &dispatcherFixture{dispatcher: d, calls: calls, records: records, status: status, session: session}
}

func baseConfig() config.DialConfig {
	return config.DialConfig{
		MaxConcurrentCalls: 2,
		Trunk:              "trunk-a",
		Context:            "outbound",
		Extension:          "s",
		Priority:           1,
	}
}

func countOriginates(session *fakeSession) int {
	n := 0
	for _, a := range session.sent {
		if a.Name() == "Originate" {
			n++
		}
	}
	return n
}

func TestCycleSkipsOutsideWorkingHours(t *testing.T) {
	cfg := baseConfig()
	cfg.WorkingHoursStart = "09:00"
	cfg.WorkingHoursEnd = "17:00"
	cfg.TimeZone = "UTC"

	fx := newFixture(cfg, &fakeSession{}, pendingCall("5551234567", 1, 1, 0))
	fx.dispatcher.now = func() time.Time { return time.Date(2024, 6, 3, 18, 30, 0, 0, time.UTC) }
	fx.dispatcher.deps.Sessions = func(ctx context.Context) (ManagerSession, error) {
		t.Error("no manager session may be opened outside working hours")
		return nil, errors.New("unreachable")
	}

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("skip must not be an error: %v", err)
	}
	if len(fx.calls.completed) != 0 {
		t.Fatal("no calls may be mutated outside working hours")
	}
}

func TestBatchStopsWhenCapacityExhausted(t *testing.T) {
	// 3 due calls, cap 2, 1 channel already up: one local increment hits
	// the cap, so exactly one call is attempted.
	sess := &fakeSession{}
	sess.listEvents = append(sess.listEvents, channelEvent("SIP/900-00000001"))

	first := pendingCall("5550000001", 1, 10, 9)
	second := pendingCall("5550000002", 2, 10, 5)
	third := pendingCall("5550000003", 3, 10, 1)
	fx := newFixture(baseConfig(), sess, first, second, third)

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if got := countOriginates(sess); got != 1 {
		t.Fatalf("expected exactly 1 origination, got %d", got)
	}
	if len(fx.calls.completed) != 1 || fx.calls.completed[0] != first.ID {
		t.Fatalf("only the first call may complete, got %v", fx.calls.completed)
	}
	if sess.disconnects != 1 {
		t.Fatalf("session must be disconnected once, got %d", sess.disconnects)
	}
}

func TestEndToEndChannelAndVariables(t *testing.T) {
	sess := &fakeSession{}
	call := pendingCall("(555) 123-4567", 42, 7, 0)
	fx := newFixture(baseConfig(), sess, call)

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if got := countOriginates(sess); got != 1 {
		t.Fatalf("expected 1 origination, got %d", got)
	}
	wire := sess.sent[0].Serialize()

	if !strings.Contains(wire, "Channel: SIP/5551234567@trunk-a\r\n") {
		t.Errorf("non-digits must be stripped from the channel, got %q", wire)
	}
	for _, header := range []string{
		"Variable: CONTACT_ID=42",
		"Variable: CAMPAIGN_ID=7",
		"Variable: SCHEDULED_CALL_ID=" + call.ID.String(),
	} {
		if !strings.Contains(wire, header+"\r\n") {
			t.Errorf("missing %q in %q", header, wire)
		}
	}

	if len(fx.records.records) != 1 {
		t.Fatalf("expected 1 call record, got %d", len(fx.records.records))
	}
	record := fx.records.records[0]
	if !record.Accepted || record.Channel != "SIP/5551234567@trunk-a" || record.ScheduledCallID != call.ID {
		t.Fatalf("unexpected record %+v", record)
	}

	if len(fx.status.messages) != 1 || fx.status.messages[0].Status != queue.CallStatusOriginated {
		t.Fatalf("expected one originated status, got %+v", fx.status.messages)
	}
}

func TestRejectedOriginationLeavesCallPending(t *testing.T) {
	session := &fakeSession{}
	session.responses = append(session.responses, errorResponse("Extension does not exist"))

	call := pendingCall("5551234567", 1, 1, 0)
	fx := newFixture(baseConfig(), session, call)

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("a rejected origination must not abort the batch: %v", err)
	}
	if len(fx.calls.completed) != 0 {
		t.Fatal("rejected call must stay pending")
	}
	if len(fx.status.messages) != 1 || fx.status.messages[0].Status != queue.CallStatusFailed {
		t.Fatalf("expected one failed status, got %+v", fx.status.messages)
	}
	if fx.status.messages[0].Error != "Extension does not exist" {
		t.Fatalf("rejection message must be carried, got %q", fx.status.messages[0].Error)
	}
}

func TestSessionFailureAbortsWholeBatch(t *testing.T) {
	fx := newFixture(baseConfig(), &fakeSession{}, pendingCall("5551234567", 1, 1, 0))
	fx.dispatcher.deps.Sessions = func(ctx context.Context) (ManagerSession, error) {
		return nil, errors.New("connection refused")
	}

	if err := fx.dispatcher.RunCycle(context.Background()); err == nil {
		t.Fatal("a failed session open is fatal for the cycle")
	}
	if len(fx.calls.completed) != 0 {
		t.Fatal("no call may complete when the session never opened")
	}
}

func TestResampleModeQueriesChannelsPerCall(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxConcurrentCalls = 5
	cfg.CapacityMode = "resample"

	sess := &fakeSession{}
	fx := newFixture(cfg, sess,
		pendingCall("5550000001", 1, 1, 0),
		pendingCall("5550000002", 2, 1, 0),
	)

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	// One seed sample plus one resample ahead of each of the two calls.
	if sess.listCalls != 3 {
		t.Fatalf("expected 3 CoreShowChannels queries, got %d", sess.listCalls)
	}
}

func TestDialRatioWidensFetchLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxConcurrentCalls = 4
	cfg.DialRatio = 1.5

	fx := newFixture(cfg, &fakeSession{})

	if err := fx.dispatcher.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if fx.calls.limit != 6 {
		t.Fatalf("expected fetch limit 6 (4 x 1.5), got %d", fx.calls.limit)
	}
}

func TestWithinWorkingHours(t *testing.T) {
	cfg := config.DialConfig{WorkingHoursStart: "09:00", WorkingHoursEnd: "17:00", TimeZone: "UTC"}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{8, 59, false},
		{9, 0, true},
		{12, 30, true},
		{16, 59, true},
		{17, 0, false},
		{18, 30, false},
	}
	for _, tc := range cases {
		now := time.Date(2024, 6, 3, tc.hour, tc.minute, 0, 0, time.UTC)
		if got := withinWorkingHours(now, cfg); got != tc.want {
			t.Errorf("withinWorkingHours(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestWithinWorkingHoursSpanningMidnight(t *testing.T) {
	cfg := config.DialConfig{WorkingHoursStart: "22:00", WorkingHoursEnd: "02:00", TimeZone: "UTC"}

	if !withinWorkingHours(time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC), cfg) {
		t.Error("23:00 must be inside a 22:00-02:00 window")
	}
	if !withinWorkingHours(time.Date(2024, 6, 4, 1, 0, 0, 0, time.UTC), cfg) {
		t.Error("01:00 must be inside a 22:00-02:00 window")
	}
	if withinWorkingHours(time.Date(2024, 6, 4, 3, 0, 0, 0, time.UTC), cfg) {
		t.Error("03:00 must be outside a 22:00-02:00 window")
	}
}

func TestWithinWorkingHoursUnsetWindowAlwaysOpen(t *testing.T) {
	if !withinWorkingHours(time.Now(), config.DialConfig{}) {
		t.Error("an unset window must not block dispatch")
	}
}

package dialer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/predictive-dialer/internal/ami"
	"github.com/acme/predictive-dialer/internal/config"
	"github.com/acme/predictive-dialer/internal/domain"
	"github.com/acme/predictive-dialer/internal/queue"
	"github.com/acme/predictive-dialer/pkg/logger"
)

// ScheduledCallSource supplies and mutates scheduled-call records.
type ScheduledCallSource interface {
	ListDue(ctx context.Context, dueAt time.Time, limit int) ([]*domain.ScheduledCall, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// CallRecordSink persists origination outcomes.
type CallRecordSink interface {
	Append(ctx context.Context, record domain.CallRecord) error
}

// StatusPublisher emits per-origination status events.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg queue.CallStatusMessage) error
}

// PolicyResolver produces the dial policy for one cycle, applying stored
// overrides on top of configured defaults.
type PolicyResolver interface {
	Resolve(ctx context.Context, defaults domain.DialPolicy) (domain.DialPolicy, error)
}

// CycleLock guards against two overlapping dispatch invocations sharing a
// minute's batch.
type CycleLock interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// SessionFactory opens a fresh authenticated manager session. One session
// is exclusively owned by one cycle and never reused.
type SessionFactory func(ctx context.Context) (ManagerSession, error)

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Calls    ScheduledCallSource
	Records  CallRecordSink
	Status   StatusPublisher
	Policy   PolicyResolver
	Lock     CycleLock
	Sessions SessionFactory
	Logger   *logger.Logger
}

// Dispatcher turns due scheduled calls into origination attempts, one
// strictly sequential batch per cycle.
type Dispatcher struct {
	cfg  config.DialConfig
	deps Deps

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(cfg config.DialConfig, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Run executes dispatch cycles on a ticker until cancelled. Environments
// with an external cron call RunCycle once instead.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
			d.deps.Logger.Error("dispatcher: cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one dispatch cycle. A returned error means the whole
// batch aborted (connect or login failure, lost socket); per-call
// origination failures are contained and leave those calls pending.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	log := d.deps.Logger
	tracer := otel.Tracer("dialer.dispatcher")
	ctx, span := tracer.Start(ctx, "dispatch.cycle")
	defer span.End()

	now := d.now().UTC()
	if !withinWorkingHours(now, d.cfg) {
		log.Info("dispatcher: outside working hours, skipping cycle",
			zap.Time("now", now),
			zap.String("window_start", d.cfg.WorkingHoursStart),
			zap.String("window_end", d.cfg.WorkingHoursEnd))
		return nil
	}

	if d.deps.Lock != nil {
		release, acquired, err := d.deps.Lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("dispatcher: acquire cycle lock: %w", err)
		}
		if !acquired {
			log.Warn("dispatcher: another cycle holds the lock, skipping")
			return nil
		}
		defer release()
	}

	policy, err := d.deps.Policy.Resolve(ctx, d.defaultPolicy())
	if err != nil {
		return fmt.Errorf("dispatcher: resolve dial policy: %w", err)
	}

	mode, err := ParseCapacityMode(d.cfg.CapacityMode)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	dueAt := now.Truncate(time.Minute)
	due, err := d.deps.Calls.ListDue(ctx, dueAt, policy.FetchLimit())
	if err != nil {
		return fmt.Errorf("dispatcher: fetch due calls: %w", err)
	}
	span.SetAttributes(attribute.Int("calls.due", len(due)))
	if len(due) == 0 {
		log.Debug("dispatcher: no calls due", zap.Time("due_at", dueAt))
		return nil
	}

	session, err := d.deps.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: open manager session: %w", err)
	}
	defer func() { _ = session.Disconnect() }()

	channels, err := ActiveChannels(session)
	if err != nil {
		return fmt.Errorf("dispatcher: sample active channels: %w", err)
	}
	governor := NewGovernor(mode, policy.MaxConcurrentCalls, len(channels), func() (int, error) {
		chs, err := ActiveChannels(session)
		return len(chs), err
	})

	log.Info("dispatcher: starting batch",
		zap.Int("due", len(due)),
		zap.Int("active_channels", len(channels)),
		zap.Int("max_concurrent", policy.MaxConcurrentCalls),
		zap.String("capacity_mode", string(mode)))

	attempted := 0
	for i, call := range due {
		admit, err := governor.Admit()
		if err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		if !admit {
			log.Info("dispatcher: capacity exhausted, deferring remaining calls",
				zap.Int("remaining", len(due)-i),
				zap.Int("active", governor.Active()))
			break
		}

		cctx, cspan := tracer.Start(ctx, "dispatch.call", trace.WithAttributes(
			attribute.String("scheduled_call.id", call.ID.String()),
			attribute.Int64("campaign.id", call.CampaignID),
		))
		accepted, err := d.placeCall(cctx, session, policy, call)
		if err != nil {
			cspan.RecordError(err)
			cspan.End()
			return err
		}
		cspan.End()

		attempted++
		if accepted {
			governor.NoteOriginated()
		}

		// Pacing pause between originations so the batch does not burst
		// the PBX.
		if i < len(due)-1 && policy.InterCallDelay > 0 {
			if err := d.sleep(ctx, policy.InterCallDelay); err != nil {
				return err
			}
		}
	}

	log.Info("dispatcher: batch finished", zap.Int("attempted", attempted))
	return nil
}

// placeCall attempts one origination. The returned error is non-nil only
// when the batch must abort; a rejected or malformed call is logged,
// published as failed, and left pending for the next cycle.
func (d *Dispatcher) placeCall(ctx context.Context, session ManagerSession, policy domain.DialPolicy, call *domain.ScheduledCall) (bool, error) {
	log := d.deps.Logger

	digits := NormalizeNumber(call.PhoneNumber)
	if digits == "" {
		log.Error("dispatcher: phone number has no digits",
			zap.String("scheduled_call_id", call.ID.String()),
			zap.String("phone", call.PhoneNumber))
		d.publishStatus(ctx, call, "", "", queue.CallStatusFailed, "phone number has no digits")
		return false, nil
	}

	channel := ChannelExpr(digits, d.cfg.Trunk)
	req := OriginateRequest{
		Channel:   channel,
		Context:   d.cfg.Context,
		Extension: d.cfg.Extension,
		Priority:  d.cfg.Priority,
		CallerID:  d.cfg.CallerID,
		Timeout:   policy.AnswerTimeout,
		Variables: []ChannelVariable{
			{Key: "CONTACT_ID", Value: strconv.FormatInt(call.ContactID, 10)},
			{Key: "CAMPAIGN_ID", Value: strconv.FormatInt(call.CampaignID, 10)},
			{Key: "SCHEDULED_CALL_ID", Value: call.ID.String()},
		},
	}

	result, err := Originate(session, req)
	if err != nil {
		if errors.Is(err, ami.ErrConnection) {
			return false, fmt.Errorf("dispatcher: %w", err)
		}
		log.Error("dispatcher: originate failed",
			zap.String("scheduled_call_id", call.ID.String()),
			zap.Error(err))
		d.publishStatus(ctx, call, channel, result.ActionID, queue.CallStatusFailed, err.Error())
		return false, nil
	}
	if !result.Accepted {
		log.Warn("dispatcher: origination rejected",
			zap.String("scheduled_call_id", call.ID.String()),
			zap.String("channel", channel),
			zap.String("message", result.Message))
		d.publishStatus(ctx, call, channel, result.ActionID, queue.CallStatusFailed, result.Message)
		return false, nil
	}

	now := d.now().UTC()
	if err := d.deps.Calls.MarkCompleted(ctx, call.ID, now); err != nil {
		log.Error("dispatcher: mark completed",
			zap.String("scheduled_call_id", call.ID.String()),
			zap.Error(err))
	}

	record := domain.CallRecord{
		ID:              uuid.New(),
		ScheduledCallID: call.ID,
		ContactID:       call.ContactID,
		CampaignID:      call.CampaignID,
		PhoneNumber:     call.PhoneNumber,
		Channel:         channel,
		ActionID:        result.ActionID,
		Accepted:        true,
		OriginatedAt:    now,
	}
	if err := d.deps.Records.Append(ctx, record); err != nil {
		log.Error("dispatcher: append call record",
			zap.String("scheduled_call_id", call.ID.String()),
			zap.Error(err))
	}

	d.publishStatus(ctx, call, channel, result.ActionID, queue.CallStatusOriginated, "")
	log.Info("dispatcher: call originated",
		zap.String("scheduled_call_id", call.ID.String()),
		zap.String("channel", channel),
		zap.String("action_id", result.ActionID))
	return true, nil
}

func (d *Dispatcher) publishStatus(ctx context.Context, call *domain.ScheduledCall, channel, actionID, status, errMsg string) {
	if d.deps.Status == nil {
		return
	}
	msg := queue.CallStatusMessage{
		ScheduledCallID: call.ID,
		ContactID:       call.ContactID,
		CampaignID:      call.CampaignID,
		PhoneNumber:     call.PhoneNumber,
		Channel:         channel,
		ActionID:        actionID,
		Status:          status,
		Error:           errMsg,
		OccurredAt:      d.now().UTC(),
	}
	if err := d.deps.Status.PublishStatus(ctx, msg); err != nil {
		d.deps.Logger.Warn("dispatcher: publish status", zap.Error(err))
	}
}

func (d *Dispatcher) defaultPolicy() domain.DialPolicy {
	return domain.DialPolicy{
		MaxConcurrentCalls: d.cfg.MaxConcurrentCalls,
		DialRatio:          d.cfg.DialRatio,
		AnswerTimeout:      d.cfg.AnswerTimeout,
		WrapupTime:         d.cfg.WrapupTime,
		InterCallDelay:     d.cfg.InterCallDelay,
	}
}

func withinWorkingHours(now time.Time, cfg config.DialConfig) bool {
	if cfg.WorkingHoursStart == "" || cfg.WorkingHoursEnd == "" {
		return true
	}

	start, err := parseClock(cfg.WorkingHoursStart)
	if err != nil {
		return true
	}
	end, err := parseClock(cfg.WorkingHoursEnd)
	if err != nil {
		return true
	}

	loc := time.UTC
	if cfg.TimeZone != "" {
		if l, lerr := time.LoadLocation(cfg.TimeZone); lerr == nil {
			loc = l
		}
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if end <= start {
		// window spans midnight
		return minute >= start || minute < end
	}
	return minute >= start && minute < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package dialpolicy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/acme/predictive-dialer/internal/domain"
	"github.com/acme/predictive-dialer/internal/repository"
)

// Setting keys recognized as per-cycle policy overrides.
const (
	KeyMaxConcurrentCalls = "max_concurrent_calls"
	KeyDialRatio          = "dial_ratio"
	KeyAnswerTimeout      = "answer_timeout"
	KeyWrapupTime         = "wrapup_time"
	KeyInterCallDelay     = "inter_call_delay"
)

var overrideKeys = []string{
	KeyMaxConcurrentCalls,
	KeyDialRatio,
	KeyAnswerTimeout,
	KeyWrapupTime,
	KeyInterCallDelay,
}

// Resolver produces the effective dial policy for one dispatch cycle:
// configured defaults overlaid with rows from the settings table. The
// result is read once per cycle and treated as immutable while it runs.
type Resolver struct {
	settings repository.SettingsRepository
}

// NewResolver constructs a resolver.
func NewResolver(settings repository.SettingsRepository) *Resolver {
	return &Resolver{settings: settings}
}

// Resolve applies stored overrides to the defaults. Malformed or
// non-positive stored values are ignored in favor of the default.
func (r *Resolver) Resolve(ctx context.Context, defaults domain.DialPolicy) (domain.DialPolicy, error) {
	policy := defaults
	if r.settings == nil {
		return policy, nil
	}

	values, err := r.settings.Values(ctx, overrideKeys)
	if err != nil {
		return domain.DialPolicy{}, fmt.Errorf("dial policy: load settings: %w", err)
	}

	if v, ok := values[KeyMaxConcurrentCalls]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			policy.MaxConcurrentCalls = n
		}
	}
	if v, ok := values[KeyDialRatio]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			policy.DialRatio = f
		}
	}
	if d, ok := durationValue(values, KeyAnswerTimeout); ok {
		policy.AnswerTimeout = d
	}
	if d, ok := durationValue(values, KeyWrapupTime); ok {
		policy.WrapupTime = d
	}
	if d, ok := durationValue(values, KeyInterCallDelay); ok {
		policy.InterCallDelay = d
	}

	return policy, nil
}

func durationValue(values map[string]string, key string) (time.Duration, bool) {
	v, ok := values[key]
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

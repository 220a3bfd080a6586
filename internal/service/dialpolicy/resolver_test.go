package dialpolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acme/predictive-dialer/internal/domain"
)

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) Values(ctx context.Context, keys []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func defaults() domain.DialPolicy {
	return domain.DialPolicy{
		MaxConcurrentCalls: 10,
		DialRatio:          1.0,
		AnswerTimeout:      30 * time.Second,
		WrapupTime:         15 * time.Second,
		InterCallDelay:     2 * time.Second,
	}
}

func TestResolveNoOverrides(t *testing.T) {
	r := NewResolver(&fakeSettings{values: map[string]string{}})

	policy, err := r.Resolve(context.Background(), defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy != defaults() {
		t.Fatalf("policy changed without overrides: %+v", policy)
	}
}

func TestResolveAppliesStoredValues(t *testing.T) {
	r := NewResolver(&fakeSettings{values: map[string]string{
		KeyMaxConcurrentCalls: "25",
		KeyDialRatio:          "1.4",
		KeyAnswerTimeout:      "45s",
		KeyInterCallDelay:     "500ms",
	}})

	policy, err := r.Resolve(context.Background(), defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.MaxConcurrentCalls != 25 {
		t.Errorf("max concurrent = %d, want 25", policy.MaxConcurrentCalls)
	}
	if policy.DialRatio != 1.4 {
		t.Errorf("dial ratio = %v, want 1.4", policy.DialRatio)
	}
	if policy.AnswerTimeout != 45*time.Second {
		t.Errorf("answer timeout = %v, want 45s", policy.AnswerTimeout)
	}
	if policy.InterCallDelay != 500*time.Millisecond {
		t.Errorf("inter-call delay = %v, want 500ms", policy.InterCallDelay)
	}
	if policy.WrapupTime != 15*time.Second {
		t.Errorf("wrapup = %v, want default 15s", policy.WrapupTime)
	}
}

func TestResolveIgnoresMalformedValues(t *testing.T) {
	r := NewResolver(&fakeSettings{values: map[string]string{
		KeyMaxConcurrentCalls: "lots",
		KeyDialRatio:          "-2",
		KeyAnswerTimeout:      "45",
	}})

	policy, err := r.Resolve(context.Background(), defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy != defaults() {
		t.Fatalf("malformed overrides applied: %+v", policy)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	boom := errors.New("settings down")
	r := NewResolver(&fakeSettings{err: boom})

	if _, err := r.Resolve(context.Background(), defaults()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestResolveWithoutStore(t *testing.T) {
	r := NewResolver(nil)

	policy, err := r.Resolve(context.Background(), defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy != defaults() {
		t.Fatalf("policy = %+v, want defaults", policy)
	}
}

package dialer

import "fmt"

// CapacityMode selects how the governor tracks live channel count within a
// batch. The two modes trade AMI round-trips against counter drift.
type CapacityMode string

const (
	// CapacityModeLocal samples the channel count once per batch and
	// increments an in-memory counter per accepted origination. Cheap, but
	// the counter drifts from ground truth when calls hang up mid-batch.
	CapacityModeLocal CapacityMode = "local"
	// CapacityModeResample re-queries CoreShowChannels before every
	// origination. Accurate at the cost of one extra round-trip per call.
	CapacityModeResample CapacityMode = "resample"
)

// ParseCapacityMode validates a configured mode string, defaulting to local.
func ParseCapacityMode(s string) (CapacityMode, error) {
	switch CapacityMode(s) {
	case CapacityModeLocal, "":
		return CapacityModeLocal, nil
	case CapacityModeResample:
		return CapacityModeResample, nil
	default:
		return "", fmt.Errorf("governor: unknown capacity mode %q", s)
	}
}

// HasCapacity reports whether another origination fits under the cap.
func HasCapacity(active, max int) bool {
	return active < max
}

// Governor enforces the concurrent-call cap ahead of every origination in
// a batch.
type Governor struct {
	mode   CapacityMode
	max    int
	active int
	sample func() (int, error)
}

// NewGovernor seeds a governor with the channel count observed at batch
// start. sample is consulted per call only in resample mode.
func NewGovernor(mode CapacityMode, max, initialActive int, sample func() (int, error)) *Governor {
	return &Governor{mode: mode, max: max, active: initialActive, sample: sample}
}

// Admit decides whether one more origination may proceed.
func (g *Governor) Admit() (bool, error) {
	if g.mode == CapacityModeResample && g.sample != nil {
		n, err := g.sample()
		if err != nil {
			return false, fmt.Errorf("governor: resample channels: %w", err)
		}
		g.active = n
	}
	return HasCapacity(g.active, g.max), nil
}

// NoteOriginated records one accepted origination against the local count.
func (g *Governor) NoteOriginated() {
	g.active++
}

// Active exposes the current tracked count, for logging.
func (g *Governor) Active() int {
	return g.active
}

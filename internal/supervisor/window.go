package supervisor

import "time"

// tracker keeps the ordered recent failure timestamps for one process.
// The sliding window distinguishes a flapping process from one that crashed
// once months into a healthy run: only timestamps inside the window count
// against the restart budget.
type tracker struct {
	window time.Duration
	stamps []time.Time
}

func newTracker(window time.Duration) *tracker {
	return &tracker{window: window}
}

// prune drops timestamps older than now - window. A zero window keeps
// everything (lifetime counting).
func (t *tracker) prune(now time.Time) {
	if t.window <= 0 {
		return
	}
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.stamps) && !t.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.stamps = append(t.stamps[:0], t.stamps[i:]...)
	}
}

// observe records a failure at now and returns the in-window count
// including this one. Old timestamps are pruned first.
func (t *tracker) observe(now time.Time) int {
	t.prune(now)
	t.stamps = append(t.stamps, now)
	return len(t.stamps)
}

// count returns the in-window failure count without recording anything.
func (t *tracker) count(now time.Time) int {
	t.prune(now)
	return len(t.stamps)
}

// reset forgives all recorded failures. Used after a run that sustained
// the policy's minimum uptime.
func (t *tracker) reset() {
	t.stamps = t.stamps[:0]
}

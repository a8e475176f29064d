package ticket

import "time"

const (
	// cycleInterval is the admission window cadence observed on the
	// remote; odd attempts align to its boundary.
	cycleInterval = 5500 * time.Millisecond

	defaultProbeInterval = 100 * time.Millisecond
)

// Scheduler computes the wait before the next purchase attempt in a burst.
// Even attempts use a short fixed probe; odd attempts wait out the rest of
// the current 5.5s admission cycle, discounting time already spent and the
// network jitter floor.
type Scheduler struct {
	Probe time.Duration
}

// NextInterval returns the wait after the given attempt. cumulative is the
// wall-clock total of prior attempts plus prior waits; minAttempt the
// shortest attempt duration seen so far in the burst. A negative computed
// value clamps to zero.
func (s Scheduler) NextInterval(attempt int, cumulative, minAttempt time.Duration) time.Duration {
	if attempt%2 == 0 {
		if s.Probe > 0 {
			return s.Probe
		}
		return defaultProbeInterval
	}

	cycles := time.Duration((attempt + 1) / 2)
	wait := cycles*cycleInterval - cumulative - minAttempt
	if wait < 0 {
		wait = 0
	}
	return wait
}

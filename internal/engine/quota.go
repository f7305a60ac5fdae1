package engine

import "time"

// Default throttle cadence.
const (
	DefaultThrottleEvery = 500
	DefaultThrottlePause = time.Second
)

// Throttle decides when a run pauses to let the store breathe.
//
// A pause is due each time the processed count reaches a multiple of Every.
// The count includes skipped and failed records, so a run over many
// unresolvable records still paces itself.
type Throttle struct {
	every int
	pause time.Duration
	fired int
}

// NewThrottle creates a throttle pausing for pause every every records.
// every <= 0 disables throttling.
func NewThrottle(every int, pause time.Duration) *Throttle {
	return &Throttle{every: every, pause: pause}
}

// Due reports whether a pause is due after processed records.
func (t *Throttle) Due(processed int) bool {
	return t.every > 0 && processed > 0 && processed%t.every == 0
}

// Pause returns the pause duration and counts the pause.
func (t *Throttle) Pause() time.Duration {
	t.fired++
	return t.pause
}

// Fired returns how many pauses were taken.
func (t *Throttle) Fired() int {
	return t.fired
}

// Every returns the throttle cadence.
func (t *Throttle) Every() int {
	return t.every
}

package device

import "time"

// SystemClock is a motion.Clock measuring time since it was created
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a SystemClock
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the time elapsed since boot
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

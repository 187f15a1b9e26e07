package syncer

import (
	"fmt"
	"time"
)

// Policy decides what happens when an update loses the version race.
type Policy string

const (
	// PolicyHold keeps both sides in conflict until someone resolves it.
	PolicyHold Policy = "hold"
	// PolicyLastWriterWins keeps whichever side has the newer UpdatedAt.
	// Delete conflicts are held regardless.
	PolicyLastWriterWins Policy = "lww"
)

func (p Policy) Valid() bool {
	return p == PolicyHold || p == PolicyLastWriterWins
}

type Config struct {
	Policy        Policy
	Interval      time.Duration
	ProbeInterval time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	// MaxAttempts is the failure count from which a note is reported in
	// Report.Exhausted. Retries continue at BackoffMax.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Policy:        PolicyHold,
		Interval:      30 * time.Second,
		ProbeInterval: 10 * time.Second,
		BackoffBase:   2 * time.Second,
		BackoffMax:    5 * time.Minute,
		MaxAttempts:   8,
	}
}

func (c Config) validate() error {
	switch {
	case !c.Policy.Valid():
		return fmt.Errorf("unknown conflict policy %q", c.Policy)
	case c.Interval <= 0, c.ProbeInterval <= 0:
		return fmt.Errorf("sync intervals must be positive")
	case c.BackoffBase <= 0, c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("invalid backoff %s..%s", c.BackoffBase, c.BackoffMax)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("max attempts must be positive")
	}
	return nil
}

// Backoff returns the delay before retry number attempts (1-based):
// base * 2^(attempts-1), capped at limit.
func Backoff(attempts int, base, limit time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

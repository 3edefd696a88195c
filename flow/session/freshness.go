package session

import (
	"fmt"
	"time"
)

// Freshness default limits. A session past any of them is considered stale
// and must be recreated rather than reused.
const (
	DefaultMaxAge             = 24 * time.Hour
	DefaultMaxIdle            = 2 * time.Hour
	DefaultMaxTotalIterations = 1000
)

// Freshness is the staleness policy for a session: too old, too idle, or
// too large (accumulated iterations). Zero fields take the defaults;
// negative values disable the corresponding check.
type Freshness struct {
	// MaxAge bounds time since session creation.
	MaxAge time.Duration

	// MaxIdle bounds time since the last invocation.
	MaxIdle time.Duration

	// MaxTotalIterations bounds iterations accumulated across invocations.
	MaxTotalIterations int
}

func (f Freshness) withDefaults() Freshness {
	if f.MaxAge == 0 {
		f.MaxAge = DefaultMaxAge
	}
	if f.MaxIdle == 0 {
		f.MaxIdle = DefaultMaxIdle
	}
	if f.MaxTotalIterations == 0 {
		f.MaxTotalIterations = DefaultMaxTotalIterations
	}
	return f
}

// Evaluate reports whether a session is stale and why. lastActivity may be
// zero for a session that has never been invoked; the idle check is skipped
// in that case.
func (f Freshness) Evaluate(createdAt, lastActivity time.Time, iterations int) (bool, string) {
	now := time.Now().UTC()

	if f.MaxAge > 0 {
		if age := now.Sub(createdAt); age > f.MaxAge {
			return true, fmt.Sprintf("session age %s exceeds limit %s", age.Round(time.Second), f.MaxAge)
		}
	}
	if f.MaxIdle > 0 && !lastActivity.IsZero() {
		if idle := now.Sub(lastActivity); idle > f.MaxIdle {
			return true, fmt.Sprintf("idle time %s exceeds limit %s", idle.Round(time.Second), f.MaxIdle)
		}
	}
	if f.MaxTotalIterations > 0 && iterations > f.MaxTotalIterations {
		return true, fmt.Sprintf("accumulated iterations %d exceed limit %d", iterations, f.MaxTotalIterations)
	}
	return false, ""
}

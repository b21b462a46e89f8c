// Package schedule implements the auto-time gate (§4.3): the
// predicate deciding whether a (host, directory) backup is due.
package schedule

import "time"

// Due reports whether a new hourly snapshot is due.
//
// If force is true or autoTime is false, Due always returns true. A
// missing slot0 (caller passes the zero time) also always proceeds,
// since now.Sub(zero) is enormous.
func Due(hourlies uint, slot0 time.Time, now time.Time, mustExceed time.Duration, force, autoTime bool) bool {
	if force || !autoTime {
		return true
	}
	return now.Sub(slot0) > Threshold(hourlies, mustExceed)
}

// Threshold computes the effective "must exceed" interval:
//
//	max((24/H - 0.5) * 3600 seconds, mustExceed)
//
// H is clamped to at least 1 to avoid division by zero; spec.md
// requires Hourlies >= 1 as a config-fatal invariant, so callers are
// expected to have already rejected H == 0 before reaching here.
func Threshold(hourlies uint, mustExceed time.Duration) time.Duration {
	h := hourlies
	if h == 0 {
		h = 1
	}
	floorSeconds := (24.0/float64(h) - 0.5) * 3600
	floor := time.Duration(floorSeconds * float64(time.Second))
	if mustExceed > floor {
		return mustExceed
	}
	return floor
}

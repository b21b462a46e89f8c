// Package clock implements usecase.ClockPort over the system clock.
package clock

import "time"

// Adapter is the real wall-clock implementation of usecase.ClockPort.
type Adapter struct{}

// New creates a system clock adapter.
func New() Adapter { return Adapter{} }

// Now returns the current local time.
func (Adapter) Now() time.Time { return time.Now() }

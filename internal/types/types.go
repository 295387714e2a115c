// README: Common value types shared across modules.
package types

import "time"

// ID identifies engineers, jobs, and offers across stores.
type ID string

// Point is a geographic coordinate (longitude first, matching provider order).
type Point struct {
	Lng float64
	Lat float64
}

// Clock abstracts wall-clock time so caches and the forward-date search can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

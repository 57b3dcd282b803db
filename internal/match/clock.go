package match

import "time"

// Timer is a cancellable scheduled callback. Stop reports whether the call
// was prevented from firing; stopping an already-fired or already-stopped
// timer is a harmless no-op.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the coordinator so tests can fire queue timeouts
// deterministically instead of sleeping through the real five-minute window.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock { return systemClock{} }

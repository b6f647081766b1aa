package pool

import "time"

// Clock abstracts time for cooldown arithmetic so expiry is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

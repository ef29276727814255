package ports

import "time"

// Clock is the time source used by the timing protocols
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

package clock

import (
	"time"

	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
)

// SystemClock returns the current wall-clock time and real timers.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) AfterFunc(d time.Duration, f func()) clockport.Timer {
	return time.AfterFunc(d, f)
}

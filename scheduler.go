package easyplayer

import (
	"errors"
	"time"

	"github.com/minaorangina/easyplayer/tick"
)

var ErrNoScheduler = errors.New("player has no scheduler")

// Cancellable is a pending deferred action.
// Cancel reports whether the action was still pending.
type Cancellable interface {
	Cancel() bool
}

// Scheduler runs fn once, on the host's tick thread, after delay has elapsed.
type Scheduler interface {
	Schedule(delay time.Duration, fn func() error) Cancellable
}

// SchedulerFunc adapts a function to the Scheduler interface
type SchedulerFunc func(delay time.Duration, fn func() error) Cancellable

func (f SchedulerFunc) Schedule(delay time.Duration, fn func() error) Cancellable {
	return f(delay, fn)
}

// NewTickScheduler schedules onto a tick dispatcher
func NewTickScheduler(d *tick.Dispatcher) Scheduler {
	return SchedulerFunc(func(delay time.Duration, fn func() error) Cancellable {
		return d.Delay(delay, fn)
	})
}

package tick

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRate is the tick rate in Hz used when none is configured
const DefaultRate = 66

var (
	ErrPanic = errors.New("delay callback panicked")
)

// delayState represents the lifecycle of a Delay
// pending -> fired
// pending -> cancelled
type delayState int

const (
	pending delayState = iota
	fired
	cancelled
)

var stateNames = map[delayState]string{
	pending:   "pending",
	fired:     "fired",
	cancelled: "cancelled",
}

func (s delayState) String() string {
	return stateNames[s]
}

// IntervalFromRate converts a tick rate in Hz to a tick interval
func IntervalFromRate(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultRate
	}
	return time.Second / time.Duration(hz)
}

type DispatcherOpts struct {
	Interval time.Duration
	Logger   logrus.FieldLogger
}

// Dispatcher is a tick-driven delay queue.
// Game time only advances when Tick is called, so a Dispatcher that is
// ticked by hand is fully deterministic.
type Dispatcher struct {
	mu       sync.Mutex
	interval time.Duration
	ticks    uint64
	lastID   uint64
	pending  int
	queue    delayQueue
	log      logrus.FieldLogger
}

// NewDispatcher constructs a Dispatcher
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = IntervalFromRate(DefaultRate)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Dispatcher{
		interval: opts.Interval,
		queue:    delayQueue{},
		log:      opts.Logger,
	}
}

// Delay is a callback waiting in a Dispatcher
type Delay struct {
	id     uint64
	execAt time.Duration
	fn     func() error
	state  delayState
	d      *Dispatcher
}

// Delay schedules fn to run once game time has advanced by delay.
// Negative delays are treated as zero: fn runs on the next tick.
func (d *Dispatcher) Delay(delay time.Duration, fn func() error) *Delay {
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastID++
	dl := &Delay{
		id:     d.lastID,
		execAt: d.nowLocked() + delay,
		fn:     fn,
		d:      d,
	}
	heap.Push(&d.queue, dl)
	d.pending++

	return dl
}

// Tick advances game time by one interval and runs every due delay in
// order. Delays scheduled while the tick is running wait for the next one.
func (d *Dispatcher) Tick() {
	d.mu.Lock()
	d.ticks++
	tick := d.ticks
	now := d.nowLocked()
	limit := d.lastID
	d.mu.Unlock()

	for {
		dl := d.popDue(now, limit)
		if dl == nil {
			return
		}
		if err := call(dl.fn); err != nil {
			d.log.WithFields(logrus.Fields{
				"delay_id": dl.id,
				"tick":     tick,
			}).WithError(err).Error("delay callback failed")
		}
	}
}

func (d *Dispatcher) popDue(now time.Duration, limit uint64) *Delay {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		next := d.queue.peek()
		if next == nil || next.execAt > now || next.id > limit {
			return nil
		}
		heap.Pop(&d.queue)
		if next.state != pending {
			continue
		}
		next.state = fired
		d.pending--
		return next
	}
}

// Do runs fn on the tick thread at the next tick and waits for its result.
// If ctx is done before fn has started, fn is cancelled.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	dl := d.Delay(0, func() error {
		errCh <- call(fn)
		return nil
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if dl.Cancel() {
			return ctx.Err()
		}
		return <-errCh
	}
}

// Run ticks the dispatcher every interval until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.WithField("interval", d.interval).Info("tick loop started")

	for {
		select {
		case <-ctx.Done():
			d.log.WithField("ticks", d.Ticks()).Info("tick loop stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Now returns the current game time
func (d *Dispatcher) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nowLocked()
}

func (d *Dispatcher) nowLocked() time.Duration {
	return time.Duration(d.ticks) * d.interval
}

func (d *Dispatcher) Ticks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

func (d *Dispatcher) Interval() time.Duration {
	return d.interval
}

// Pending returns the number of delays that have neither fired nor been cancelled
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (dl *Delay) ID() uint64 {
	return dl.id
}

// Cancel stops the delay from firing.
// It reports false if the delay already fired or was already cancelled.
func (dl *Delay) Cancel() bool {
	dl.d.mu.Lock()
	defer dl.d.mu.Unlock()

	if dl.state != pending {
		return false
	}
	// the entry stays in the heap and is skipped when popped
	dl.state = cancelled
	dl.d.pending--
	return true
}

// Running reports whether the delay is still waiting to fire
func (dl *Delay) Running() bool {
	dl.d.mu.Lock()
	defer dl.d.mu.Unlock()
	return dl.state == pending
}

// ExecTime returns the game time the delay fires at
func (dl *Delay) ExecTime() time.Duration {
	return dl.execAt
}

// TimeRemaining returns the game time left until the delay fires
func (dl *Delay) TimeRemaining() time.Duration {
	dl.d.mu.Lock()
	defer dl.d.mu.Unlock()

	if dl.state != pending {
		return 0
	}
	if left := dl.execAt - dl.d.nowLocked(); left > 0 {
		return left
	}
	return 0
}

func (dl *Delay) String() string {
	dl.d.mu.Lock()
	defer dl.d.mu.Unlock()
	return fmt.Sprintf("delay %d (%s) at %s", dl.id, dl.state, dl.execAt)
}

func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}

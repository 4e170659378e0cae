package easyplayer

import (
	"errors"
	"testing"
	"time"

	utils "github.com/minaorangina/easyplayer/internal"
	"github.com/minaorangina/easyplayer/tick"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTick = 10 * time.Millisecond

func newTestEnv(t *testing.T) (Env, *TestEntity, *tick.Dispatcher) {
	t.Helper()

	logger, _ := logrustest.NewNullLogger()
	d := tick.NewDispatcher(tick.DispatcherOpts{Interval: testTick, Logger: logger})
	e := NewTestEntity(7, 2, map[string]int{"health": 100, "speed": 250})
	env := Env{
		Registry:  NewTestRegistry(map[int]Entity{42: e}),
		Scheduler: NewTickScheduler(d),
	}
	return env, e, d
}

func advance(d *tick.Dispatcher, by time.Duration) {
	for elapsed := time.Duration(0); elapsed < by; elapsed += d.Interval() {
		d.Tick()
	}
}

func TestFromUserID(t *testing.T) {
	t.Run("resolves to the host's index", func(t *testing.T) {
		env, e, _ := newTestEnv(t)

		p, err := env.FromUserID(42)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, p.Index(), e.Index())
	})

	t.Run("unknown user ID is a lookup error", func(t *testing.T) {
		env, _, _ := newTestEnv(t)

		p, err := env.FromUserID(999)
		assert.Nil(t, p)
		utils.AssertErrorIs(t, err, ErrUnknownUserID)
	})

	t.Run("user ID whose entity has gone", func(t *testing.T) {
		reg := &TestRegistry{
			UserIDs:  map[int]int{3: 5},
			Entities: map[int]Entity{},
		}
		env := Env{Registry: reg}

		_, err := env.FromUserID(3)
		utils.AssertErrorIs(t, err, ErrUnknownIndex)
	})

	t.Run("an env without a registry fails instead of panicking", func(t *testing.T) {
		var env Env

		p, err := env.FromUserID(42)
		assert.Nil(t, p)
		utils.AssertErrorIs(t, err, ErrNoRegistry)

		p, err = env.FromIndex(1)
		assert.Nil(t, p)
		utils.AssertErrorIs(t, err, ErrNoRegistry)
	})
}

func TestShiftProperty(t *testing.T) {
	t.Run("without a duration the shift is permanent", func(t *testing.T) {
		env, e, d := newTestEnv(t)
		p, err := env.FromUserID(42)
		require.NoError(t, err)

		err = p.ShiftProperty("health", 25)
		utils.AssertNoError(t, err)
		utils.AssertProperty(t, e, "health", 125)

		advance(d, time.Second)
		utils.AssertProperty(t, e, "health", 125)
		utils.AssertEqual(t, d.Pending(), 0)
	})

	t.Run("negative deltas subtract", func(t *testing.T) {
		env, e, _ := newTestEnv(t)
		p, _ := env.FromUserID(42)

		utils.AssertNoError(t, p.ShiftProperty("speed", -300))
		utils.AssertProperty(t, e, "speed", -50)
	})

	t.Run("unknown property is an attribute error", func(t *testing.T) {
		env, e, _ := newTestEnv(t)
		p, _ := env.FromUserID(42)

		err := p.ShiftProperty("mana", 1)
		utils.AssertErrorIs(t, err, ErrUnknownProperty)
		assert.Empty(t, e.Writes())
	})

	t.Run("nil player", func(t *testing.T) {
		var p *Player
		utils.AssertErrorIs(t, p.ShiftProperty("health", 1), ErrNilPlayer)
	})
}

func TestShiftPropertyFor(t *testing.T) {
	t.Run("applies immediately and reverts after the duration", func(t *testing.T) {
		t.Log("Given a player with 100 health")
		env, e, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		t.Log("When health is shifted by 50 for 100ms")
		pending, err := p.ShiftPropertyFor("health", 50, 100*time.Millisecond)
		utils.AssertNoError(t, err)
		require.NotNil(t, pending)

		t.Log("Then the shift is visible straight away")
		utils.AssertProperty(t, e, "health", 150)

		advance(d, 90*time.Millisecond)
		utils.AssertProperty(t, e, "health", 150)

		t.Log("And health is back to 100 once 100ms has passed")
		d.Tick()
		utils.AssertProperty(t, e, "health", 100)
		utils.AssertDeepEqual(t, e.Writes(), []int{150, 100})
	})

	t.Run("cancelling keeps the shift", func(t *testing.T) {
		env, e, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		pending, err := p.ShiftPropertyFor("speed", -100, 50*time.Millisecond)
		utils.AssertNoError(t, err)
		utils.AssertTrue(t, pending.Cancel())

		advance(d, time.Second)
		utils.AssertProperty(t, e, "speed", 150)
	})

	t.Run("stacked shifts revert independently", func(t *testing.T) {
		env, e, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		_, err := p.ShiftPropertyFor("health", 10, 30*time.Millisecond)
		utils.AssertNoError(t, err)
		_, err = p.ShiftPropertyFor("health", 20, 60*time.Millisecond)
		utils.AssertNoError(t, err)
		utils.AssertProperty(t, e, "health", 130)
		utils.AssertEqual(t, d.Pending(), 2)

		advance(d, 30*time.Millisecond)
		utils.AssertProperty(t, e, "health", 120)

		advance(d, 30*time.Millisecond)
		utils.AssertProperty(t, e, "health", 100)
	})

	t.Run("revert applies on top of later external changes", func(t *testing.T) {
		env, e, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		_, err := p.ShiftPropertyFor("health", 50, 20*time.Millisecond)
		utils.AssertNoError(t, err)
		require.NoError(t, e.SetProperty("health", 10))

		advance(d, 20*time.Millisecond)
		utils.AssertProperty(t, e, "health", -40)
	})

	t.Run("schedules a single shift by the negated delta", func(t *testing.T) {
		e := NewTestEntity(1, 0, map[string]int{"armor": 0})
		spy := &SpyScheduler{}
		p := New(e, spy)

		_, err := p.ShiftPropertyFor("armor", 40, 3*time.Second)
		utils.AssertNoError(t, err)
		require.Len(t, spy.Scheduled, 1)
		utils.AssertEqual(t, spy.Scheduled[0].Delay, 3*time.Second)

		utils.AssertNoError(t, spy.Scheduled[0].Fn())
		utils.AssertProperty(t, e, "armor", 0)
		require.Len(t, spy.Scheduled, 1)
	})

	t.Run("unknown property schedules nothing", func(t *testing.T) {
		env, _, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		pending, err := p.ShiftPropertyFor("mana", 5, time.Second)
		utils.AssertErrorIs(t, err, ErrUnknownProperty)
		assert.Nil(t, pending)
		utils.AssertEqual(t, d.Pending(), 0)
	})

	t.Run("negative duration is rejected before shifting", func(t *testing.T) {
		env, e, d := newTestEnv(t)
		p, _ := env.FromUserID(42)

		_, err := p.ShiftPropertyFor("health", 5, -time.Second)
		utils.AssertErrorIs(t, err, ErrNegativeDuration)
		utils.AssertProperty(t, e, "health", 100)
		utils.AssertEqual(t, d.Pending(), 0)
	})

	t.Run("requires a scheduler", func(t *testing.T) {
		p := New(NewTestEntity(1, 0, map[string]int{"health": 1}), nil)

		_, err := p.ShiftPropertyFor("health", 5, time.Second)
		utils.AssertErrorIs(t, err, ErrNoScheduler)
		utils.AssertProperty(t, p, "health", 1)
	})

	t.Run("a failing revert is not retried", func(t *testing.T) {
		logger, hook := logrustest.NewNullLogger()
		d := tick.NewDispatcher(tick.DispatcherOpts{Interval: testTick, Logger: logger})
		e := &flakyEntity{TestEntity: NewTestEntity(1, 0, map[string]int{"health": 100})}
		p := New(e, NewTickScheduler(d))

		_, err := p.ShiftPropertyFor("health", 5, testTick)
		utils.AssertNoError(t, err)

		e.fail = true
		advance(d, time.Second)

		utils.AssertEqual(t, e.failures, 1)
		require.NotNil(t, hook.LastEntry())
		utils.AssertProperty(t, e, "health", 105)
	})
}

type flakyEntity struct {
	*TestEntity
	fail     bool
	failures int
}

func (e *flakyEntity) SetProperty(name string, value int) error {
	if e.fail {
		e.failures++
		return errors.New("entity is gone")
	}
	return e.TestEntity.SetProperty(name, value)
}

package entity

import (
	"testing"
	"time"

	"github.com/minaorangina/easyplayer"
	utils "github.com/minaorangina/easyplayer/internal"
	"github.com/minaorangina/easyplayer/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(observer func(Change)) *InMemoryStore {
	return NewInMemoryStore(StoreOpts{
		MaxPlayers: 2,
		Attributes: map[string]int{"health": 100, "armor": 0},
		Observer:   observer,
	})
}

func TestInMemoryStore(t *testing.T) {
	t.Run("constructor applies defaults", func(t *testing.T) {
		s := NewInMemoryStore(StoreOpts{})
		utils.AssertEqual(t, s.MaxPlayers(), DefaultMaxPlayers)
		utils.AssertEqual(t, s.Len(), 0)
	})

	t.Run("connect assigns indexes and user IDs", func(t *testing.T) {
		s := newTestStore(nil)

		harry, err := s.Connect("Harry", 2)
		utils.AssertNoError(t, err)
		sally, err := s.Connect("Sally", 3)
		utils.AssertNoError(t, err)

		utils.AssertEqual(t, harry.Index(), 1)
		utils.AssertEqual(t, sally.Index(), 2)
		assert.NotEqual(t, harry.UserID(), sally.UserID())

		index, err := s.IndexFromUserID(sally.UserID())
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, index, 2)
	})

	t.Run("a full server refuses connections", func(t *testing.T) {
		s := newTestStore(nil)
		_, _ = s.Connect("a", 0)
		_, _ = s.Connect("b", 0)

		_, err := s.Connect("c", 0)
		utils.AssertErrorIs(t, err, ErrServerFull)
	})

	t.Run("name is required", func(t *testing.T) {
		_, err := newTestStore(nil).Connect("", 0)
		utils.AssertErrorIs(t, err, ErrMissingName)
	})

	t.Run("indexes are reused, user IDs are not", func(t *testing.T) {
		s := newTestStore(nil)
		first, _ := s.Connect("first", 0)
		_, _ = s.Connect("second", 0)

		utils.AssertNoError(t, s.Disconnect(first.UserID()))
		_, err := s.IndexFromUserID(first.UserID())
		utils.AssertErrorIs(t, err, easyplayer.ErrUnknownUserID)

		rejoined, err := s.Connect("first", 0)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, rejoined.Index(), first.Index())
		assert.NotEqual(t, rejoined.UserID(), first.UserID())
	})

	t.Run("disconnecting an unknown user", func(t *testing.T) {
		err := newTestStore(nil).Disconnect(12)
		utils.AssertErrorIs(t, err, easyplayer.ErrUnknownUserID)
	})

	t.Run("entities are listed by index", func(t *testing.T) {
		s := newTestStore(nil)
		a, _ := s.Connect("a", 0)
		b, _ := s.Connect("b", 0)
		_ = s.Disconnect(a.UserID())
		c, _ := s.Connect("c", 0)

		es := s.Entities()
		require.Len(t, es, 2)
		utils.AssertEqual(t, es[0], c)
		utils.AssertEqual(t, es[1], b)
	})

	t.Run("unknown index", func(t *testing.T) {
		_, err := newTestStore(nil).EntityFromIndex(9)
		utils.AssertErrorIs(t, err, easyplayer.ErrUnknownIndex)
	})
}

func TestEntityProperties(t *testing.T) {
	t.Run("entities get their own copy of the spawn attributes", func(t *testing.T) {
		s := newTestStore(nil)
		a, _ := s.Connect("a", 0)
		b, _ := s.Connect("b", 0)

		utils.AssertNoError(t, a.SetProperty("health", 1))
		utils.AssertProperty(t, b, "health", 100)

		props := a.Properties()
		props["health"] = 500
		utils.AssertProperty(t, a, "health", 1)
		utils.AssertDeepEqual(t, a.PropertyNames(), []string{"armor", "health"})
	})

	t.Run("unknown property", func(t *testing.T) {
		a, _ := newTestStore(nil).Connect("a", 0)

		_, err := a.Property("mana")
		utils.AssertErrorIs(t, err, easyplayer.ErrUnknownProperty)
		utils.AssertErrorIs(t, a.SetProperty("mana", 1), easyplayer.ErrUnknownProperty)
	})

	t.Run("removed entities refuse access", func(t *testing.T) {
		s := newTestStore(nil)
		a, _ := s.Connect("a", 0)
		_ = s.Disconnect(a.UserID())

		assert.True(t, a.Removed())
		_, err := a.Property("health")
		utils.AssertErrorIs(t, err, ErrEntityRemoved)
		utils.AssertErrorIs(t, a.SetProperty("health", 1), ErrEntityRemoved)
		utils.AssertErrorIs(t, a.SetTeam(2), ErrEntityRemoved)
	})

	t.Run("observer sees every write", func(t *testing.T) {
		changes := []Change{}
		s := newTestStore(func(c Change) { changes = append(changes, c) })
		a, _ := s.Connect("a", 1)

		utils.AssertNoError(t, a.SetProperty("armor", 50))
		utils.AssertNoError(t, a.SetTeam(3))

		utils.AssertDeepEqual(t, changes, []Change{
			{Index: 1, UserID: a.UserID(), Property: "armor", Old: 0, New: 50},
			{Index: 1, UserID: a.UserID(), Property: TeamProperty, Old: 1, New: 3},
		})
	})
}

func TestStoreAsHost(t *testing.T) {
	t.Run("players built from the store shift and revert", func(t *testing.T) {
		changes := []Change{}
		s := newTestStore(func(c Change) { changes = append(changes, c) })
		joined, err := s.Connect("Héloise", 3)
		require.NoError(t, err)

		d := tick.NewDispatcher(tick.DispatcherOpts{Interval: 10 * time.Millisecond})
		env := easyplayer.Env{Registry: s, Scheduler: easyplayer.NewTickScheduler(d)}

		p, err := env.FromUserID(joined.UserID())
		require.NoError(t, err)
		utils.AssertEqual(t, p.Index(), joined.Index())

		team, err := p.CSTeam()
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, team, "ct")

		_, err = p.ShiftPropertyFor("armor", 25, 20*time.Millisecond)
		utils.AssertNoError(t, err)
		utils.AssertProperty(t, joined, "armor", 25)

		d.Tick()
		d.Tick()
		utils.AssertProperty(t, joined, "armor", 0)
		require.Len(t, changes, 2)
		utils.AssertEqual(t, changes[1].New, 0)
	})

	t.Run("revert after disconnect fails without touching the slot's new owner", func(t *testing.T) {
		s := newTestStore(nil)
		a, _ := s.Connect("a", 0)
		d := tick.NewDispatcher(tick.DispatcherOpts{Interval: 10 * time.Millisecond})
		env := easyplayer.Env{Registry: s, Scheduler: easyplayer.NewTickScheduler(d)}

		p, _ := env.FromUserID(a.UserID())
		_, err := p.ShiftPropertyFor("health", -50, 10*time.Millisecond)
		require.NoError(t, err)

		_ = s.Disconnect(a.UserID())
		b, _ := s.Connect("b", 0)
		utils.AssertEqual(t, b.Index(), a.Index())

		d.Tick()
		utils.AssertProperty(t, b, "health", 100)
	})
}

package easyplayer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownUserID    = errors.New("unknown user ID")
	ErrUnknownIndex     = errors.New("unknown entity index")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrTeamOutOfRange   = errors.New("team index out of range")
	ErrUnknownMode      = errors.New("unknown game mode")
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrNilPlayer        = errors.New("player is nil")
	ErrNoRegistry       = errors.New("env has no registry")

	ErrFnUnknownUserID = func(userID int) error {
		return fmt.Errorf("%w: %d", ErrUnknownUserID, userID)
	}
	ErrFnUnknownProperty = func(name string) error {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
)

// Entity is the host engine's player object.
// Property and SetProperty fail with ErrUnknownProperty for names the host
// does not expose as integers.
type Entity interface {
	Index() int
	Team() int
	Property(name string) (int, error)
	SetProperty(name string, value int) error
}

// Registry resolves the host's identifiers to entities.
// User IDs are per-connection and change on reconnect, indexes are stable
// for the lifetime of the entity.
type Registry interface {
	IndexFromUserID(userID int) (int, error)
	EntityFromIndex(index int) (Entity, error)
}

// Env carries the host capabilities a Player needs.
// Registry is required; lookups on an Env without one fail with
// ErrNoRegistry. Scheduler may be nil, as for New.
type Env struct {
	Registry  Registry
	Scheduler Scheduler
}

// FromUserID returns the player currently connected under userID
func (env Env) FromUserID(userID int) (*Player, error) {
	if env.Registry == nil {
		return nil, ErrNoRegistry
	}
	index, err := env.Registry.IndexFromUserID(userID)
	if err != nil {
		return nil, err
	}

	return env.FromIndex(index)
}

// FromIndex returns the player bound to the entity at index
func (env Env) FromIndex(index int) (*Player, error) {
	if env.Registry == nil {
		return nil, ErrNoRegistry
	}
	e, err := env.Registry.EntityFromIndex(index)
	if err != nil {
		return nil, err
	}

	return New(e, env.Scheduler), nil
}

// Player wraps a host entity with convenience helpers.
// The entity is owned by the host; a Player never creates or destroys it.
type Player struct {
	Entity
	scheduler Scheduler
}

// New constructs a Player over an existing entity.
// scheduler may be nil if ShiftPropertyFor is never called.
func New(e Entity, scheduler Scheduler) *Player {
	return &Player{Entity: e, scheduler: scheduler}
}

// ShiftProperty adds delta to the named integer property.
func (p *Player) ShiftProperty(name string, delta int) error {
	if p == nil || p.Entity == nil {
		return ErrNilPlayer
	}

	value, err := p.Property(name)
	if err != nil {
		return err
	}

	return p.SetProperty(name, value+delta)
}

// ShiftPropertyFor adds delta to the named property and schedules a single
// shift by -delta after d. The returned handle cancels that revert.
// Each call schedules its own revert; overlapping shifts are not merged.
func (p *Player) ShiftPropertyFor(name string, delta int, d time.Duration) (Cancellable, error) {
	if p == nil || p.Entity == nil {
		return nil, ErrNilPlayer
	}
	if d < 0 {
		return nil, ErrNegativeDuration
	}
	if p.scheduler == nil {
		return nil, ErrNoScheduler
	}

	if err := p.ShiftProperty(name, delta); err != nil {
		return nil, err
	}

	return p.scheduler.Schedule(d, func() error {
		return p.ShiftProperty(name, -delta)
	}), nil
}

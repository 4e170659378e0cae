package easyplayer

import (
	"time"
)

// TestEntity is a minimal Entity for tests
type TestEntity struct {
	index int
	team  int
	props map[string]int
	// writes records every SetProperty call
	writes []int
}

func NewTestEntity(index, team int, props map[string]int) *TestEntity {
	if props == nil {
		props = map[string]int{}
	}
	return &TestEntity{index: index, team: team, props: props}
}

func (e *TestEntity) Index() int {
	return e.index
}

func (e *TestEntity) Team() int {
	return e.team
}

func (e *TestEntity) SetTeam(team int) {
	e.team = team
}

func (e *TestEntity) Property(name string) (int, error) {
	v, ok := e.props[name]
	if !ok {
		return 0, ErrFnUnknownProperty(name)
	}
	return v, nil
}

func (e *TestEntity) SetProperty(name string, value int) error {
	if _, ok := e.props[name]; !ok {
		return ErrFnUnknownProperty(name)
	}
	e.props[name] = value
	e.writes = append(e.writes, value)
	return nil
}

// Writes returns the values written so far, oldest first
func (e *TestEntity) Writes() []int {
	return e.writes
}

// TestRegistry maps user IDs to TestEntities
type TestRegistry struct {
	UserIDs  map[int]int
	Entities map[int]Entity
}

func NewTestRegistry(users map[int]Entity) *TestRegistry {
	r := &TestRegistry{UserIDs: map[int]int{}, Entities: map[int]Entity{}}
	for userID, e := range users {
		r.UserIDs[userID] = e.Index()
		r.Entities[e.Index()] = e
	}
	return r
}

func (r *TestRegistry) IndexFromUserID(userID int) (int, error) {
	index, ok := r.UserIDs[userID]
	if !ok {
		return 0, ErrFnUnknownUserID(userID)
	}
	return index, nil
}

func (r *TestRegistry) EntityFromIndex(index int) (Entity, error) {
	e, ok := r.Entities[index]
	if !ok {
		return nil, ErrUnknownIndex
	}
	return e, nil
}

// SpyScheduler records scheduled callbacks without running them
type SpyScheduler struct {
	Scheduled []*SpyDelay
}

type SpyDelay struct {
	Delay     time.Duration
	Fn        func() error
	cancelled bool
}

func (d *SpyDelay) Cancel() bool {
	if d.cancelled {
		return false
	}
	d.cancelled = true
	return true
}

func (s *SpyScheduler) Schedule(delay time.Duration, fn func() error) Cancellable {
	d := &SpyDelay{Delay: delay, Fn: fn}
	s.Scheduled = append(s.Scheduled, d)
	return d
}

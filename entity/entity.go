package entity

import (
	"sort"

	"github.com/minaorangina/easyplayer"
)

// TeamProperty is the property name team changes are reported under
const TeamProperty = "team"

// Entity is a connected player in an InMemoryStore
type Entity struct {
	store   *InMemoryStore
	index   int
	userID  int
	name    string
	team    int
	props   map[string]int
	removed bool
}

func (e *Entity) Index() int {
	return e.index
}

func (e *Entity) UserID() int {
	return e.userID
}

func (e *Entity) Name() string {
	return e.name
}

func (e *Entity) Team() int {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.team
}

// SetTeam moves the entity to team. Values outside the
// known tables are stored as-is.
func (e *Entity) SetTeam(team int) error {
	e.store.mu.Lock()
	if e.removed {
		e.store.mu.Unlock()
		return ErrEntityRemoved
	}
	old := e.team
	e.team = team
	e.store.mu.Unlock()

	e.store.notify(Change{
		Index:    e.index,
		UserID:   e.userID,
		Property: TeamProperty,
		Old:      old,
		New:      team,
	})
	return nil
}

func (e *Entity) Property(name string) (int, error) {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()

	if e.removed {
		return 0, ErrEntityRemoved
	}
	v, ok := e.props[name]
	if !ok {
		return 0, easyplayer.ErrFnUnknownProperty(name)
	}
	return v, nil
}

func (e *Entity) SetProperty(name string, value int) error {
	e.store.mu.Lock()
	if e.removed {
		e.store.mu.Unlock()
		return ErrEntityRemoved
	}
	old, ok := e.props[name]
	if !ok {
		e.store.mu.Unlock()
		return easyplayer.ErrFnUnknownProperty(name)
	}
	e.props[name] = value
	e.store.mu.Unlock()

	e.store.notify(Change{
		Index:    e.index,
		UserID:   e.userID,
		Property: name,
		Old:      old,
		New:      value,
	})
	return nil
}

// Properties returns a copy of the entity's properties
func (e *Entity) Properties() map[string]int {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()

	props := make(map[string]int, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	return props
}

// PropertyNames returns the entity's property names, sorted
func (e *Entity) PropertyNames() []string {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()

	names := make([]string, 0, len(e.props))
	for k := range e.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Removed reports whether the entity has disconnected
func (e *Entity) Removed() bool {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	return e.removed
}

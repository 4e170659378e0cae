package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/minaorangina/easyplayer"
)

const DefaultMaxPlayers = 32

var (
	ErrServerFull    = errors.New("server is full")
	ErrEntityRemoved = errors.New("entity has been removed")
	ErrMissingName   = errors.New("missing player name")

	ErrFnUnknownIndex = func(index int) error {
		return fmt.Errorf("%w: %d", easyplayer.ErrUnknownIndex, index)
	}
)

// Change describes a single write to an entity
type Change struct {
	Index    int
	UserID   int
	Property string
	Old      int
	New      int
}

type StoreOpts struct {
	MaxPlayers int
	// Attributes are the properties every entity spawns with
	Attributes map[string]int
	// Observer is called after every property or team write
	Observer func(Change)
}

// InMemoryStore is a host player registry.
// Indexes are reused after a disconnect, user IDs never are.
type InMemoryStore struct {
	mu         sync.RWMutex
	maxPlayers int
	attributes map[string]int
	lastUserID int
	byIndex    map[int]*Entity
	userIDs    map[int]int
	observer   func(Change)
}

// NewInMemoryStore constructs an InMemoryStore
func NewInMemoryStore(opts StoreOpts) *InMemoryStore {
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = DefaultMaxPlayers
	}
	attributes := map[string]int{}
	for k, v := range opts.Attributes {
		attributes[k] = v
	}

	return &InMemoryStore{
		maxPlayers: opts.MaxPlayers,
		attributes: attributes,
		byIndex:    map[int]*Entity{},
		userIDs:    map[int]int{},
		observer:   opts.Observer,
	}
}

// SetObserver replaces the change observer
func (s *InMemoryStore) SetObserver(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Connect spawns a new entity in the lowest free slot
func (s *InMemoryStore) Connect(name string, team int) (*Entity, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := 0
	for i := 1; i <= s.maxPlayers; i++ {
		if _, taken := s.byIndex[i]; !taken {
			index = i
			break
		}
	}
	if index == 0 {
		return nil, ErrServerFull
	}

	s.lastUserID++
	props := make(map[string]int, len(s.attributes))
	for k, v := range s.attributes {
		props[k] = v
	}

	e := &Entity{
		store:  s,
		index:  index,
		userID: s.lastUserID,
		name:   name,
		team:   team,
		props:  props,
	}
	s.byIndex[index] = e
	s.userIDs[e.userID] = index

	return e, nil
}

// Disconnect removes the entity connected under userID
func (s *InMemoryStore) Disconnect(userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.userIDs[userID]
	if !ok {
		return easyplayer.ErrFnUnknownUserID(userID)
	}

	s.byIndex[index].removed = true
	delete(s.byIndex, index)
	delete(s.userIDs, userID)

	return nil
}

func (s *InMemoryStore) IndexFromUserID(userID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.userIDs[userID]
	if !ok {
		return 0, easyplayer.ErrFnUnknownUserID(userID)
	}
	return index, nil
}

func (s *InMemoryStore) EntityFromIndex(index int) (easyplayer.Entity, error) {
	e, err := s.Find(index)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Find returns the entity at index
func (s *InMemoryStore) Find(index int) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byIndex[index]
	if !ok {
		return nil, ErrFnUnknownIndex(index)
	}
	return e, nil
}

// FindByUserID returns the entity connected under userID
func (s *InMemoryStore) FindByUserID(userID int) (*Entity, error) {
	index, err := s.IndexFromUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.Find(index)
}

// Entities returns every connected entity ordered by index
func (s *InMemoryStore) Entities() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	es := make([]*Entity, 0, len(s.byIndex))
	for _, e := range s.byIndex {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].index < es[j].index })

	return es
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIndex)
}

func (s *InMemoryStore) MaxPlayers() int {
	return s.maxPlayers
}

func (s *InMemoryStore) notify(c Change) {
	s.mu.RLock()
	observer := s.observer
	s.mu.RUnlock()

	if observer != nil {
		observer(c)
	}
}

package journal

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minaorangina/easyplayer/entity"
	uuid "github.com/satori/go.uuid"
)

var (
	ErrClosed      = errors.New("journal is closed")
	ErrUnknownKind = errors.New("unknown journal kind")
)

// Entry is one recorded property write
type Entry struct {
	Session  string    `json:"session"`
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
	Index    int       `json:"index"`
	UserID   int       `json:"user_id"`
	Property string    `json:"property"`
	Old      int       `json:"old"`
	New      int       `json:"new"`
}

// Recorder persists entries
type Recorder interface {
	Record(Entry) error
	Close() error
}

// NewSession returns an ID that groups the entries of one process run
func NewSession() string {
	return uuid.NewV4().String()
}

// FromChange builds an Entry for a store change
func FromChange(session string, tick uint64, c entity.Change) Entry {
	return Entry{
		Session:  session,
		Tick:     tick,
		At:       time.Now().UTC(),
		Index:    c.Index,
		UserID:   c.UserID,
		Property: c.Property,
		Old:      c.Old,
		New:      c.New,
	}
}

// Nop discards every entry
type Nop struct{}

func (Nop) Record(Entry) error { return nil }
func (Nop) Close() error       { return nil }

// CheckKind fails with ErrUnknownKind unless Open accepts kind
func CheckKind(kind string) error {
	switch kind {
	case "", "none", "sqlite", "jsonl":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Open picks a Recorder by kind: "none", "sqlite" or "jsonl".
// For sqlite, path is a directory holding journal.db.
func Open(kind, path string) (Recorder, error) {
	if err := CheckKind(kind); err != nil {
		return nil, err
	}

	switch kind {
	case "sqlite":
		j, err := OpenSQLite(filepath.Join(path, "journal.db"))
		if err != nil {
			return nil, err
		}
		return j, nil
	case "jsonl":
		return NewJSONLZstdWriter(path, "changes"), nil
	}
	return Nop{}, nil
}

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteQueueSize = 4096

// SQLiteJournal writes entries from a single background goroutine
// so recording never blocks the tick thread.
type SQLiteJournal struct {
	db  *sql.DB
	log logrus.FieldLogger

	// mu guards sends on ch against its close
	mu     sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed bool

	dropped atomic.Int64
}

type req struct {
	entry Entry
	// flush is closed once every earlier entry has been written
	flush chan struct{}
}

// OpenSQLite opens or creates the journal database at path
func OpenSQLite(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{
		db:  db,
		log: logrus.WithField("component", "journal"),
		ch:  make(chan req, sqliteQueueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			at TEXT NOT NULL,
			entity_index INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			property TEXT NOT NULL,
			old_value INTEGER NOT NULL,
			new_value INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_user_property ON changes(user_id, property, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record queues e for writing. Entries are dropped, and counted, when the
// writer falls behind.
func (j *SQLiteJournal) Record(e Entry) error {
	if j == nil {
		return ErrClosed
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrClosed
	}
	select {
	case j.ch <- req{entry: e}:
	default:
		j.dropped.Add(1)
	}
	return nil
}

// Flush waits until every entry recorded so far has been written
func (j *SQLiteJournal) Flush(ctx context.Context) error {
	if j == nil {
		return ErrClosed
	}
	done := make(chan struct{})
	if err := j.send(ctx, req{flush: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *SQLiteJournal) send(ctx context.Context, r req) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrClosed
	}
	select {
	case j.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many entries were discarded under backpressure
func (j *SQLiteJournal) Dropped() int64 {
	return j.dropped.Load()
}

// History returns the recorded changes of one property for a user, oldest first
func (j *SQLiteJournal) History(ctx context.Context, userID int, property string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session, tick, at, entity_index, user_id, property, old_value, new_value
		FROM changes
		WHERE user_id = ? AND property = ?
		ORDER BY seq`, userID, property)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			at string
		)
		if err := rows.Scan(&e.Session, &e.Tick, &at, &e.Index, &e.UserID, &e.Property, &e.Old, &e.New); err != nil {
			return nil, err
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()

		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *SQLiteJournal) loop() {
	insert, err := j.db.Prepare(`INSERT INTO changes(session,tick,at,entity_index,user_id,property,old_value,new_value) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.log.WithError(err).Error("prepare insert")
	}
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	for r := range j.ch {
		if r.flush != nil {
			close(r.flush)
			continue
		}
		if insert == nil {
			continue
		}
		e := r.entry
		if _, err := insert.Exec(e.Session, e.Tick, e.At.UTC().Format(time.RFC3339Nano), e.Index, e.UserID, e.Property, e.Old, e.New); err != nil {
			j.log.WithError(err).WithField("user_id", e.UserID).Warn("dropping journal entry")
		}
	}
}

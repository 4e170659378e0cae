package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/minaorangina/easyplayer/entity"
	utils "github.com/minaorangina/easyplayer/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func someEntries(session string) []Entry {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Entry{
		{Session: session, Tick: 1, At: at, Index: 1, UserID: 4, Property: "health", Old: 100, New: 150},
		{Session: session, Tick: 2, At: at, Index: 2, UserID: 5, Property: "health", Old: 100, New: 90},
		{Session: session, Tick: 9, At: at.Add(time.Second), Index: 1, UserID: 4, Property: "health", Old: 150, New: 100},
		{Session: session, Tick: 9, At: at.Add(time.Second), Index: 1, UserID: 4, Property: "speed", Old: 250, New: 200},
	}
}

func TestSQLiteJournal(t *testing.T) {
	t.Run("records and reads back history in order", func(t *testing.T) {
		j, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "journal.db"))
		require.NoError(t, err)
		defer j.Close()

		session := NewSession()
		for _, e := range someEntries(session) {
			require.NoError(t, j.Record(e))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, j.Flush(ctx))

		history, err := j.History(ctx, 4, "health")
		require.NoError(t, err)
		require.Len(t, history, 2)

		want := someEntries(session)
		utils.AssertDeepEqual(t, history[0], want[0])
		utils.AssertDeepEqual(t, history[1], want[2])
		utils.AssertEqual(t, j.Dropped(), int64(0))
	})

	t.Run("history survives reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "journal.db")
		j, err := OpenSQLite(path)
		require.NoError(t, err)
		require.NoError(t, j.Record(someEntries("s")[3]))
		require.NoError(t, j.Close())

		j, err = OpenSQLite(path)
		require.NoError(t, err)
		defer j.Close()

		history, err := j.History(context.Background(), 4, "speed")
		require.NoError(t, err)
		require.Len(t, history, 1)
		utils.AssertEqual(t, history[0].New, 200)
	})

	t.Run("closed journal refuses entries", func(t *testing.T) {
		j, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		require.NoError(t, j.Close())

		assert.ErrorIs(t, j.Record(Entry{}), ErrClosed)
		assert.ErrorIs(t, j.Flush(context.Background()), ErrClosed)
		assert.NoError(t, j.Close())
	})

	t.Run("recording while closing never panics", func(t *testing.T) {
		j, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 500; n++ {
					if err := j.Record(someEntries("s")[0]); err != nil {
						assert.ErrorIs(t, err, ErrClosed)
						return
					}
				}
			}()
		}
		require.NoError(t, j.Close())
		wg.Wait()

		assert.ErrorIs(t, j.Record(Entry{}), ErrClosed)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := OpenSQLite("")
		utils.AssertErrored(t, err)
	})
}

func TestJSONLZstdWriter(t *testing.T) {
	t.Run("round trips entries", func(t *testing.T) {
		dir := t.TempDir()
		w := NewJSONLZstdWriter(dir, "changes")
		w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }

		entries := someEntries("abc")
		for _, e := range entries {
			require.NoError(t, w.Record(e))
		}
		require.NoError(t, w.Close())

		got, err := ReadJSONL(filepath.Join(dir, "changes-2026-03-01-12.jsonl.zst"))
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	})

	t.Run("entries reach the file before close", func(t *testing.T) {
		dir := t.TempDir()
		w := NewJSONLZstdWriter(dir, "changes")
		defer w.Close()
		w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }

		entries := someEntries("live")
		require.NoError(t, w.Record(entries[0]))
		require.NoError(t, w.Record(entries[1]))

		got, err := ReadJSONL(filepath.Join(dir, "changes-2026-03-01-12.jsonl.zst"))
		require.NoError(t, err)
		assert.Equal(t, entries[:2], got)
	})

	t.Run("rotates every hour", func(t *testing.T) {
		dir := t.TempDir()
		w := NewJSONLZstdWriter(dir, "changes")
		hour := 10
		w.now = func() time.Time { return time.Date(2026, 3, 1, hour, 0, 0, 0, time.UTC) }

		require.NoError(t, w.Record(someEntries("a")[0]))
		hour = 11
		require.NoError(t, w.Record(someEntries("a")[1]))
		require.NoError(t, w.Close())

		files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("closed writer refuses entries", func(t *testing.T) {
		w := NewJSONLZstdWriter(t.TempDir(), "changes")
		require.NoError(t, w.Close())
		assert.ErrorIs(t, w.Record(Entry{}), ErrClosed)
	})
}

func TestOpen(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		r, err := Open("none", "")
		require.NoError(t, err)
		assert.Equal(t, Nop{}, r)
		assert.NoError(t, r.Record(Entry{}))
	})

	t.Run("sqlite", func(t *testing.T) {
		dir := t.TempDir()
		r, err := Open("sqlite", dir)
		require.NoError(t, err)
		require.NoError(t, r.Close())

		_, err = os.Stat(filepath.Join(dir, "journal.db"))
		assert.NoError(t, err)
	})

	t.Run("jsonl", func(t *testing.T) {
		r, err := Open("jsonl", t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &JSONLZstdWriter{}, r)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Open("kafka", "")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("CheckKind agrees with Open", func(t *testing.T) {
		for _, kind := range []string{"", "none", "sqlite", "jsonl"} {
			assert.NoError(t, CheckKind(kind), kind)
		}
		assert.ErrorIs(t, CheckKind("postgres"), ErrUnknownKind)
	})
}

func TestFromChange(t *testing.T) {
	e := FromChange("sess", 12, entity.Change{Index: 3, UserID: 8, Property: "armor", Old: 0, New: 25})

	utils.AssertEqual(t, e.Session, "sess")
	utils.AssertEqual(t, e.Tick, uint64(12))
	utils.AssertEqual(t, e.Property, "armor")
	utils.AssertEqual(t, e.New, 25)
	assert.False(t, e.At.IsZero())
	assert.Len(t, NewSession(), 36)
}

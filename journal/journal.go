// Package journal persists pipeline decisions (blocks, aborts, policy
// changes, violations, invalidations) for diagnostics.
package journal

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	ID        int64     `json:"id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id"`
	URL       string    `json:"url"`
	Detail    string    `json:"detail,omitempty"`
}

// SQLiteJournal implements fetchpipe.Recorder.
type SQLiteJournal struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	now        func() time.Time
}

// NewSQLiteJournal opens the journal with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteJournal(filename string) SQLiteJournal {
	inMemory := filename == ""
	if inMemory {
		filename = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	if inMemory {
		// the db is dropped with its last connection
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER,
		kind TEXT,
		request_id TEXT,
		url TEXT,
		detail TEXT
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS at_idx ON journal (at)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS request_idx ON journal (request_id)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteJournal{
		db:         db,
		writeMutex: &sync.Mutex{},
		now:        time.Now,
	}
}

// Record stores an entry. Failures are logged, never returned: the
// pipeline must not depend on the journal.
func (s SQLiteJournal) Record(kind, requestID, url, detail string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT INTO journal (at, kind, request_id, url, detail) VALUES (?, ?, ?, ?, ?)",
		s.now().UnixMilli(), kind, requestID, url, detail)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Str("url", url).Msg("Could not write journal entry")
	}
}

// Recent returns up to limit entries, newest first.
func (s SQLiteJournal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(`SELECT id, at, kind, request_id, url, detail
		FROM journal ORDER BY id DESC LIMIT ?`, limit)
}

// ForRequest returns the entries of one request in insertion order.
func (s SQLiteJournal) ForRequest(requestID string) ([]Entry, error) {
	return s.query(`SELECT id, at, kind, request_id, url, detail
		FROM journal WHERE request_id = ? ORDER BY id ASC`, requestID)
}

func (s SQLiteJournal) query(query string, args ...any) ([]Entry, error) {
	entries := make([]Entry, 0)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		var at int64
		if err := rows.Scan(&entry.ID, &at, &entry.Kind, &entry.RequestID, &entry.URL, &entry.Detail); err != nil {
			return entries, err
		}
		entry.At = time.UnixMilli(at)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune removes entries recorded before the given time.
func (s SQLiteJournal) Prune(before time.Time) (int64, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM journal WHERE at < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s SQLiteJournal) Close() error {
	return s.db.Close()
}

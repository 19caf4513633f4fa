package timelinestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// RosterIndex is the queryable view over saved slots. Writes go through an
// async channel so the tick loop never blocks on the database; the slot files
// remain the source of truth and the index can always be rebuilt from them.
type RosterIndex struct {
	db *sql.DB

	ch   chan slotRow
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	pending atomic.Int64
}

type slotRow struct {
	ArenaID     uint8
	CharacterID uint32
	Actions     int
	Digest      string
	Path        string
}

// SlotInfo is one roster entry as returned by queries.
type SlotInfo struct {
	ArenaID     uint8
	CharacterID uint32
	Actions     int
	Digest      string
	UpdatedAt   string
}

func OpenRosterIndex(path string) (*RosterIndex, error) {
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

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &RosterIndex{
		db: db,
		ch: make(chan slotRow, 4096),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
	return r, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS slots (
			arena_id INTEGER NOT NULL,
			character_id INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			digest TEXT NOT NULL,
			path TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (arena_id, character_id)
		);`,
		`CREATE TABLE IF NOT EXISTS recordings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			arena_id INTEGER NOT NULL,
			character_id INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_slot ON recordings(arena_id, character_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *RosterIndex) Close() error {
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
		err = r.db.Close()
	})
	return err
}

// RecordSlot enqueues an index update for a saved timeline. Drops the update
// if the writer falls behind; the slot files stay authoritative.
func (r *RosterIndex) RecordSlot(arenaID uint8, characterID uint32, actions int, digest, path string) {
	if r == nil || r.closed.Load() {
		return
	}
	select {
	case r.ch <- slotRow{ArenaID: arenaID, CharacterID: characterID, Actions: actions, Digest: digest, Path: path}:
		r.pending.Add(1)
	default:
	}
}

func (r *RosterIndex) loop() {
	upsert, err := r.db.Prepare(`INSERT INTO slots(arena_id,character_id,actions,digest,path,updated_at)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(arena_id,character_id) DO UPDATE SET
			actions=excluded.actions, digest=excluded.digest,
			path=excluded.path, updated_at=excluded.updated_at`)
	if err != nil {
		return
	}
	defer upsert.Close()
	history, err := r.db.Prepare(`INSERT INTO recordings(arena_id,character_id,actions,digest,recorded_at)
		VALUES(?,?,?,?,?)`)
	if err != nil {
		return
	}
	defer history.Close()

	for row := range r.ch {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := upsert.Exec(row.ArenaID, row.CharacterID, row.Actions, row.Digest, row.Path, now); err == nil {
			_, _ = history.Exec(row.ArenaID, row.CharacterID, row.Actions, row.Digest, now)
		}
		r.pending.Add(-1)
	}
}

// Flush drains pending writes; tests and shutdown use it.
func (r *RosterIndex) Flush() {
	if r == nil || r.closed.Load() {
		return
	}
	for r.pending.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Slots lists the roster for one arena, ordered by character id.
func (r *RosterIndex) Slots(arenaID uint8) ([]SlotInfo, error) {
	rows, err := r.db.Query(`SELECT arena_id, character_id, actions, digest, updated_at
		FROM slots WHERE arena_id = ? ORDER BY character_id`, arenaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotInfo
	for rows.Next() {
		var s SlotInfo
		if err := rows.Scan(&s.ArenaID, &s.CharacterID, &s.Actions, &s.Digest, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordingCount reports how many recordings a slot has accumulated over its
// lifetime, including replaced ones.
func (r *RosterIndex) RecordingCount(arenaID uint8, characterID uint32) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM recordings WHERE arena_id = ? AND character_id = ?`,
		arenaID, characterID).Scan(&n)
	return n, err
}

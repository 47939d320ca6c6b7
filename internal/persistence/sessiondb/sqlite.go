// Package sessiondb is a read-model index of finished sessions. It is
// write-mostly and never read back into gameplay: the live world is
// re-derived deterministically, so losing this index loses nothing but
// history.
package sessiondb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type Index struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqHarvest
)

type req struct {
	kind    reqKind
	session SessionRow
	harvest harvestRow
}

// SessionRow summarizes one finished session.
type SessionRow struct {
	ID         string
	ClientName string
	StartedAt  time.Time
	EndedAt    time.Time
	Commands   int
	Harvests   int
	Points     int
	CellsSeen  int
	Digest     string
}

type harvestRow struct {
	SessionID  string
	Seq        int
	I          int
	J          int
	Serial     int
	PointValue int
}

func Open(path string) (*Index, error) {
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

	x := &Index{
		db: db,
		ch: make(chan req, 4096),
	}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.loop()
	}()
	return x, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload; NORMAL durability is enough
	// for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
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
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			commands INTEGER NOT NULL,
			harvests INTEGER NOT NULL,
			points INTEGER NOT NULL,
			cells_seen INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE TABLE IF NOT EXISTS harvests (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			i INTEGER NOT NULL,
			j INTEGER NOT NULL,
			serial INTEGER NOT NULL,
			point_value INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_harvests_cell ON harvests(i, j);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
		x.wg.Wait()
		err = x.db.Close()
	})
	return err
}

// RecordSession queues a session summary. Best effort: dropped if the
// writer falls behind, since the transcript remains the source of truth.
func (x *Index) RecordSession(row SessionRow) {
	if x == nil || x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqSession, session: row}:
	default:
	}
}

// RecordHarvest queues one harvested item for the per-cell history.
func (x *Index) RecordHarvest(sessionID string, seq, i, j, serial, pointValue int) {
	if x == nil || x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqHarvest, harvest: harvestRow{
		SessionID: sessionID, Seq: seq, I: i, J: j, Serial: serial, PointValue: pointValue,
	}}:
	default:
	}
}

func (x *Index) loop() {
	for r := range x.ch {
		switch r.kind {
		case reqSession:
			s := r.session
			_, _ = x.db.Exec(
				`INSERT OR REPLACE INTO sessions
				 (id, client_name, started_at, ended_at, commands, harvests, points, cells_seen, digest)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				s.ID, s.ClientName,
				s.StartedAt.UTC().Format(time.RFC3339Nano),
				s.EndedAt.UTC().Format(time.RFC3339Nano),
				s.Commands, s.Harvests, s.Points, s.CellsSeen, s.Digest,
			)
		case reqHarvest:
			h := r.harvest
			_, _ = x.db.Exec(
				`INSERT OR IGNORE INTO harvests (session_id, seq, i, j, serial, point_value)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				h.SessionID, h.Seq, h.I, h.J, h.Serial, h.PointValue,
			)
		}
	}
}

// SessionSummary reads one session row back; used by admin tooling and
// tests, never by the game loop.
func (x *Index) SessionSummary(ctx context.Context, id string) (SessionRow, error) {
	var (
		row       SessionRow
		startedAt string
		endedAt   string
	)
	err := x.db.QueryRowContext(ctx,
		`SELECT id, client_name, started_at, ended_at, commands, harvests, points, cells_seen, digest
		 FROM sessions WHERE id = ?`, id).
		Scan(&row.ID, &row.ClientName, &startedAt, &endedAt,
			&row.Commands, &row.Harvests, &row.Points, &row.CellsSeen, &row.Digest)
	if err != nil {
		return SessionRow{}, err
	}
	if row.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return SessionRow{}, fmt.Errorf("started_at: %w", err)
	}
	if row.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return SessionRow{}, fmt.Errorf("ended_at: %w", err)
	}
	return row, nil
}

// HarvestCount reports how many harvests the index holds for a cell.
func (x *Index) HarvestCount(ctx context.Context, i, j int) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM harvests WHERE i = ? AND j = ?`, i, j).Scan(&n)
	return n, err
}

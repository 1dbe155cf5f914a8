/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package archive keeps finished games in SQLite so scripts and analyses
// can be revisited after the session is gone.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Seednode/manzai/game"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("archive: game not found")

// timeLayout is fixed width so finished_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one finished game.
type Record struct {
	ID         string           `json:"id"`
	Session    string           `json:"session"`
	Difficulty game.Difficulty  `json:"difficulty"`
	Topic      string           `json:"topic"`
	Category   string           `json:"category"`
	Turns      int              `json:"turns"`
	History    []game.Utterance `json:"history,omitempty"`
	Analysis   *game.Analysis   `json:"analysis,omitempty"`
	Script     string           `json:"script,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}

	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS games (
				id          TEXT    PRIMARY KEY,
				session     TEXT    NOT NULL,
				difficulty  TEXT    NOT NULL,
				topic       TEXT    NOT NULL,
				category    TEXT    NOT NULL DEFAULT '',
				turns       INTEGER NOT NULL DEFAULT 0,
				history     TEXT    NOT NULL DEFAULT '[]',
				analysis    TEXT    NOT NULL DEFAULT '{}',
				script      TEXT    NOT NULL DEFAULT '',
				finished_at TEXT    NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_games_finished_at ON games(finished_at);
			INSERT INTO schema_version (version) VALUES (1);
		`); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r, assigning an ID and finish time when missing, and returns the ID.
func (s *Store) Save(ctx context.Context, r Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	if r.History == nil {
		r.History = []game.Utterance{}
	}
	if r.Analysis == nil {
		r.Analysis = &game.Analysis{}
	}

	history, err := json.Marshal(r.History)
	if err != nil {
		return "", fmt.Errorf("archive: encode history: %w", err)
	}
	analysis, err := json.Marshal(r.Analysis)
	if err != nil {
		return "", fmt.Errorf("archive: encode analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, session, difficulty, topic, category, turns, history, analysis, script, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Session, string(r.Difficulty), r.Topic, r.Category, r.Turns,
		string(history), string(analysis), r.Script,
		r.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("archive: insert %s: %w", r.ID, err)
	}

	return r.ID, nil
}

// Get loads a full record.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	var (
		r          Record
		difficulty string
		history    string
		analysis   string
		finishedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, session, difficulty, topic, category, turns, history, analysis, script, finished_at
		FROM games WHERE id = ?`, id,
	).Scan(&r.ID, &r.Session, &difficulty, &r.Topic, &r.Category, &r.Turns, &history, &analysis, &r.Script, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("archive: get %s: %w", id, err)
	}

	r.Difficulty = game.Difficulty(difficulty)

	if err := json.Unmarshal([]byte(history), &r.History); err != nil {
		return Record{}, fmt.Errorf("archive: decode history %s: %w", id, err)
	}

	r.Analysis = &game.Analysis{}
	if err := json.Unmarshal([]byte(analysis), r.Analysis); err != nil {
		return Record{}, fmt.Errorf("archive: decode analysis %s: %w", id, err)
	}

	r.FinishedAt, err = time.Parse(timeLayout, finishedAt)
	if err != nil {
		return Record{}, fmt.Errorf("archive: decode time %s: %w", id, err)
	}

	return r, nil
}

// Recent lists the newest games without their history, analysis or script.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, difficulty, topic, category, turns, finished_at
		FROM games ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r          Record
			difficulty string
			finishedAt string
		)
		if err := rows.Scan(&r.ID, &r.Session, &difficulty, &r.Topic, &r.Category, &r.Turns, &finishedAt); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		r.Difficulty = game.Difficulty(difficulty)
		if r.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return nil, fmt.Errorf("archive: decode time %s: %w", r.ID, err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

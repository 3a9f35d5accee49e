// Package snapshot persists autosaved copies of the slide deck so the
// most recent deck survives restarts and disconnects. A snapshot is
// written opportunistically every time a slide-deck update is reduced.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists deck snapshots in sqlite
type Store struct {
	db *sql.DB
}

// Info describes one stored snapshot without its payload
type Info struct {
	ID             int64     `json:"id"`
	PresentationID string    `json:"presentation_id"`
	Title          string    `json:"title"`
	SlideCount     int       `json:"slide_count"`
	SavedAt        time.Time `json:"saved_at"`
}

// NewStore creates a snapshot store on the given database and ensures
// its schema exists
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return s, nil
}

// Open opens (or creates) a sqlite database at path and returns a store
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	return NewStore(db)
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deck_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			presentation_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			slide_count INTEGER NOT NULL DEFAULT 0,
			deck_json TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_presentation
			ON deck_snapshots (presentation_id, saved_at DESC);
	`)
	return err
}

// Save writes one snapshot. The deck payload is stored as JSON.
func (s *Store) Save(ctx context.Context, presentationID, title string, slideCount int, deck interface{}) error {
	data, err := json.Marshal(deck)
	if err != nil {
		return fmt.Errorf("failed to marshal deck: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deck_snapshots (presentation_id, title, slide_count, deck_json, saved_at)
		VALUES (?, ?, ?, ?, ?)
	`, presentationID, title, slideCount, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Latest loads the most recent snapshot for a presentation into dest
func (s *Store) Latest(ctx context.Context, presentationID string, dest interface{}) (*Info, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, presentation_id, title, slide_count, deck_json, saved_at
		FROM deck_snapshots
		WHERE presentation_id = ?
		ORDER BY saved_at DESC, id DESC
		LIMIT 1
	`, presentationID)

	var info Info
	var deckJSON string
	if err := row.Scan(&info.ID, &info.PresentationID, &info.Title, &info.SlideCount, &deckJSON, &info.SavedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no snapshot for presentation %s", presentationID)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(deckJSON), dest); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
		}
	}
	return &info, nil
}

// List returns snapshot metadata, newest first
func (s *Store) List(ctx context.Context, presentationID string, limit int) ([]Info, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, presentation_id, title, slide_count, saved_at
		FROM deck_snapshots
		WHERE (? = '' OR presentation_id = ?)
		ORDER BY saved_at DESC, id DESC
		LIMIT ?
	`, presentationID, presentationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.ID, &info.PresentationID, &info.Title, &info.SlideCount, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Prune deletes all but the newest keep snapshots per presentation and
// returns the number removed
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = 20
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM deck_snapshots
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY presentation_id ORDER BY saved_at DESC, id DESC
				) AS rn
				FROM deck_snapshots
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

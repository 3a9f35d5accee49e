package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// TokenStore persists the most recent credential so it can be reused
// across process restarts. It is a cache only; the Manager remains
// authoritative on validity.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a token store on the given database and ensures
// its schema exists
func NewTokenStore(db *sql.DB) (*TokenStore, error) {
	ts := &TokenStore{db: db}
	if err := ts.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize credential schema: %w", err)
	}
	return ts, nil
}

// OpenTokenStore opens (or creates) a sqlite database at path and
// returns a store backed by it
func OpenTokenStore(path string) (*TokenStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	return NewTokenStore(db)
}

func (ts *TokenStore) initSchema() error {
	_, err := ts.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Save overwrites the persisted credential
func (ts *TokenStore) Save(ctx context.Context, cred *Credential, refreshToken string) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("cannot persist empty credential")
	}

	_, err := ts.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, cred.Token, refreshToken, cred.ExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// Load returns the persisted credential and refresh token, if any
func (ts *TokenStore) Load(ctx context.Context) (*Credential, string, error) {
	row := ts.db.QueryRowContext(ctx, `
		SELECT token, refresh_token, expires_at FROM credentials WHERE id = 1
	`)

	var cred Credential
	var refreshToken string
	if err := row.Scan(&cred.Token, &refreshToken, &cred.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", fmt.Errorf("no credential persisted")
		}
		return nil, "", fmt.Errorf("failed to read credential: %w", err)
	}
	return &cred, refreshToken, nil
}

// Clear removes the persisted credential
func (ts *TokenStore) Clear(ctx context.Context) error {
	if _, err := ts.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (ts *TokenStore) Close() error {
	return ts.db.Close()
}

// DB exposes the underlying handle so other stores (snapshots) can share
// the same database file
func (ts *TokenStore) DB() *sql.DB {
	return ts.db
}

// Package agents persists agent configurations built in the UI.
//
// The store is SQLite-backed (pure-Go driver) — agent records are the only
// durable state the backend owns; generated text and cache entries never
// touch disk.
package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Agent is a persisted agent configuration.
type Agent struct {
	ID           string          `json:"id"`
	Name         string          `json:"agentName"`
	Description  string          `json:"agentDesc"`
	SystemPrompt string          `json:"agentPrompt"`
	Formality    int             `json:"formality"`
	Creativity   int             `json:"creativity"`
	Toggles      map[string]bool `json:"toggles"`
	ModelPick    string          `json:"modelPick"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store owns the SQLite database of agent records.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the agent database at path and ensures the schema
// exists. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("agents: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS agents (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT,
		system_prompt TEXT,
		formality     INTEGER,
		creativity    INTEGER,
		toggles       TEXT,
		model_pick    TEXT,
		created_at    TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("agents: init schema: %w", err)
	}
	return nil
}

// Create inserts a new agent record. The ID and CreatedAt fields are
// assigned here; the populated Agent is returned.
func (s *Store) Create(ctx context.Context, a Agent) (*Agent, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	toggles, err := json.Marshal(a.Toggles)
	if err != nil {
		return nil, fmt.Errorf("agents: marshal toggles: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO agents
		(id, name, description, system_prompt, formality, creativity, toggles, model_pick, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Name,
		a.Description,
		a.SystemPrompt,
		a.Formality,
		a.Creativity,
		string(toggles),
		a.ModelPick,
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("agents: insert: %w", err)
	}

	return &a, nil
}

// List returns all agent records, newest first.
func (s *Store) List(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, name, description, system_prompt, formality, creativity, toggles, model_pick, created_at
		FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("agents: query: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var (
			a       Agent
			toggles string
			created string
		)
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Description, &a.SystemPrompt,
			&a.Formality, &a.Creativity, &toggles, &a.ModelPick, &created,
		); err != nil {
			return nil, fmt.Errorf("agents: scan: %w", err)
		}
		if toggles != "" {
			_ = json.Unmarshal([]byte(toggles), &a.Toggles)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			a.CreatedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ready reports whether the database answers a ping.
func (s *Store) Ready(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

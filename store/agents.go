package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alghanim/agentpulse/models"

	"go.uber.org/zap"
)

const agentColumns = `id, name, type, language, version, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Language, &a.Version, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// ListAgents returns agents newest first. An empty status or "all" disables
// the status filter.
func (s *Store) ListAgents(ctx context.Context, status string) ([]models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []interface{}
	if status != "" && !strings.EqualFold(status, "all") {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return agents, nil
}

// GetAgent returns one agent or ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, id int64) (models.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+agentColumns+` FROM agents WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Agent{}, ErrNotFound
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("get agent %d: %w", id, err)
	}
	return a, nil
}

// FindAgentByName returns the oldest agent called name or ErrNotFound.
func (s *Store) FindAgentByName(ctx context.Context, name string) (models.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+agentColumns+` FROM agents WHERE name = $1 ORDER BY id LIMIT 1`), name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Agent{}, ErrNotFound
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("find agent %q: %w", name, err)
	}
	return a, nil
}

// CreateAgent inserts a and returns the stored row.
func (s *Store) CreateAgent(ctx context.Context, a models.Agent) (models.Agent, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO agents (name, type, language, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`),
		a.Name, a.Type, a.Language, a.Version, a.Status, a.CreatedAt.UTC(), s.timestamp(),
	).Scan(&id)
	if err != nil {
		return models.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// UpdateAgent replaces every editable field of agent id.
func (s *Store) UpdateAgent(ctx context.Context, id int64, a models.Agent) (models.Agent, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE agents
		SET name = $1, type = $2, language = $3, version = $4, status = $5,
		    created_at = $6, updated_at = $7
		WHERE id = $8`),
		a.Name, a.Type, a.Language, a.Version, a.Status, a.CreatedAt.UTC(), s.timestamp(), id)
	if err != nil {
		return models.Agent{}, fmt.Errorf("update agent %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Agent{}, ErrNotFound
	}
	return s.GetAgent(ctx, id)
}

// DeleteAgent removes the agent and its executions.
func (s *Store) DeleteAgent(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM executions WHERE agent_id = $1`), id); err != nil {
		return fmt.Errorf("delete executions of agent %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM agents WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete agent %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UpsertSeedAgents seeds agents declared in config. Agents are matched by
// name; existing rows get their metadata refreshed but keep their status.
func (s *Store) UpsertSeedAgents(ctx context.Context, seeds []models.SeedAgent) (inserted, updated int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	for _, seed := range seeds {
		status := seed.Status
		if status == "" {
			status = models.StatusActive
		}
		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM agents WHERE name = $1 ORDER BY id LIMIT 1`), seed.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, s.rebind(`
				INSERT INTO agents (name, type, language, version, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`),
				seed.Name, seed.Type, seed.Language, seed.Version, status, now, now); err != nil {
				return 0, 0, fmt.Errorf("seed agent %q: %w", seed.Name, err)
			}
			inserted++
		case err != nil:
			return 0, 0, fmt.Errorf("lookup agent %q: %w", seed.Name, err)
		default:
			if _, err := tx.ExecContext(ctx, s.rebind(`
				UPDATE agents SET type = $1, language = $2, version = $3, updated_at = $4
				WHERE id = $5`),
				seed.Type, seed.Language, seed.Version, now, id); err != nil {
				return 0, 0, fmt.Errorf("refresh agent %q: %w", seed.Name, err)
			}
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Info("seeded agents from config", zap.Int("inserted", inserted), zap.Int("updated", updated))
	return inserted, updated, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alghanim/agentpulse/models"
)

// RecordExecution stores e and sets its ID.
func (s *Store) RecordExecution(ctx context.Context, e *models.Execution) error {
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO executions (agent_id, message, started_at, duration_seconds, success, api, tokens, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`),
		e.AgentID, e.Message, e.StartedAt.UTC(), e.DurationSeconds, e.Success, e.API, e.Tokens,
		models.StringToNull(e.Error),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("record execution for agent %d: %w", e.AgentID, err)
	}
	return nil
}

// ListExecutions returns every execution of agentID, oldest first.
func (s *Store) ListExecutions(ctx context.Context, agentID int64) ([]models.Execution, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, agent_id, message, started_at, duration_seconds, success, api, tokens, error
		FROM executions
		WHERE agent_id = $1
		ORDER BY started_at ASC, id ASC`), agentID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	execs := []models.Execution{}
	for rows.Next() {
		var e models.Execution
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Message, &e.StartedAt, &e.DurationSeconds,
			&e.Success, &e.API, &e.Tokens, &errText); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Error = models.NullStringValue(errText)
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return execs, nil
}

// CountExecutions returns how many executions agentID has.
func (s *Store) CountExecutions(ctx context.Context, agentID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM executions WHERE agent_id = $1`), agentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

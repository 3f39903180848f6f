package store

import (
	"context"
	"testing"
	"time"

	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{Driver: DialectSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleAgent(name string, created time.Time) models.Agent {
	return models.Agent{
		Name:      name,
		Type:      "recommendation",
		Language:  "python",
		Version:   "1.0",
		Status:    models.StatusActive,
		CreatedAt: created,
	}
}

func TestRebind(t *testing.T) {
	pg := New(nil, DialectPostgres, nil)
	lite := New(nil, DialectSQLite, nil)

	q := `UPDATE agents SET name = $1 WHERE id = $12 AND price = '$x'`
	assert.Equal(t, q, pg.rebind(q))
	assert.Equal(t, `UPDATE agents SET name = ? WHERE id = ? AND price = '$x'`, lite.rebind(q))
}

func TestAgentCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	first, err := s.CreateAgent(ctx, sampleAgent("alpha", day))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.True(t, first.CreatedAt.Equal(day))

	second, err := s.CreateAgent(ctx, sampleAgent("beta", day.AddDate(0, 0, 1)))
	require.NoError(t, err)

	agents, err := s.ListAgents(ctx, "")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, second.ID, agents[0].ID, "newest first")

	update := sampleAgent("alpha-2", day)
	update.Status = models.StatusInactive
	got, err := s.UpdateAgent(ctx, first.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "alpha-2", got.Name)
	assert.Equal(t, models.StatusInactive, got.Status)

	inactive, err := s.ListAgents(ctx, models.StatusInactive)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, first.ID, inactive[0].ID)

	all, err := s.ListAgents(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteAgent(ctx, first.ID))
	_, err = s.GetAgent(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgentNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetAgent(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdateAgent(ctx, 42, sampleAgent("x", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteAgent(ctx, 42), ErrNotFound)
}

func TestFindAgentByName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.CreateAgent(ctx, sampleAgent("Recommender", time.Now()))
	require.NoError(t, err)
	_, err = s.CreateAgent(ctx, sampleAgent("Recommender", time.Now()))
	require.NoError(t, err)

	got, err := s.FindAgentByName(ctx, "Recommender")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "oldest match wins")

	_, err = s.FindAgentByName(ctx, "Translator")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecutions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	agent, err := s.CreateAgent(ctx, sampleAgent("alpha", time.Now()))
	require.NoError(t, err)

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	later := &models.Execution{AgentID: agent.ID, Message: "second", StartedAt: base.Add(time.Hour), DurationSeconds: 2.5, Success: false, API: "m", Error: "timeout"}
	earlier := &models.Execution{AgentID: agent.ID, Message: "first", StartedAt: base, DurationSeconds: 1.25, Success: true, API: "m", Tokens: 42}
	require.NoError(t, s.RecordExecution(ctx, later))
	require.NoError(t, s.RecordExecution(ctx, earlier))
	assert.NotZero(t, later.ID)

	execs, err := s.ListExecutions(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "first", execs[0].Message)
	assert.True(t, execs[0].Success)
	assert.Equal(t, 42, execs[0].Tokens)
	assert.Equal(t, "", execs[0].Error)
	assert.Equal(t, "timeout", execs[1].Error)
	assert.True(t, execs[1].StartedAt.Equal(base.Add(time.Hour)))

	n, err := s.CountExecutions(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteAgent(ctx, agent.ID))
	n, err = s.CountExecutions(ctx, agent.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertSeedAgentsPreservesStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	seeds := []models.SeedAgent{
		{Name: "Recommender", Type: "recommendation", Language: "python", Version: "1.0"},
		{Name: "Translator", Type: "nlp", Language: "go", Version: "0.3", Status: models.StatusInactive},
	}
	ins, upd, err := s.UpsertSeedAgents(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, ins)
	assert.Equal(t, 0, upd)

	agents, err := s.ListAgents(ctx, models.StatusActive)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	rec := agents[0]

	rec.Status = models.StatusInactive
	_, err = s.UpdateAgent(ctx, rec.ID, rec)
	require.NoError(t, err)

	seeds[0].Version = "2.0"
	ins, upd, err = s.UpsertSeedAgents(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 2, upd)

	got, err := s.GetAgent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.0", got.Version)
	assert.Equal(t, models.StatusInactive, got.Status)
}

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() AgentInput {
	return AgentInput{
		Name:      "Recommender",
		Type:      "recommendation",
		Language:  "python",
		Version:   "1.0.0",
		CreatedAt: "2025-03-14",
		Status:    StatusActive,
	}
}

func TestAgentInputValidate(t *testing.T) {
	t.Run("plain date", func(t *testing.T) {
		got, err := validInput().Validate()
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("rfc3339", func(t *testing.T) {
		in := validInput()
		in.CreatedAt = "2025-03-14T10:30:00+02:00"
		got, err := in.Validate()
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC), got)
	})

	t.Run("missing fields are listed", func(t *testing.T) {
		in := validInput()
		in.Name = " "
		in.Version = ""
		_, err := in.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "name, version")
	})

	t.Run("invalid date", func(t *testing.T) {
		in := validInput()
		in.CreatedAt = "yesterday"
		_, err := in.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid date")
	})

	t.Run("unknown status", func(t *testing.T) {
		in := validInput()
		in.Status = "paused"
		_, err := in.Validate()
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestToAgentTrims(t *testing.T) {
	in := validInput()
	in.Name = "  Recommender "
	a := in.ToAgent(time.Unix(0, 0))
	assert.Equal(t, "Recommender", a.Name)
	assert.Equal(t, StatusActive, a.Status)
}

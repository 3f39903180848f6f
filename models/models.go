package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Agent statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ErrValidation is wrapped by every input validation failure.
var ErrValidation = errors.New("validation failed")

// Agent represents an agent record in the DB.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Language  string    `json:"language"`
	Version   string    `json:"version"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentInput is the body accepted by create and update.
type AgentInput struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Language  string `json:"language"`
	Version   string `json:"version"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
}

// Validate checks required fields and returns the parsed creation date.
func (in AgentInput) Validate() (time.Time, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", in.Name},
		{"type", in.Type},
		{"language", in.Language},
		{"version", in.Version},
		{"created_at", in.CreatedAt},
		{"status", in.Status},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return time.Time{}, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if in.Status != StatusActive && in.Status != StatusInactive {
		return time.Time{}, fmt.Errorf("%w: status must be %q or %q", ErrValidation, StatusActive, StatusInactive)
	}
	createdAt, err := ParseDate(in.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date", ErrValidation)
	}
	return createdAt, nil
}

// ToAgent builds an Agent from validated input.
func (in AgentInput) ToAgent(createdAt time.Time) Agent {
	return Agent{
		Name:      strings.TrimSpace(in.Name),
		Type:      strings.TrimSpace(in.Type),
		Language:  strings.TrimSpace(in.Language),
		Version:   strings.TrimSpace(in.Version),
		Status:    in.Status,
		CreatedAt: createdAt,
	}
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates (HTML date inputs).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// SeedAgent is an agent declared in the config file.
type SeedAgent struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Language string `yaml:"language"`
	Version  string `yaml:"version"`
	Status   string `yaml:"status,omitempty"`
}

// Execution is one relayed chat call.
type Execution struct {
	ID              int64     `json:"id"`
	AgentID         int64     `json:"agent_id"`
	Message         string    `json:"message"`
	StartedAt       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration"`
	Success         bool      `json:"success"`
	API             string    `json:"api"`
	Tokens          int       `json:"tokens"`
	Error           string    `json:"error,omitempty"`
}

// --- SQL null helpers ---

func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func StringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

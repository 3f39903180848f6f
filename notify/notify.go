// Package notify delivers relay failure alerts by email and webhook.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/alghanim/agentpulse/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alert subjects raised by the relay.
const (
	SubjectAgentError      = "Recommendation agent error"
	SubjectInvalidResponse = "Invalid agent response"
)

type Alert struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	AgentID    int64     `json:"agent_id"`
	Message    string    `json:"message"`
	Error      string    `json:"error"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewAlert stamps a fresh alert with an ID and the current time.
func NewAlert(subject string, agentID int64, message string, err error) Alert {
	a := Alert{
		ID:         uuid.NewString(),
		Subject:    subject,
		AgentID:    agentID,
		Message:    message,
		DetectedAt: time.Now(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig assembles the notifiers enabled in cfg. With none configured it
// returns Nop.
func FromConfig(cfg config.AlertsConfig, logger *zap.Logger) Notifier {
	var out Multi
	if cfg.SMTP.Enabled() {
		out = append(out, NewMailer(cfg.SMTP))
	}
	if cfg.WebhookURL != "" {
		out = append(out, NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, cfg.Timeout, logger))
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}

package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const alertEvent = "agent_error"

// Webhook POSTs alerts as JSON. When Secret is set the body is signed with
// HMAC-SHA256 in X-Webhook-Signature.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
	Logger *zap.Logger
}

func NewWebhook(url, secret string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (w *Webhook) Notify(ctx context.Context, alert Alert) error {
	payload := map[string]interface{}{
		"event":     alertEvent,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"alert":     alert,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AgentPulse-Event", alertEvent)
	req.Header.Set("User-Agent", "AgentPulse-Webhook/1.0")
	if w.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(w.Secret, body))
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook to %s: %w", w.URL, err)
	}
	defer resp.Body.Close()

	w.Logger.Debug("webhook delivered",
		zap.String("url", w.URL),
		zap.String("alert_id", alert.ID),
		zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s answered %d", w.URL, resp.StatusCode)
	}
	return nil
}

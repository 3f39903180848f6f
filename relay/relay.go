// Package relay forwards chat messages to the upstream LLM on behalf of an
// agent and records every call as an execution.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/history"
	"github.com/alghanim/agentpulse/metrics"
	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/notify"
	"github.com/alghanim/agentpulse/store"

	"github.com/abadojack/whatlanggo"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrAgentNotFound   = errors.New("agent not found")
	ErrInvalidResponse = errors.New("invalid response from agent")
	// ErrUpstream wraps every failure reported by the completer.
	ErrUpstream = errors.New("agent upstream failed")
)

// Completion is what the upstream model answered.
type Completion struct {
	Content string
	Tokens  int
}

// Completer produces the assistant answer for a conversation. It returns
// ErrInvalidResponse when the upstream reply carries no choice.
type Completer interface {
	Complete(ctx context.Context, messages []history.Message) (Completion, error)
}

// AgentStore is the persistence the relay needs.
type AgentStore interface {
	GetAgent(ctx context.Context, id int64) (models.Agent, error)
	RecordExecution(ctx context.Context, e *models.Execution) error
}

// Publisher is told about every recorded execution.
type Publisher interface {
	ExecutionRecorded(ctx context.Context, e models.Execution)
}

type Reply struct {
	Response        string  `json:"response"`
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"duration"`
	ExecutionID     int64   `json:"execution_id"`
}

type Options struct {
	Model                 string
	SystemPrompt          string
	DefaultLanguage       string
	MinLanguageConfidence float64
	HistorySize           int
	Timeout               time.Duration
	MaxConcurrent         int64
	AlertTimeout          time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:                 cfg.Relay.Model,
		SystemPrompt:          cfg.Relay.SystemPrompt,
		DefaultLanguage:       cfg.Relay.DefaultLanguage,
		MinLanguageConfidence: cfg.Relay.MinLanguageConfidence,
		HistorySize:           cfg.Relay.HistorySize,
		Timeout:               cfg.Relay.Timeout,
		MaxConcurrent:         cfg.Relay.MaxConcurrent,
		AlertTimeout:          cfg.Alerts.Timeout,
	}
}

// Deps are the collaborators of a Relay. Completer and Store are required.
type Deps struct {
	Completer Completer
	Store     AgentStore
	History   history.Store
	Notifier  notify.Notifier
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Relay struct {
	opts      Options
	completer Completer
	store     AgentStore
	history   history.Store
	notifier  notify.Notifier
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	sem      *semaphore.Weighted
	inFlight atomic.Int64
	queued   atomic.Int64
	alerts   sync.WaitGroup
	now      func() time.Time
}

func New(opts Options, deps Deps) (*Relay, error) {
	if deps.Completer == nil || deps.Store == nil {
		return nil, errors.New("relay: completer and store are required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.AlertTimeout <= 0 {
		opts.AlertTimeout = 15 * time.Second
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	r := &Relay{
		opts:      opts,
		completer: deps.Completer,
		store:     deps.Store,
		history:   deps.History,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		now:       time.Now,
	}
	if r.history == nil {
		r.history = history.NewMemoryStore(0)
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r, nil
}

// Load reports the completions running and the requests waiting for a slot.
func (r *Relay) Load() (inFlight, queued int64) {
	return r.inFlight.Load(), r.queued.Load()
}

// Wait blocks until pending alert deliveries are done.
func (r *Relay) Wait() {
	r.alerts.Wait()
}

// DetectLanguage returns the ISO 639-1 code of text, or the default language
// when detection is not confident enough.
func (r *Relay) DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence > r.opts.MinLanguageConfidence {
		if code := info.Lang.Iso6391(); code != "" {
			return code
		}
	}
	return r.opts.DefaultLanguage
}

// Chat relays message to the upstream model as agentID.
func (r *Relay) Chat(ctx context.Context, agentID int64, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	if _, err := r.store.GetAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Reply{}, ErrAgentNotFound
		}
		return Reply{}, fmt.Errorf("load agent %d: %w", agentID, err)
	}

	lang := r.DetectLanguage(message)
	past, err := r.history.Recent(ctx, agentID, r.opts.HistorySize)
	if err != nil {
		r.logger.Warn("chat history unavailable", zap.Int64("agent_id", agentID), zap.Error(err))
		past = nil
	}
	messages := r.buildMessages(lang, past, message)

	if err := r.acquire(ctx); err != nil {
		return Reply{}, err
	}
	startedAt := r.now()
	began := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	completion, callErr := r.completer.Complete(callCtx, messages)
	cancel()
	elapsed := time.Since(began)
	r.release()

	exec := models.Execution{
		AgentID:         agentID,
		Message:         message,
		StartedAt:       startedAt,
		DurationSeconds: math.Round(elapsed.Seconds()*100) / 100,
		Success:         callErr == nil,
		API:             r.opts.Model,
		Tokens:          completion.Tokens,
	}
	if callErr != nil {
		exec.Error = callErr.Error()
	}
	r.record(context.WithoutCancel(ctx), &exec)

	switch {
	case callErr == nil:
	case errors.Is(callErr, ErrInvalidResponse):
		r.metrics.ObserveRelay(metrics.OutcomeInvalid, elapsed)
		r.logger.Error("invalid upstream response", zap.Int64("agent_id", agentID))
		r.alert(notify.SubjectInvalidResponse, agentID, message, callErr)
		return Reply{}, callErr
	case errors.Is(ctx.Err(), context.Canceled):
		r.metrics.ObserveRelay(metrics.OutcomeCanceled, elapsed)
		return Reply{}, ctx.Err()
	default:
		r.metrics.ObserveRelay(metrics.OutcomeError, elapsed)
		r.logger.Error("upstream completion failed",
			zap.Int64("agent_id", agentID),
			zap.Duration("elapsed", elapsed),
			zap.Error(callErr))
		r.alert(notify.SubjectAgentError, agentID, message, callErr)
		return Reply{}, fmt.Errorf("%w: %v", ErrUpstream, callErr)
	}

	r.metrics.ObserveRelay(metrics.OutcomeSuccess, elapsed)
	err = r.history.Append(context.WithoutCancel(ctx), agentID,
		history.Message{Role: history.RoleUser, Content: message},
		history.Message{Role: history.RoleAssistant, Content: completion.Content},
	)
	if err != nil {
		r.logger.Warn("could not store chat history", zap.Int64("agent_id", agentID), zap.Error(err))
	}
	return Reply{
		Response:        completion.Content,
		Language:        lang,
		DurationSeconds: exec.DurationSeconds,
		ExecutionID:     exec.ID,
	}, nil
}

// ClearHistory forgets the conversation of agentID.
func (r *Relay) ClearHistory(ctx context.Context, agentID int64) error {
	return r.history.Clear(ctx, agentID)
}

func (r *Relay) buildMessages(lang string, past []history.Message, message string) []history.Message {
	prompt := strings.ReplaceAll(r.opts.SystemPrompt, "%s", lang)
	messages := make([]history.Message, 0, len(past)+2)
	if prompt != "" {
		messages = append(messages, history.Message{Role: history.RoleSystem, Content: prompt})
	}
	messages = append(messages, past...)
	return append(messages, history.Message{
		Role:    history.RoleUser,
		Content: fmt.Sprintf("[Detected language: %s]\n%s", lang, message),
	})
}

func (r *Relay) acquire(ctx context.Context) error {
	if !r.sem.TryAcquire(1) {
		r.queued.Add(1)
		r.reportLoad()
		err := r.sem.Acquire(ctx, 1)
		r.queued.Add(-1)
		if err != nil {
			r.reportLoad()
			return err
		}
	}
	r.inFlight.Add(1)
	r.reportLoad()
	return nil
}

func (r *Relay) release() {
	r.inFlight.Add(-1)
	r.sem.Release(1)
	r.reportLoad()
}

func (r *Relay) reportLoad() {
	r.metrics.SetRelayLoad(r.inFlight.Load(), r.queued.Load())
}

func (r *Relay) record(ctx context.Context, exec *models.Execution) {
	if err := r.store.RecordExecution(ctx, exec); err != nil {
		r.logger.Error("failed to record execution", zap.Int64("agent_id", exec.AgentID), zap.Error(err))
		return
	}
	if r.publisher != nil {
		r.publisher.ExecutionRecorded(ctx, *exec)
	}
}

func (r *Relay) alert(subject string, agentID int64, message string, cause error) {
	a := notify.NewAlert(subject, agentID, message, cause)
	r.alerts.Add(1)
	go func() {
		defer r.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.AlertTimeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, a); err != nil {
			r.logger.Warn("alert delivery failed",
				zap.String("alert_id", a.ID),
				zap.String("subject", subject),
				zap.Error(err))
		}
	}()
}

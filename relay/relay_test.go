package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/history"
	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/notify"
	"github.com/alghanim/agentpulse/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]history.Message
	reply   Completion
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []history.Message) (Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	block, started := f.block, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeCompleter) lastCall() []history.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (f *fakeNotifier) Notify(_ context.Context, a notify.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeNotifier) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.Subject)
	}
	return out
}

type fakePublisher struct {
	mu    sync.Mutex
	execs []models.Execution
}

func (f *fakePublisher) ExecutionRecorded(_ context.Context, e models.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, e)
}

type fixture struct {
	relay     *Relay
	store     *store.Store
	completer *fakeCompleter
	notifier  *fakeNotifier
	publisher *fakePublisher
	agentID   int64
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, config.DatabaseConfig{Driver: store.DialectSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	agent, err := s.CreateAgent(ctx, models.Agent{
		Name: "Recommender", Type: "recommendation", Language: "python", Version: "1.0",
		Status: models.StatusActive, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	opts := OptionsFromConfig(config.Default())
	opts.MinLanguageConfidence = 2
	if mutate != nil {
		mutate(&opts)
	}
	f := &fixture{
		store:     s,
		completer: &fakeCompleter{reply: Completion{Content: "Read Dune.", Tokens: 42}},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		agentID:   agent.ID,
	}
	f.relay, err = New(opts, Deps{
		Completer: f.completer,
		Store:     s,
		History:   history.NewMemoryStore(50),
		Notifier:  f.notifier,
		Publisher: f.publisher,
	})
	require.NoError(t, err)
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{}, Deps{})
	assert.Error(t, err)
}

func TestChat_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.relay.Chat(ctx, f.agentID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.relay.Chat(ctx, f.agentID+100, "hello")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	assert.Empty(t, f.completer.calls)
}

func TestChat_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reply, err := f.relay.Chat(ctx, f.agentID, "  recommend me a book  ")
	require.NoError(t, err)
	assert.Equal(t, "Read Dune.", reply.Response)
	assert.Equal(t, "en", reply.Language)
	assert.NotZero(t, reply.ExecutionID)

	sent := f.completer.lastCall()
	require.Len(t, sent, 2)
	assert.Equal(t, history.RoleSystem, sent[0].Role)
	assert.True(t, strings.HasSuffix(sent[0].Content, "detected language: en."))
	assert.Equal(t, "[Detected language: en]\nrecommend me a book", sent[1].Content)

	execs, err := f.store.ListExecutions(ctx, f.agentID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Success)
	assert.Equal(t, 42, execs[0].Tokens)
	assert.Equal(t, "mistralai/mistral-7b-instruct", execs[0].API)
	assert.Equal(t, "recommend me a book", execs[0].Message)

	require.Len(t, f.publisher.execs, 1)
	assert.Equal(t, reply.ExecutionID, f.publisher.execs[0].ID)

	f.relay.Wait()
	assert.Empty(t, f.notifier.subjects())
}

func TestChat_HistoryIsSentUpstream(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.HistorySize = 2 })
	ctx := context.Background()

	_, err := f.relay.Chat(ctx, f.agentID, "first question")
	require.NoError(t, err)
	_, err = f.relay.Chat(ctx, f.agentID, "second question")
	require.NoError(t, err)

	sent := f.completer.lastCall()
	require.Len(t, sent, 4)
	assert.Equal(t, history.Message{Role: history.RoleUser, Content: "first question"}, sent[1])
	assert.Equal(t, history.Message{Role: history.RoleAssistant, Content: "Read Dune."}, sent[2])

	require.NoError(t, f.relay.ClearHistory(ctx, f.agentID))
	_, err = f.relay.Chat(ctx, f.agentID, "third question")
	require.NoError(t, err)
	assert.Len(t, f.completer.lastCall(), 2)
}

func TestChat_UpstreamError(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.err = errors.New("status 500")
	ctx := context.Background()

	_, err := f.relay.Chat(ctx, f.agentID, "recommend me a film")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "status 500")

	execs, err := f.store.ListExecutions(ctx, f.agentID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.False(t, execs[0].Success)
	assert.Equal(t, "status 500", execs[0].Error)

	require.Eventually(t, func() bool { return len(f.notifier.subjects()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{notify.SubjectAgentError}, f.notifier.subjects())

	recent, err := f.relay.history.Recent(ctx, f.agentID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "failed turns are not remembered")
}

func TestChat_InvalidResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.err = ErrInvalidResponse

	_, err := f.relay.Chat(context.Background(), f.agentID, "recommend me a song")
	require.ErrorIs(t, err, ErrInvalidResponse)

	f.relay.Wait()
	assert.Equal(t, []string{notify.SubjectInvalidResponse}, f.notifier.subjects())
}

func TestChat_Timeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	f.completer.block = make(chan struct{})

	_, err := f.relay.Chat(context.Background(), f.agentID, "slow question")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestChat_Admission(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConcurrent = 1 })
	f.completer.block = make(chan struct{})
	f.completer.started = make(chan struct{}, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.relay.Chat(ctx, f.agentID, "queued question")
			assert.NoError(t, err)
		}()
	}

	<-f.completer.started
	require.Eventually(t, func() bool {
		inFlight, queued := f.relay.Load()
		return inFlight == 1 && queued == 1
	}, time.Second, 5*time.Millisecond)

	close(f.completer.block)
	wg.Wait()
	inFlight, queued := f.relay.Load()
	assert.Zero(t, inFlight)
	assert.Zero(t, queued)
}

func TestDetectLanguage(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MinLanguageConfidence = 0 })
	assert.Equal(t, "fr", f.relay.DetectLanguage("Bonjour, pourriez-vous me recommander un bon livre à lire pendant les vacances d'été avec ma famille ?"))

	strict := newFixture(t, func(o *Options) { o.DefaultLanguage = "de" })
	assert.Equal(t, "de", strict.relay.DetectLanguage("Bonjour, pourriez-vous me recommander un bon livre ?"))
}

func TestChat_SystemPromptKeepsLiteralPercent(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.SystemPrompt = "Answer in %s. Be 100% sure, never 50%."
		o.DefaultLanguage = "en"
	})

	_, err := f.relay.Chat(context.Background(), f.agentID, "hi")
	require.NoError(t, err)

	sent := f.completer.lastCall()
	assert.Equal(t, history.Message{Role: history.RoleSystem, Content: "Answer in en. Be 100% sure, never 50%."}, sent[0])
}

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"talkbot/internal/ai"
	"talkbot/internal/ai/tools"
	"talkbot/internal/config"
	"talkbot/internal/dispatch"
)

type fakeManager struct {
	calls    []ai.Call
	err      error
	summary  string
	purpose  string
	observed []string
}

func (m *fakeManager) Begin(purpose string) { m.purpose = purpose }

func (m *fakeManager) Next(ctx context.Context) (ai.Call, error) {
	if m.err != nil {
		return ai.Call{}, m.err
	}
	if len(m.calls) == 0 {
		return ai.Call{}, errors.New("script exhausted")
	}
	c := m.calls[0]
	m.calls = m.calls[1:]
	return c, nil
}

func (m *fakeManager) Observe(call ai.Call, result string) {
	m.observed = append(m.observed, result)
}

func (m *fakeManager) Summarize(ctx context.Context) (string, error) {
	return m.summary, nil
}

func talk(args string) ai.Call {
	return ai.Call{ID: "call", Name: "talk_to_ai", Arguments: args}
}

type fakeHuman struct {
	delivered []dispatch.RoutedMessage
	replies   []string
	summaries []string
}

func (h *fakeHuman) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	h.delivered = append(h.delivered, msg)
	return nil
}

func (h *fakeHuman) Await(ctx context.Context) (string, error) {
	if len(h.replies) == 0 {
		return "", errors.New("no reply")
	}
	r := h.replies[0]
	h.replies = h.replies[1:]
	return r, nil
}

func (h *fakeHuman) DeliverSummary(ctx context.Context, report string) error {
	h.summaries = append(h.summaries, report)
	return nil
}

// plainHuman has no SummaryReceiver method.
type plainHuman struct {
	delivered []dispatch.RoutedMessage
}

func (h *plainHuman) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	h.delivered = append(h.delivered, msg)
	return nil
}

func (h *plainHuman) Await(ctx context.Context) (string, error) {
	return "ok", nil
}

type echoWorker struct {
	mu    sync.Mutex
	tasks []string
}

func (w *echoWorker) Deliver(ctx context.Context, msg dispatch.RoutedMessage) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = append(w.tasks, msg.Message)
	return "done: " + msg.Message, nil
}

type recordingArchiver struct {
	mu      sync.Mutex
	reasons []string
}

func (a *recordingArchiver) ArchiveSession(id string, opened time.Time, state dispatch.ConversationState, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
	return nil
}

func talkRegistry() *tools.ToolRegistry {
	registry := tools.NewToolRegistry()
	registry.RegisterTool(tools.NewTalkToAITool())
	return registry
}

func newRunner(mgr Manager, worker Worker, dialogue config.DialogueConfig) (*Runner, *recordingArchiver) {
	arch := &recordingArchiver{}
	return &Runner{
		Dispatcher: dispatch.New(dispatch.WithArchiver(arch)),
		Registry:   talkRegistry(),
		NewManager: func() Manager { return mgr },
		Worker:     worker,
		Dialogue:   dialogue,
	}, arch
}

func TestRunFullConversation(t *testing.T) {
	mgr := &fakeManager{
		summary: "# Conversation summary\nok",
		calls: []ai.Call{
			talk(`{"metadata":{"continue":true},"payload":{"to":"AI","message":"draft it"}}`),
			talk(`{"metadata":{"continue":true},"payload":{"to":"HUMAN","message":"which tone?"}}`),
			talk(`{"metadata":{"continue":true}}`),
			talk(`{"metadata":{"continue":false},"payload":{"to":"HUMAN","message":"here it is"}}`),
		},
	}
	human := &fakeHuman{replies: []string{" formal "}}
	worker := &echoWorker{}
	r, arch := newRunner(mgr, worker, config.DialogueConfig{MaxTurns: 10, MaxViolations: 3, Summarize: true})

	res, err := r.Run(context.Background(), human, "  write a letter ")
	require.NoError(t, err)

	assert.Equal(t, "write a letter", mgr.purpose)
	assert.Equal(t, dispatch.ReasonCompleted, res.Reason)
	assert.Equal(t, dispatch.ConversationState{Active: false, TurnCount: 4}, res.State)
	assert.Equal(t, "# Conversation summary\nok", res.Summary)

	assert.Equal(t, []string{"draft it"}, worker.tasks)
	require.Len(t, human.delivered, 2)
	assert.Equal(t, 2, human.delivered[0].Turn)
	assert.Equal(t, "here it is", human.delivered[1].Message)
	assert.Equal(t, []string{res.Summary}, human.summaries)

	require.Len(t, mgr.observed, 4)
	assert.Equal(t, "AI> done: draft it", mgr.observed[0])
	assert.Equal(t, "Human> formal", mgr.observed[1])
	assert.Contains(t, mgr.observed[2], "Nothing was routed")
	assert.Equal(t, "Conversation closed.", mgr.observed[3])

	assert.Equal(t, []string{dispatch.ReasonCompleted}, arch.reasons)
	assert.Zero(t, r.Dispatcher.Len(), "finished sessions are forgotten")
}

func TestRunForwardsTextOfFlatCalls(t *testing.T) {
	mgr := &fakeManager{calls: []ai.Call{
		{ID: "1", Name: "talk_to_ai", Arguments: `{"continue":true}`, Text: " list three colors "},
		{ID: "2", Name: "talk_to_ai", Arguments: `{"continue_":false}`, Text: "thanks"},
	}}
	worker := &echoWorker{}
	r, _ := newRunner(mgr, worker, config.DialogueConfig{MaxTurns: 5, MaxViolations: 1})

	res, err := r.Run(context.Background(), &fakeHuman{}, "purpose")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.TurnCount)
	assert.Equal(t, []string{"list three colors"}, worker.tasks, "text of the closing call is not delivered")
	assert.Equal(t, []string{"AI> done: list three colors", "Conversation closed."}, mgr.observed)
}

func TestRunAbandonsAfterRepeatedViolations(t *testing.T) {
	mgr := &fakeManager{calls: []ai.Call{
		talk(`{"payload":{"to":"BOB","message":"x"},"metadata":{"continue":true}}`),
		talk(`{"metadata":{"continue":true},"payload":{"to":"AI","message":"fine"}}`),
		talk(`not json`),
		{ID: "c", Name: "other_tool", Arguments: `{}`},
		talk(`{"continue":"yes"}`),
	}}
	worker := &echoWorker{}
	r, arch := newRunner(mgr, worker, config.DialogueConfig{MaxTurns: 10, MaxViolations: 2})

	res, err := r.Run(context.Background(), &fakeHuman{}, "purpose")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReasonViolation, res.Reason)
	assert.False(t, res.State.Active)
	assert.Equal(t, 1, res.State.TurnCount, "violations never advance the turn count")
	assert.Empty(t, res.Summary)

	require.Len(t, mgr.observed, 4)
	assert.Contains(t, mgr.observed[0], "Error: schema violation")
	assert.Equal(t, "AI> done: fine", mgr.observed[1])
	assert.Contains(t, mgr.observed[3], "tool 'other_tool' not found")
	assert.Len(t, mgr.calls, 1, "the counter resets after an accepted call")
	assert.Equal(t, []string{dispatch.ReasonViolation}, arch.reasons)
}

func TestRunRejectsFunctionsOutsideRegistry(t *testing.T) {
	mgr := &fakeManager{calls: []ai.Call{
		{ID: "a", Name: "talk_to_human", Arguments: `{"metadata":{"continue":true},"payload":{"to":"HUMAN","message":"x"}}`},
		talk(`{"metadata":{"continue":false}}`),
	}}
	r, _ := newRunner(mgr, &echoWorker{}, config.DialogueConfig{MaxTurns: 5, MaxViolations: 3})
	r.Registry = tools.NewToolRegistry()
	r.Registry.RegisterTool(tools.NewLegacyTalkToAITool())

	human := &fakeHuman{}
	res, err := r.Run(context.Background(), human, "purpose")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReasonCompleted, res.Reason)
	assert.Empty(t, human.delivered)
	require.Len(t, mgr.observed, 2)
	assert.Contains(t, mgr.observed[0], "tool 'talk_to_human' not found")
	assert.Equal(t, "Conversation closed.", mgr.observed[1])
}

func TestRunStopsAtTurnLimit(t *testing.T) {
	var calls []ai.Call
	for i := 0; i < 5; i++ {
		calls = append(calls, talk(`{"metadata":{"continue":true},"payload":{"to":"AI","message":"again"}}`))
	}
	mgr := &fakeManager{calls: calls, summary: "report"}
	human := &plainHuman{}
	r, arch := newRunner(mgr, &echoWorker{}, config.DialogueConfig{MaxTurns: 3, Summarize: true})

	res, err := r.Run(context.Background(), human, "purpose")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReasonTurnLimit, res.Reason)
	assert.Equal(t, 3, res.State.TurnCount)
	assert.Len(t, mgr.calls, 2)

	require.Len(t, human.delivered, 1, "the summary falls back to a regular message")
	assert.Equal(t, "report", human.delivered[0].Message)
	assert.Equal(t, dispatch.RecipientHuman, human.delivered[0].To)
	assert.Equal(t, []string{dispatch.ReasonTurnLimit}, arch.reasons)
}

func TestRunManagerError(t *testing.T) {
	boom := errors.New("api down")
	r, arch := newRunner(&fakeManager{err: boom}, &echoWorker{}, config.DialogueConfig{Summarize: true})

	res, err := r.Run(context.Background(), &fakeHuman{}, "purpose")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, dispatch.ReasonFailure, res.Reason)
	assert.False(t, res.State.Active)
	assert.Equal(t, []string{dispatch.ReasonFailure}, arch.reasons)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, arch := newRunner(&fakeManager{}, &echoWorker{}, config.DialogueConfig{})
	res, err := r.Run(ctx, &fakeHuman{}, "purpose")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, dispatch.ReasonShutdown, res.Reason)
	assert.Equal(t, []string{dispatch.ReasonShutdown}, arch.reasons)
}

func TestRunRejectsEmptyPurpose(t *testing.T) {
	r, _ := newRunner(&fakeManager{}, &echoWorker{}, config.DialogueConfig{})
	_, err := r.Run(context.Background(), &fakeHuman{}, "   ")
	assert.Error(t, err)
	assert.Zero(t, r.Dispatcher.Len())
}

// providerFunc adapts a function to ai.Provider.
type providerFunc func(req ai.Request) (*ai.Response, error)

func (f providerFunc) Name() string { return "func" }

func (f providerFunc) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	return f(req)
}

func TestRunWithProductionAgents(t *testing.T) {
	var mu sync.Mutex
	managerTurns := 0
	p := providerFunc(func(req ai.Request) (*ai.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case req.ForceTool == "":
			if req.System == "" {
				return &ai.Response{Content: "worker answer"}, nil
			}
			return &ai.Response{Content: "# Conversation summary"}, nil
		case managerTurns == 0:
			managerTurns++
			return &ai.Response{ToolCalls: []ai.ToolCall{{ID: "1", Name: "talk_to_ai",
				Arguments: `{"metadata":{"continue":true},"payload":{"to":"AI","message":"task"}}`}}}, nil
		default:
			return &ai.Response{ToolCalls: []ai.ToolCall{{ID: "2", Name: "talk_to_ai",
				Arguments: `{"metadata":{"continue":false},"payload":{"to":"HUMAN","message":"result"}}`}}}, nil
		}
	})

	cfg := config.DefaultConfig()
	registry, err := tools.NewTalkRegistry(tools.SchemaNested)
	require.NoError(t, err)
	r := NewRunner(cfg, dispatch.New(), p, registry)

	human := &fakeHuman{}
	res, err := r.Run(context.Background(), human, "purpose")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.TurnCount)
	assert.Equal(t, "# Conversation summary", res.Summary)
	require.Len(t, human.delivered, 1)
	assert.Equal(t, "result", human.delivered[0].Message)
}

func TestConcurrentRunsShareDispatcher(t *testing.T) {
	d := dispatch.New()
	worker := &echoWorker{}
	r := &Runner{
		Dispatcher: d,
		Registry:   talkRegistry(),
		NewManager: func() Manager {
			return &fakeManager{calls: []ai.Call{
				talk(`{"metadata":{"continue":true},"payload":{"to":"AI","message":"t"}}`),
				talk(`{"metadata":{"continue":false}}`),
			}}
		},
		Worker:   worker,
		Dialogue: config.DialogueConfig{MaxTurns: 5},
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), &fakeHuman{}, "purpose")
			if err == nil && res.State.TurnCount != 2 {
				err = errors.New("unexpected turn count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, worker.tasks, 8)
	assert.Zero(t, d.Len())
}

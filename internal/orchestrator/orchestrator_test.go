package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
	"github.com/shopdesk/shopdesk-backend/internal/dispatch"
	"github.com/shopdesk/shopdesk-backend/internal/promptbuilder"
	"github.com/shopdesk/shopdesk-backend/internal/providers"
)

// stubProvider answers every completion with a fixed reply or error.
type stubProvider struct {
	reply string
	err   error
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.CompletionResponse{
		Content:      p.reply,
		Model:        req.Model,
		FinishReason: "stop",
	}, nil
}

func (p *stubProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		for _, delta := range []string{p.reply[:len(p.reply)/2], p.reply[len(p.reply)/2:]} {
			select {
			case out <- providers.StreamChunk{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- providers.StreamChunk{FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// cancelingProvider cancels the caller's context mid-call, simulating a
// client that goes away while the model call is in flight.
type cancelingProvider struct{ cancel context.CancelFunc }

func (p *cancelingProvider) Name() string { return "canceling" }

func (p *cancelingProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.cancel()
	return nil, context.Canceled
}

func (p *cancelingProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	p.cancel()
	return nil, context.Canceled
}

type failingSource struct{ name string }

func (s failingSource) Name() string { return s.name }

func (s failingSource) Read(ctx context.Context, query string) ([]dataadapter.Row, error) {
	return nil, errors.New("connection refused")
}

func testParams() Params {
	return Params{
		SystemPrompt:  "You are a customer service assistant.",
		TokenBudget:   8192,
		Model:         "llama3-70b-8192",
		MaxTokens:     1024,
		BlockWhenBusy: true,
	}
}

func newOrchestrator(t *testing.T, provider providers.Provider, adapter *dataadapter.Adapter, params Params) (*Orchestrator, *contextstore.MemoryStore) {
	t.Helper()

	store := contextstore.NewMemoryStore(contextstore.MemoryOptions{AutoCreate: true})
	t.Cleanup(func() { store.Close() })

	disp := dispatch.NewDispatcher(provider, dispatch.Options{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		CallTimeout: 5 * time.Second,
	})
	assembler := promptbuilder.NewAssembler(nil, 8, nil)

	return New(store, adapter, assembler, disp, params, nil), store
}

func TestProcessTurn_Completed(t *testing.T) {
	provider := &stubProvider{reply: "4"}
	orch, store := newOrchestrator(t, provider, nil, testParams())
	ctx := context.Background()

	result, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "4", result.Reply)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, result.Attempts)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, contextstore.RoleUser, turns[0].Role)
	assert.Equal(t, "What is 2+2?", turns[0].Content)
	assert.Equal(t, contextstore.RoleAssistant, turns[1].Role)
	assert.Equal(t, "4", turns[1].Content)
	assert.False(t, turns[1].ErrorNotice)
}

func TestProcessTurn_EmptyInput(t *testing.T) {
	orch, store := newOrchestrator(t, &stubProvider{reply: "x"}, nil, testParams())
	ctx := context.Background()

	_, err := orch.ProcessTurn(ctx, "s1", "   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestProcessTurn_HistoryAccumulates(t *testing.T) {
	provider := &stubProvider{reply: "hello!"}
	orch, store := newOrchestrator(t, provider, nil, testParams())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := orch.ProcessTurn(ctx, "s1", "hi")
		require.NoError(t, err)
	}

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 6)
}

func TestProcessTurn_DispatchFailureRecordsErrorNotice(t *testing.T) {
	provider := &stubProvider{err: &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}}
	orch, store := newOrchestrator(t, provider, nil, testParams())
	ctx := context.Background()

	result, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, result.Attempts)
	require.Error(t, result.Err)

	var derr *dispatch.DispatchError
	require.ErrorAs(t, result.Err, &derr)
	assert.Equal(t, dispatch.KindAuth, derr.Kind)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, contextstore.RoleUser, turns[0].Role)
	assert.Equal(t, contextstore.RoleAssistant, turns[1].Role)
	assert.True(t, turns[1].ErrorNotice)
	assert.NotEmpty(t, turns[1].Content)
}

func TestProcessTurn_TimeoutExhaustsRetries(t *testing.T) {
	provider := &stubProvider{err: errors.New("request timeout")}
	orch, store := newOrchestrator(t, provider, nil, testParams())
	ctx := context.Background()

	result, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.Err, dispatch.ErrDispatchTimeout)
	assert.Equal(t, 3, provider.calls)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.True(t, turns[1].ErrorNotice)
}

func TestProcessTurn_CancellationLeavesNoTrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The caller gives up while the model call is in flight.
	provider := &cancelingProvider{cancel: cancel}
	orch, store := newOrchestrator(t, provider, nil, testParams())

	_, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.Error(t, err)

	var derr *dispatch.DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dispatch.KindCanceled, derr.Kind)

	turns, err := store.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestProcessTurn_DataLookupAttachesFragments(t *testing.T) {
	provider := &stubProvider{reply: "Your order ORD001 has shipped."}
	adapter := dataadapter.NewAdapter(nil, dataadapter.DemoSources()...)
	orch, store := newOrchestrator(t, provider, adapter, testParams())
	ctx := context.Background()

	result, err := orch.ProcessTurn(ctx, "s1", "Where is my order ORD001?")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, result.Fragments)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Len(t, turns[0].FragmentIDs, 1)
}

func TestProcessTurn_SmallTalkSkipsLookup(t *testing.T) {
	provider := &stubProvider{reply: "Hello!"}
	adapter := dataadapter.NewAdapter(nil, dataadapter.DemoSources()...)
	orch, _ := newOrchestrator(t, provider, adapter, testParams())

	result, err := orch.ProcessTurn(context.Background(), "s1", "Good morning!")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Zero(t, result.Fragments)
}

func TestProcessTurn_SourceFailureDegradesButCompletes(t *testing.T) {
	provider := &stubProvider{reply: "I can't check that right now, but happy to help otherwise."}
	adapter := dataadapter.NewAdapter(nil, failingSource{name: "orders"})
	orch, store := newOrchestrator(t, provider, adapter, testParams())
	ctx := context.Background()

	result, err := orch.ProcessTurn(ctx, "s1", "Where is my order ORD001?")
	require.NoError(t, err)

	// The source failure degrades the turn; the outcome still follows the
	// dispatcher.
	assert.Equal(t, StateCompleted, result.State)
	assert.True(t, result.Degraded)
	assert.Zero(t, result.Fragments)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestProcessTurn_SessionBusyRejected(t *testing.T) {
	params := testParams()
	params.BlockWhenBusy = false
	orch, store := newOrchestrator(t, &stubProvider{reply: "x"}, nil, params)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "s1", false)
	require.NoError(t, err)

	_, err = orch.ProcessTurn(ctx, "s1", "hi")
	assert.ErrorIs(t, err, contextstore.ErrSessionBusy)

	release()

	result, err := orch.ProcessTurn(ctx, "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

func TestProcessTurn_BudgetExceededAppendsNothing(t *testing.T) {
	params := testParams()
	params.TokenBudget = 5
	orch, store := newOrchestrator(t, &stubProvider{reply: "x"}, nil, params)
	ctx := context.Background()

	_, err := orch.ProcessTurn(ctx, "s1", "hi")
	assert.ErrorIs(t, err, promptbuilder.ErrBudgetExceeded)

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestReset(t *testing.T) {
	provider := &stubProvider{reply: "4"}
	orch, store := newOrchestrator(t, provider, nil, testParams())
	ctx := context.Background()

	_, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.NoError(t, err)

	require.NoError(t, orch.Reset(ctx, "s1"))

	turns, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)

	// The session still works after a reset.
	result, err := orch.ProcessTurn(ctx, "s1", "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

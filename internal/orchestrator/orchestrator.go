package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
	"github.com/shopdesk/shopdesk-backend/internal/dispatch"
	"github.com/shopdesk/shopdesk-backend/internal/promptbuilder"
)

// State is a phase of the per-turn state machine.
type State string

const (
	StateReceived    State = "received"
	StateDataLookup  State = "data_lookup"
	StateAssembling  State = "assembling"
	StateDispatching State = "dispatching"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// ErrEmptyInput is returned when a turn carries no text.
var ErrEmptyInput = errors.New("empty input")

// TurnResult is the outcome of one processed user turn.
type TurnResult struct {
	State     State  `json:"state"`
	Reply     string `json:"reply"`
	Degraded  bool   `json:"degraded,omitempty"`
	Fragments int    `json:"fragments"`
	Attempts  int    `json:"attempts,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Err       error  `json:"-"`
}

// Params are the immutable per-process settings for turn processing.
type Params struct {
	SystemPrompt string
	TokenBudget  int
	Model        string
	Temperature  float32
	MaxTokens    int
	// BlockWhenBusy makes a second concurrent turn on a session wait for
	// the first instead of failing with ErrSessionBusy.
	BlockWhenBusy bool
}

// Orchestrator coordinates one user turn end to end: history read, optional
// data lookup, prompt assembly, dispatch and history append.
type Orchestrator struct {
	store     contextstore.Store
	adapter   *dataadapter.Adapter
	assembler *promptbuilder.Assembler
	disp      *dispatch.Dispatcher
	params    Params
	logger    *logrus.Logger
}

// New creates an orchestrator. The adapter may be nil when no structured
// sources are configured.
func New(
	store contextstore.Store,
	adapter *dataadapter.Adapter,
	assembler *promptbuilder.Assembler,
	disp *dispatch.Dispatcher,
	params Params,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		store:     store,
		adapter:   adapter,
		assembler: assembler,
		disp:      disp,
		params:    params,
		logger:    logger,
	}
}

const errorNotice = "Sorry, I couldn't reach the assistant just now. Your message was recorded; please try again."

// ProcessTurn runs the full turn state machine and blocks until the model
// reply is appended (Completed) or the failure is recorded (Failed).
//
// Cancellation before the dispatch finishes leaves the session history
// untouched, as if the turn never happened.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	release, err := o.store.Acquire(ctx, sessionID, o.params.BlockWhenBusy)
	if err != nil {
		return nil, err
	}
	defer release()

	log := o.logger.WithField("session_id", sessionID)

	history, err := o.store.History(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	fragments, degraded := o.lookupData(ctx, input, log)

	req, err := o.assemble(history, fragments, input)
	if err != nil {
		// Oversized system instructions are a configuration error, not a
		// conversation event; nothing is appended.
		return nil, err
	}

	resp, err := o.disp.Send(ctx, *req)
	if err != nil {
		var de *dispatch.DispatchError
		if errors.As(err, &de) && de.Kind == dispatch.KindCanceled {
			// The caller gave up; the turn never happened.
			return nil, err
		}

		log.WithError(err).Warn("dispatch failed, recording error notice")
		if appendErr := o.recordFailedTurn(sessionID, input); appendErr != nil {
			log.WithError(appendErr).Error("failed to record error notice")
		}

		result := &TurnResult{
			State:     StateFailed,
			Reply:     errorNotice,
			Degraded:  degraded,
			Fragments: len(fragments),
			Err:       err,
		}
		if errors.As(err, &de) {
			result.Attempts = de.Attempts
		}
		return result, nil
	}

	if err := o.recordCompletedTurn(sessionID, input, resp.Content, fragments); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"attempts":   resp.Attempts,
		"latency_ms": resp.LatencyMs,
		"fragments":  len(fragments),
		"degraded":   degraded,
	}).Info("turn completed")

	return &TurnResult{
		State:     StateCompleted,
		Reply:     resp.Content,
		Degraded:  degraded,
		Fragments: len(fragments),
		Attempts:  resp.Attempts,
		LatencyMs: resp.LatencyMs,
	}, nil
}

// lookupData runs the trigger predicate and queries the adapter. Source
// failures degrade the turn rather than failing it.
func (o *Orchestrator) lookupData(ctx context.Context, input string, log *logrus.Entry) ([]dataadapter.Fragment, bool) {
	if o.adapter == nil {
		return nil, false
	}

	lookups := dataLookups(input)
	if len(lookups) == 0 {
		return nil, false
	}

	var fragments []dataadapter.Fragment
	degraded := false

	for _, lookup := range lookups {
		var (
			frags []dataadapter.Fragment
			err   error
		)
		if lookup.Source == "" {
			frags, err = o.adapter.NormalizeAll(ctx, lookup.Query)
		} else {
			frags, err = o.adapter.Normalize(ctx, lookup.Source, lookup.Query)
		}
		if err != nil {
			log.WithError(err).WithField("source", lookup.Source).Warn("data lookup degraded")
			degraded = true
			continue
		}
		fragments = append(fragments, frags...)
	}

	return fragments, degraded
}

func (o *Orchestrator) assemble(history []contextstore.Turn, fragments []dataadapter.Fragment, input string) (*promptbuilder.PromptRequest, error) {
	promptHistory := append(append([]contextstore.Turn{}, history...), contextstore.Turn{
		Role:    contextstore.RoleUser,
		Content: input,
	})

	req, err := o.assembler.Assemble(promptHistory, fragments, o.params.SystemPrompt, o.params.TokenBudget)
	if err != nil {
		return nil, err
	}

	req.Model = o.params.Model
	req.Temperature = o.params.Temperature
	req.MaxTokens = o.params.MaxTokens
	return req, nil
}

// recordCompletedTurn appends the user turn and the real assistant reply.
// Appends use a background-derived context so a caller cancellation after
// dispatch success cannot half-write the pair.
func (o *Orchestrator) recordCompletedTurn(sessionID, input, reply string, fragments []dataadapter.Fragment) error {
	ctx := context.Background()

	fragmentIDs := make([]string, len(fragments))
	for i, f := range fragments {
		fragmentIDs[i] = f.ID
	}

	if _, err := o.store.Append(ctx, sessionID, contextstore.Turn{
		Role:        contextstore.RoleUser,
		Content:     input,
		FragmentIDs: fragmentIDs,
	}); err != nil {
		return err
	}

	_, err := o.store.Append(ctx, sessionID, contextstore.Turn{
		Role:    contextstore.RoleAssistant,
		Content: reply,
	})
	return err
}

// recordFailedTurn appends the user turn plus a synthetic assistant error
// notice so the history stays a faithful record of the exchange.
func (o *Orchestrator) recordFailedTurn(sessionID, input string) error {
	ctx := context.Background()

	if _, err := o.store.Append(ctx, sessionID, contextstore.Turn{
		Role:    contextstore.RoleUser,
		Content: input,
	}); err != nil {
		return err
	}

	_, err := o.store.Append(ctx, sessionID, contextstore.Turn{
		Role:        contextstore.RoleAssistant,
		Content:     errorNotice,
		ErrorNotice: true,
	})
	return err
}

// History exposes session history to the API layer.
func (o *Orchestrator) History(ctx context.Context, sessionID string, limit int) ([]contextstore.Turn, error) {
	return o.store.History(ctx, sessionID, limit)
}

// Reset clears a session's history.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	release, err := o.store.Acquire(ctx, sessionID, o.params.BlockWhenBusy)
	if err != nil {
		return err
	}
	defer release()

	return o.store.Reset(ctx, sessionID)
}

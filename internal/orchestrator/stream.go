package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
	"github.com/shopdesk/shopdesk-backend/internal/dispatch"
)

// TurnStream forwards model chunks to the caller and settles the session
// history exactly once when the stream ends. Closing before the final
// chunk counts as cancellation: the lock is released and nothing is
// appended.
type TurnStream struct {
	orch      *Orchestrator
	sessionID string
	input     string
	fragments []dataadapter.Fragment
	degraded  bool

	stream  *dispatch.Stream
	release func()

	mu      sync.Mutex
	settled bool
	result  *TurnResult
}

// ProcessTurnStream is the streaming variant of ProcessTurn. A connect
// failure behaves like a non-streaming dispatch failure: the error notice
// is recorded and the error returned.
func (o *Orchestrator) ProcessTurnStream(ctx context.Context, sessionID, input string) (*TurnStream, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	release, err := o.store.Acquire(ctx, sessionID, o.params.BlockWhenBusy)
	if err != nil {
		return nil, err
	}

	log := o.logger.WithField("session_id", sessionID)

	history, err := o.store.History(ctx, sessionID, 0)
	if err != nil {
		release()
		return nil, err
	}

	fragments, degraded := o.lookupData(ctx, input, log)

	req, err := o.assemble(history, fragments, input)
	if err != nil {
		release()
		return nil, err
	}

	stream, err := o.disp.Stream(ctx, *req)
	if err != nil {
		var de *dispatch.DispatchError
		if errors.As(err, &de) && de.Kind != dispatch.KindCanceled {
			log.WithError(err).Warn("stream dispatch failed, recording error notice")
			if appendErr := o.recordFailedTurn(sessionID, input); appendErr != nil {
				log.WithError(appendErr).Error("failed to record error notice")
			}
		}
		release()
		return nil, err
	}

	return &TurnStream{
		orch:      o,
		sessionID: sessionID,
		input:     input,
		fragments: fragments,
		degraded:  degraded,
		stream:    stream,
		release:   release,
	}, nil
}

// Recv returns the next text delta, io.EOF at the end of a complete reply,
// or the terminal error after a mid-stream failure.
func (ts *TurnStream) Recv() (string, error) {
	delta, err := ts.stream.Recv()
	if err == nil {
		return delta, nil
	}

	if err == io.EOF {
		ts.settle(StateCompleted, nil)
		return "", io.EOF
	}

	ts.settle(StateFailed, err)
	return "", err
}

// Close releases the stream and the session lock. If the turn has not
// settled yet it is treated as cancelled and leaves no trace in history.
func (ts *TurnStream) Close() error {
	ts.mu.Lock()
	settled := ts.settled
	ts.settled = true
	ts.mu.Unlock()

	ts.stream.Close()
	if !settled {
		ts.release()
	}
	return nil
}

// Result is the turn outcome; nil until the stream settles.
func (ts *TurnStream) Result() *TurnResult {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.result
}

// settle appends history exactly once and releases the session lock.
func (ts *TurnStream) settle(state State, err error) {
	ts.mu.Lock()
	if ts.settled {
		ts.mu.Unlock()
		return
	}
	ts.settled = true
	ts.mu.Unlock()

	defer ts.release()

	o := ts.orch
	log := o.logger.WithField("session_id", ts.sessionID)
	content := ts.stream.Content()

	if state == StateCompleted {
		if appendErr := o.recordCompletedTurn(ts.sessionID, ts.input, content, ts.fragments); appendErr != nil {
			log.WithError(appendErr).Error("failed to record streamed turn")
		}
	} else {
		// Keep partial output: the history stays a faithful record of what
		// the user actually saw before the failure.
		notice := errorNotice
		if content != "" {
			notice = content
		}
		if appendErr := ts.recordPartial(notice); appendErr != nil {
			log.WithError(appendErr).Error("failed to record failed streamed turn")
		}
	}

	ts.mu.Lock()
	ts.result = &TurnResult{
		State:     state,
		Reply:     content,
		Degraded:  ts.degraded,
		Fragments: len(ts.fragments),
		Err:       err,
	}
	ts.mu.Unlock()
}

func (ts *TurnStream) recordPartial(assistantContent string) error {
	ctx := context.Background()
	o := ts.orch

	if _, err := o.store.Append(ctx, ts.sessionID, contextstore.Turn{
		Role:    contextstore.RoleUser,
		Content: ts.input,
	}); err != nil {
		return err
	}

	_, err := o.store.Append(ctx, ts.sessionID, contextstore.Turn{
		Role:        contextstore.RoleAssistant,
		Content:     assistantContent,
		ErrorNotice: true,
	})
	return err
}

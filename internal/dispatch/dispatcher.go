package dispatch

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/promptbuilder"
	"github.com/shopdesk/shopdesk-backend/internal/providers"
)

// Status is the completion state of a model response.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusError    Status = "error"
)

// Response is a finished model reply with latency metadata.
type Response struct {
	Content   string          `json:"content"`
	Status    Status          `json:"status"`
	Model     string          `json:"model"`
	Usage     providers.Usage `json:"usage"`
	Attempts  int             `json:"attempts"`
	LatencyMs int64           `json:"latency_ms"`
}

// Options configures retry and timeout behavior.
type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	CallTimeout time.Duration
	Logger      *logrus.Logger
}

// Dispatcher sends assembled prompts to a model provider. Transient
// failures are retried with exponential backoff and jitter; the call
// timeout bounds total latency including retries.
type Dispatcher struct {
	provider    providers.Provider
	maxAttempts int
	baseBackoff time.Duration
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewDispatcher creates a dispatcher for one provider.
func NewDispatcher(provider providers.Provider, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Dispatcher{
		provider:    provider,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// Send dispatches a non-streaming request.
func (d *Dispatcher) Send(ctx context.Context, req promptbuilder.PromptRequest) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	providerReq := toProviderRequest(req, false)

	var lastErr error
	var lastKind ErrKind

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		resp, err := d.provider.Complete(callCtx, providerReq)
		if err == nil {
			return &Response{
				Content:   resp.Content,
				Status:    StatusComplete,
				Model:     resp.Model,
				Usage:     resp.Usage,
				Attempts:  attempt,
				LatencyMs: time.Since(start).Milliseconds(),
			}, nil
		}

		// Caller cancellation and call-timeout expiry end the dispatch
		// regardless of how many attempts remain.
		if ctx.Err() != nil {
			return nil, &DispatchError{Kind: KindCanceled, Attempts: attempt, Err: ctx.Err()}
		}
		if callCtx.Err() != nil {
			return nil, &DispatchError{Kind: KindTimeout, Attempts: attempt, Err: callCtx.Err()}
		}

		lastErr = err
		lastKind = classify(err)

		if !lastKind.Transient() {
			d.logger.WithError(err).WithField("kind", lastKind).Warn("dispatch failed, not retrying")
			return nil, &DispatchError{Kind: lastKind, Attempts: attempt, Err: err}
		}

		d.logger.WithError(err).WithFields(logrus.Fields{
			"kind":    lastKind,
			"attempt": attempt,
		}).Warn("transient dispatch failure")

		if attempt < d.maxAttempts {
			if err := sleep(callCtx, d.backoff(attempt)); err != nil {
				if ctx.Err() != nil {
					return nil, &DispatchError{Kind: KindCanceled, Attempts: attempt, Err: ctx.Err()}
				}
				return nil, &DispatchError{Kind: KindTimeout, Attempts: attempt, Err: callCtx.Err()}
			}
		}
	}

	return nil, &DispatchError{Kind: lastKind, Attempts: d.maxAttempts, Err: lastErr}
}

// Stream dispatches a streaming request. Connect failures are retried like
// Send; once chunks flow, a failure is terminal and the stream reports
// partial output instead of discarding delivered chunks.
func (d *Dispatcher) Stream(ctx context.Context, req promptbuilder.PromptRequest) (*Stream, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)

	providerReq := toProviderRequest(req, true)

	var lastErr error
	var lastKind ErrKind

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		chunks, err := d.provider.StreamComplete(callCtx, providerReq)
		if err == nil {
			return newStream(chunks, cancel), nil
		}

		if ctx.Err() != nil {
			cancel()
			return nil, &DispatchError{Kind: KindCanceled, Attempts: attempt, Err: ctx.Err()}
		}
		if callCtx.Err() != nil {
			cancel()
			return nil, &DispatchError{Kind: KindTimeout, Attempts: attempt, Err: callCtx.Err()}
		}

		lastErr = err
		lastKind = classify(err)

		if !lastKind.Transient() {
			cancel()
			return nil, &DispatchError{Kind: lastKind, Attempts: attempt, Err: err}
		}

		d.logger.WithError(err).WithFields(logrus.Fields{
			"kind":    lastKind,
			"attempt": attempt,
		}).Warn("transient stream connect failure")

		if attempt < d.maxAttempts {
			if err := sleep(callCtx, d.backoff(attempt)); err != nil {
				cancel()
				if ctx.Err() != nil {
					return nil, &DispatchError{Kind: KindCanceled, Attempts: attempt, Err: ctx.Err()}
				}
				return nil, &DispatchError{Kind: KindTimeout, Attempts: attempt, Err: callCtx.Err()}
			}
		}
	}

	cancel()
	return nil, &DispatchError{Kind: lastKind, Attempts: d.maxAttempts, Err: lastErr}
}

// Probe sends a minimal request to verify the provider accepts the model.
// The startup sequence uses it to fall back across configured models.
func (d *Dispatcher) Probe(ctx context.Context, model string) error {
	maxTokens := 1
	req := providers.CompletionRequest{
		Messages:  []providers.Message{{Role: "user", Content: "Hello"}},
		Model:     model,
		MaxTokens: &maxTokens,
	}
	_, err := d.provider.Complete(ctx, req)
	return err
}

// backoff returns the exponential delay for an attempt with +/-25% jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

func sleep(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toProviderRequest(req promptbuilder.PromptRequest, stream bool) providers.CompletionRequest {
	messages := make([]providers.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	out := providers.CompletionRequest{
		Messages: messages,
		Model:    req.Model,
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	temp := req.Temperature
	out.Temperature = &temp

	return out
}

// Provider exposes the wrapped provider, mainly for health reporting.
func (d *Dispatcher) Provider() providers.Provider {
	return d.provider
}

package promptbuilder

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
)

// Message is one role/content pair of the assembled payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptRequest is the bounded payload handed to the dispatcher. It is
// built per call and never persisted.
type PromptRequest struct {
	Messages        []Message `json:"messages"`
	Model           string    `json:"model"`
	Temperature     float32   `json:"temperature"`
	MaxTokens       int       `json:"max_tokens"`
	TokenBudget     int       `json:"token_budget"`
	EstimatedTokens int       `json:"estimated_tokens"`
	DroppedTurns    int       `json:"dropped_turns"`
}

// ErrBudgetExceeded is returned only when the system instructions alone
// overflow the token budget. Anything else is handled by truncation.
var ErrBudgetExceeded = errors.New("system instructions exceed token budget")

// perMessageOverhead approximates the framing cost of one chat message.
const perMessageOverhead = 4

// Assembler builds prompt payloads from history and data fragments.
type Assembler struct {
	estimator   TokenEstimator
	fragmentCap int
	logger      *logrus.Logger
}

// NewAssembler creates an assembler. A nil estimator falls back to the
// character-based one.
func NewAssembler(estimator TokenEstimator, fragmentCap int, logger *logrus.Logger) *Assembler {
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	if fragmentCap <= 0 {
		fragmentCap = 8
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Assembler{
		estimator:   estimator,
		fragmentCap: fragmentCap,
		logger:      logger,
	}
}

// Assemble builds a PromptRequest within budget. System instructions come
// first and are never truncated. Fragments follow, newest first up to the
// fragment cap and the remaining budget. History then fills newest first
// and is re-emitted in chronological order.
func (a *Assembler) Assemble(
	history []contextstore.Turn,
	fragments []dataadapter.Fragment,
	systemInstructions string,
	budget int,
) (*PromptRequest, error) {
	used := a.estimator.Estimate(systemInstructions) + perMessageOverhead
	if used > budget {
		return nil, ErrBudgetExceeded
	}

	messages := []Message{{Role: "system", Content: systemInstructions}}

	// Fragments, newest first. Included fragments share one data message.
	var included []string
	fragBudget := used + perMessageOverhead
	for i := len(fragments) - 1; i >= 0 && len(included) < a.fragmentCap; i-- {
		cost := a.estimator.Estimate(fragments[i].Content) + 1
		if fragBudget+cost > budget {
			break
		}
		fragBudget += cost
		included = append(included, fragments[i].Content)
	}
	if len(included) > 0 {
		used = fragBudget
		// Restore original (oldest-first) fragment order.
		for i, j := 0, len(included)-1; i < j; i, j = i+1, j-1 {
			included[i], included[j] = included[j], included[i]
		}
		messages = append(messages, Message{
			Role:    "system",
			Content: "Relevant data:\n" + strings.Join(included, "\n"),
		})
	}

	// History, newest first until the budget is reached.
	var kept []contextstore.Turn
	for i := len(history) - 1; i >= 0; i-- {
		cost := a.estimator.Estimate(history[i].Content) + perMessageOverhead
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, history[i])
	}

	// Reverse back to chronological order before emission.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	for _, turn := range kept {
		messages = append(messages, Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	req := &PromptRequest{
		Messages:        messages,
		TokenBudget:     budget,
		EstimatedTokens: used,
		DroppedTurns:    len(history) - len(kept),
	}

	if req.DroppedTurns > 0 {
		a.logger.WithFields(logrus.Fields{
			"dropped": req.DroppedTurns,
			"kept":    len(kept),
			"budget":  budget,
		}).Debug("truncated history to fit token budget")
	}

	return req, nil
}

package promptbuilder

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/dataadapter"
)

func turn(role contextstore.Role, content string) contextstore.Turn {
	return contextstore.Turn{Role: role, Content: content, CreatedAt: time.Now()}
}

func fragment(content string) dataadapter.Fragment {
	return dataadapter.Fragment{
		ID:        content,
		Source:    "orders",
		Content:   content,
		FetchedAt: time.Now(),
	}
}

func TestCharEstimator(t *testing.T) {
	est := NewCharEstimator()

	assert.Equal(t, 0, est.Estimate(""))
	assert.Equal(t, 1, est.Estimate("abc"))
	assert.Equal(t, 1, est.Estimate("abcd"))
	assert.Equal(t, 2, est.Estimate("abcde"))
	assert.Equal(t, 25, est.Estimate(strings.Repeat("x", 100)))
}

func TestCharEstimator_Monotonic(t *testing.T) {
	est := NewCharEstimator()

	prev := 0
	s := ""
	for i := 0; i < 64; i++ {
		s += "a"
		cur := est.Estimate(s)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestAssemble_SystemInstructionsFirst(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	history := []contextstore.Turn{
		turn(contextstore.RoleUser, "hello"),
		turn(contextstore.RoleAssistant, "hi there"),
	}

	req, err := a.Assemble(history, nil, "You are a helpful assistant.", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, req.Messages)

	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", req.Messages[0].Content)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Zero(t, req.DroppedTurns)
	assert.LessOrEqual(t, req.EstimatedTokens, req.TokenBudget)
}

func TestAssemble_BudgetExceededOnlyForSystemInstructions(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	// System instructions alone blow the budget.
	_, err := a.Assemble(nil, nil, strings.Repeat("x", 400), 50)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	// An oversized history never does; it gets truncated instead.
	history := []contextstore.Turn{
		turn(contextstore.RoleUser, strings.Repeat("y", 4000)),
	}
	req, err := a.Assemble(history, nil, "short", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, req.DroppedTurns)
}

func TestAssemble_TruncatesOldestFirst(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	var history []contextstore.Turn
	for i := 0; i < 20; i++ {
		history = append(history, turn(contextstore.RoleUser, fmt.Sprintf("message number %02d padded out to cost something", i)))
	}

	req, err := a.Assemble(history, nil, "sys", 200)
	require.NoError(t, err)
	require.Greater(t, req.DroppedTurns, 0)

	kept := req.Messages[1:]
	require.NotEmpty(t, kept)

	// The newest turn always survives and order stays chronological.
	assert.Contains(t, kept[len(kept)-1].Content, "number 19")
	for i := 1; i < len(kept); i++ {
		assert.Less(t, kept[i-1].Content, kept[i].Content)
	}
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	var history []contextstore.Turn
	for i := 0; i < 50; i++ {
		history = append(history, turn(contextstore.RoleUser, strings.Repeat("w", 80)))
	}
	fragments := []dataadapter.Fragment{
		fragment(strings.Repeat("d", 120)),
		fragment(strings.Repeat("e", 120)),
	}

	for _, budget := range []int{40, 100, 300, 1000} {
		req, err := a.Assemble(history, fragments, "sys", budget)
		require.NoError(t, err, "budget %d", budget)
		assert.LessOrEqual(t, req.EstimatedTokens, budget, "budget %d", budget)
	}
}

func TestAssemble_FragmentsShareOneMessage(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	fragments := []dataadapter.Fragment{
		fragment("orders | order_id=ORD001 | status=shipped"),
		fragment("orders | order_id=ORD002 | status=processing"),
	}

	req, err := a.Assemble(nil, fragments, "sys", 1000)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)

	data := req.Messages[1]
	assert.Equal(t, "system", data.Role)
	assert.True(t, strings.HasPrefix(data.Content, "Relevant data:\n"))
	assert.Contains(t, data.Content, "ORD001")
	assert.Contains(t, data.Content, "ORD002")

	// Fragment order inside the message stays oldest first.
	assert.Less(t, strings.Index(data.Content, "ORD001"), strings.Index(data.Content, "ORD002"))
}

func TestAssemble_FragmentCap(t *testing.T) {
	a := NewAssembler(nil, 3, nil)

	var fragments []dataadapter.Fragment
	for i := 0; i < 10; i++ {
		fragments = append(fragments, fragment(fmt.Sprintf("row %02d", i)))
	}

	req, err := a.Assemble(nil, fragments, "sys", 10000)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)

	data := req.Messages[1].Content
	assert.Equal(t, 3, strings.Count(data, "row "))

	// Newest fragments win the cap.
	assert.Contains(t, data, "row 09")
	assert.Contains(t, data, "row 07")
	assert.NotContains(t, data, "row 00")
}

func TestAssemble_DropsFragmentsBeforeSystemInstructions(t *testing.T) {
	a := NewAssembler(nil, 8, nil)

	fragments := []dataadapter.Fragment{
		fragment(strings.Repeat("z", 4000)),
	}

	req, err := a.Assemble(nil, fragments, "sys", 50)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "sys", req.Messages[0].Content)
}

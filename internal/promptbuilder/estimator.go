package promptbuilder

// TokenEstimator reports how many model-context tokens a piece of text
// occupies. Implementations must be monotonic: more text never yields a
// lower estimate.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator is the fallback estimator used when no real tokenizer is
// wired in: one token per CharsPerToken bytes, rounded up.
type CharEstimator struct {
	CharsPerToken int
}

// NewCharEstimator returns the default character-based estimator.
func NewCharEstimator() CharEstimator {
	return CharEstimator{CharsPerToken: 4}
}

func (e CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}
	return (len(text) + per - 1) / per
}

package facematch

import (
	"context"
)

// Identifier runs threshold-aware identification over a candidate source.
type Identifier struct {
	source    CandidateSource
	threshold float64
	topK      int
}

// NewIdentifier creates an identifier. topK is the default ranking size.
func NewIdentifier(source CandidateSource, threshold float64, topK int) *Identifier {
	return &Identifier{source: source, threshold: threshold, topK: topK}
}

// Threshold returns the configured match threshold.
func (id *Identifier) Threshold() float64 {
	return id.threshold
}

// TopK returns the default ranking size.
func (id *Identifier) TopK() int {
	return id.topK
}

// Identify finds the best-matching record for query and applies the
// threshold. An empty query never touches storage.
func (id *Identifier) Identify(ctx context.Context, query []float32) (Decision, error) {
	if len(query) == 0 {
		return Apply(noMatch(), id.threshold), nil
	}
	candidates, err := id.source.Candidates(ctx, query, 1)
	if err != nil {
		return Decision{}, err
	}
	return Apply(Search(query, candidates), id.threshold), nil
}

// Rank returns the k best candidates without applying the threshold.
// k <= 0 uses the default.
func (id *Identifier) Rank(ctx context.Context, query []float32, k int) ([]RankedCandidate, error) {
	if k <= 0 {
		k = id.topK
	}
	if len(query) == 0 {
		return nil, nil
	}
	candidates, err := id.source.Candidates(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return Rank(query, candidates, k), nil
}

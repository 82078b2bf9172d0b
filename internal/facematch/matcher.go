package facematch

import (
	"sort"

	"github.com/kozaktomas/face-engine/internal/database"
)

// Similarity returns the dot product of a and b, which is the cosine
// similarity for unit vectors. It does not renormalize. Vectors of
// different length, or an empty vector, score 0.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Search returns the highest-scoring candidate. On exact ties the first
// candidate in slice order wins. Candidates whose length differs from the
// query are skipped. An empty query or candidate set yields no match.
func Search(query []float32, candidates []database.EnrollmentRecord) MatchResult {
	best := noMatch()
	if len(query) == 0 {
		return best
	}

	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			continue
		}
		score := Similarity(query, c.Embedding)
		if !best.Found || score > best.Score {
			best = MatchResult{Label: c.Label, RecordID: c.ID, Score: score, Found: true}
		}
	}
	return best
}

// Rank returns the k best candidates by descending score. Equal scores keep
// candidate order. k <= 0 returns every scorable candidate.
func Rank(query []float32, candidates []database.EnrollmentRecord, k int) []RankedCandidate {
	if len(query) == 0 {
		return nil
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			continue
		}
		ranked = append(ranked, rankedFrom(c, Similarity(query, c.Embedding)))
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Apply decides whether result passes threshold.
func Apply(result MatchResult, threshold float64) Decision {
	return Decision{
		MatchResult: result,
		Threshold:   threshold,
		Matched:     result.Found && result.Score >= threshold,
	}
}

// Package facematch scores query vectors against enrolled records and
// supplies the candidates to score, shared between CLI and web handlers.
package facematch

import "github.com/kozaktomas/face-engine/internal/database"

// NoMatchScore is the score reported when no candidate could be scored.
const NoMatchScore = -1.0

// MatchResult is the best-scoring candidate of a search.
// When Found is false, Label is empty and Score is NoMatchScore.
type MatchResult struct {
	Label    string  `json:"label,omitempty"`
	RecordID int64   `json:"record_id,omitempty"`
	Score    float64 `json:"score"`
	Found    bool    `json:"found"`
}

// Decision is a MatchResult with a threshold applied.
type Decision struct {
	MatchResult
	Threshold float64 `json:"threshold"`
	Matched   bool    `json:"matched"`
}

// RankedCandidate is one entry of a top-k ranking.
type RankedCandidate struct {
	Label    string  `json:"label"`
	RecordID int64   `json:"record_id"`
	Score    float64 `json:"score"`
}

func noMatch() MatchResult {
	return MatchResult{Score: NoMatchScore}
}

func rankedFrom(rec database.EnrollmentRecord, score float64) RankedCandidate {
	return RankedCandidate{Label: rec.Label, RecordID: rec.ID, Score: score}
}

package facematch

import (
	"math"
	"testing"

	"github.com/kozaktomas/face-engine/internal/database"
)

func rec(id int64, label string, v ...float32) database.EnrollmentRecord {
	return database.EnrollmentRecord{ID: id, Label: label, Embedding: v}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical unit", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{0.6, 0.8}, []float32{-0.6, -0.8}, -1},
		{"no renormalization", []float32{2, 0}, []float32{3, 0}, 6},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty a", nil, []float32{1}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Similarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.1, 0.7, -0.2}
	b := []float32{0.3, -0.4, 0.9}
	if Similarity(a, b) != Similarity(b, a) {
		t.Error("Similarity should be symmetric")
	}
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		query      []float32
		candidates []database.EnrollmentRecord
		want       MatchResult
	}{
		{
			name:       "best of several",
			query:      []float32{1, 0},
			candidates: []database.EnrollmentRecord{rec(1, "a", 0, 1), rec(2, "b", 0.8, 0.6), rec(3, "c", 0.6, 0.8)},
			want:       MatchResult{Label: "b", RecordID: 2, Score: 0.8, Found: true},
		},
		{
			name:       "first seen wins ties",
			query:      []float32{1, 0},
			candidates: []database.EnrollmentRecord{rec(5, "first", 1, 0), rec(6, "second", 1, 0)},
			want:       MatchResult{Label: "first", RecordID: 5, Score: 1, Found: true},
		},
		{
			name:  "tie after a lower first candidate",
			query: []float32{1, 0},
			candidates: []database.EnrollmentRecord{
				rec(10, "low", 0.2, 0.9798),
				rec(11, "second", 0.9, 0.4359),
				rec(12, "third", 0.9, -0.4359),
				rec(13, "last", 0.1, 0.995),
			},
			want: MatchResult{Label: "second", RecordID: 11, Score: 0.9, Found: true},
		},
		{
			name:       "empty candidates",
			query:      []float32{1, 0},
			candidates: nil,
			want:       MatchResult{Score: NoMatchScore},
		},
		{
			name:       "empty query",
			query:      nil,
			candidates: []database.EnrollmentRecord{rec(1, "a", 1, 0)},
			want:       MatchResult{Score: NoMatchScore},
		},
		{
			name:       "all lengths mismatch",
			query:      []float32{1, 0},
			candidates: []database.EnrollmentRecord{rec(1, "a", 1, 0, 0)},
			want:       MatchResult{Score: NoMatchScore},
		},
		{
			name:       "mismatched lengths skipped",
			query:      []float32{1, 0},
			candidates: []database.EnrollmentRecord{rec(1, "long", 1, 0, 0), rec(2, "ok", 0, 1)},
			want:       MatchResult{Label: "ok", RecordID: 2, Score: 0, Found: true},
		},
		{
			name:       "negative scores still match",
			query:      []float32{1, 0},
			candidates: []database.EnrollmentRecord{rec(1, "far", -1, 0), rec(2, "less far", -0.6, 0.8)},
			want:       MatchResult{Label: "less far", RecordID: 2, Score: -0.6, Found: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search(tt.query, tt.candidates)
			if got.Label != tt.want.Label || got.RecordID != tt.want.RecordID || got.Found != tt.want.Found {
				t.Errorf("Search() = %+v, want %+v", got, tt.want)
			}
			if math.Abs(got.Score-tt.want.Score) > 1e-6 {
				t.Errorf("Search() score = %v, want %v", got.Score, tt.want.Score)
			}
		})
	}
}

func TestSearch_DoesNotMutateInputs(t *testing.T) {
	query := []float32{0.6, 0.8}
	candidates := []database.EnrollmentRecord{rec(1, "a", 0.8, 0.6)}

	Search(query, candidates)

	if query[0] != 0.6 || candidates[0].Embedding[0] != 0.8 {
		t.Error("Search mutated its inputs")
	}
}

func TestRank(t *testing.T) {
	candidates := []database.EnrollmentRecord{
		rec(1, "low", 0, 1),
		rec(2, "tie-a", 0.6, 0.8),
		rec(3, "high", 1, 0),
		rec(4, "tie-b", 0.6, 0.8),
		rec(5, "skip", 1, 0, 0),
	}
	query := []float32{1, 0}

	got := Rank(query, candidates, 3)
	wantIDs := []int64{3, 2, 4}
	if len(got) != len(wantIDs) {
		t.Fatalf("Rank() returned %d entries, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].RecordID != id {
			t.Errorf("Rank()[%d] = %+v, want record %d", i, got[i], id)
		}
	}

	all := Rank(query, candidates, 0)
	if len(all) != 4 {
		t.Errorf("Rank(k=0) returned %d entries, want 4", len(all))
	}

	if Rank(nil, candidates, 3) != nil {
		t.Error("Rank with empty query should return nil")
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		result    MatchResult
		threshold float64
		matched   bool
	}{
		{"above", MatchResult{Label: "a", Score: 0.9, Found: true}, 0.5, true},
		{"equal", MatchResult{Label: "a", Score: 0.5, Found: true}, 0.5, true},
		{"below", MatchResult{Label: "a", Score: 0.49, Found: true}, 0.5, false},
		{"not found", MatchResult{Score: NoMatchScore}, -2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Apply(tt.result, tt.threshold)
			if d.Matched != tt.matched {
				t.Errorf("Apply() matched = %v, want %v", d.Matched, tt.matched)
			}
			if d.Threshold != tt.threshold || d.Label != tt.result.Label {
				t.Errorf("Apply() = %+v", d)
			}
		})
	}
}

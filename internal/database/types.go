package database

import (
	"time"
)

// EnrollmentRecord is one enrolled feature vector. Several records may share
// a label (multi-sample enrollment). Records are never updated in place.
type EnrollmentRecord struct {
	ID        int64
	Label     string
	Embedding []float32
	CreatedAt time.Time
}

// StoreMeta describes the vectors a store accepts. It is written by the first
// schema initialization and verified on every later one.
type StoreMeta struct {
	Dim     int    `json:"dim"`
	Encoder string `json:"encoder"`
}

// LabelCount is a distinct label with the number of records enrolled under it.
type LabelCount struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// StoreInfo summarizes the store contents.
type StoreInfo struct {
	Backend string    `json:"backend"`
	Count   int       `json:"count"`
	MaxID   int64     `json:"max_id"`
	Labels  int       `json:"labels"`
	Meta    StoreMeta `json:"meta"`
}

// Verification is one audited verification decision. Challenge is set for
// two-frame liveness verifications.
type Verification struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Matched   bool      `json:"matched"`
	Challenge string    `json:"challenge,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

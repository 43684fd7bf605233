package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/yansimam/backend/internal/scoring"
)

// Verdict is the optional binary decision that accompanies the five scores.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Valid reports whether v is empty (no verdict) or one of the two known values.
func (v Verdict) Valid() bool {
	return v == "" || v == VerdictApprove || v == VerdictReject
}

// Vote is one anonymous rating event. Only hashes of the voter's identity are kept.
type Vote struct {
	ID                   uuid.UUID `json:"id"`
	VotingSessionID      uuid.UUID `json:"voting_session_id"`
	VoterIPHash          string    `json:"-"`
	VoterFingerprintHash string    `json:"-"`
	scoring.Scores
	AverageScore float64   `json:"average_score"`
	Verdict      Verdict   `json:"verdict,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

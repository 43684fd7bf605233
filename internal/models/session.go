package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionTTL is the fixed voting window measured from session creation.
const SessionTTL = 72 * time.Hour

// QualifyingApproval is the approval rate (percent) a finished session needs to qualify.
const QualifyingApproval = 50.01

// SessionStatus is the stored lifecycle flag of a voting session. It is advisory:
// ExpiresAt decides whether a session is still votable.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// VotingSession is one subject open for evaluation.
type VotingSession struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"user_id"`
	ShareToken string        `json:"share_token"`
	PhotoURL   *string       `json:"photo_url,omitempty"`
	FullName   string        `json:"full_name"`
	Status     SessionStatus `json:"status"`
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// OwnerPhotoURL is the owner's profile photo, joined in on token lookups.
	OwnerPhotoURL *string `json:"-"`

	Results SessionResults `json:"results"`
}

// ExpiresAtFor returns the expiry of a session created at createdAt.
func ExpiresAtFor(createdAt time.Time) time.Time {
	return createdAt.Add(SessionTTL)
}

// VotableAt reports whether the session accepts votes at now.
func (s *VotingSession) VotableAt(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// DisplayPhoto returns the session photo, falling back to the owner's profile photo.
func (s *VotingSession) DisplayPhoto() string {
	if s.PhotoURL != nil && *s.PhotoURL != "" {
		return *s.PhotoURL
	}
	if s.OwnerPhotoURL != nil {
		return *s.OwnerPhotoURL
	}
	return ""
}

// SessionResults are the aggregates maintained by the aggregation worker.
type SessionResults struct {
	TotalVotes      int     `json:"total_votes"`
	ApprovalRate    float64 `json:"approval_rate"`
	AverageScore    float64 `json:"average_score"`
	ScoreCourage    float64 `json:"score_courage"`
	ScoreHonesty    float64 `json:"score_honesty"`
	ScoreLoyalty    float64 `json:"score_loyalty"`
	ScoreWorkEthic  float64 `json:"score_work_ethic"`
	ScoreDiscipline float64 `json:"score_discipline"`
}

// Qualifies reports whether the approval rate reaches QualifyingApproval.
func (r SessionResults) Qualifies() bool {
	return r.TotalVotes > 0 && r.ApprovalRate >= QualifyingApproval
}

// ResolvedSession is what a voter sees after a successful token lookup.
type ResolvedSession struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	PhotoURL  string    `json:"photo_url"`
	FullName  string    `json:"full_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yansimam/backend/internal/models"
)

// ErrDuplicate is returned by Insert when the device already voted in the session.
var ErrDuplicate = errors.New("vote already recorded for this device")

// uniqueVoteConstraint guards one vote per (session, fingerprint hash).
const uniqueVoteConstraint = "votes_session_fingerprint_key"

// Repository handles vote persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a votes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Exists reports whether a vote from deviceHash is already stored for the session.
func (r *Repository) Exists(ctx context.Context, sessionID uuid.UUID, deviceHash string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM votes WHERE voting_session_id = $1 AND voter_fingerprint_hash = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, sessionID, deviceHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return exists, nil
}

// Insert stores v and fills in its ID and CreatedAt. A second vote from the same device
// returns ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, v *models.Vote) error {
	const q = `INSERT INTO votes (voting_session_id, voter_ip_hash, voter_fingerprint_hash,
		score_courage, score_honesty, score_loyalty, score_work_ethic, score_discipline,
		average_score, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, v.VotingSessionID, v.VoterIPHash, v.VoterFingerprintHash,
		v.Courage, v.Honesty, v.Loyalty, v.WorkEthic, v.Discipline,
		v.AverageScore, string(v.Verdict)).Scan(&v.ID, &v.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == uniqueVoteConstraint
}

// Tally is the raw aggregate of a session's votes.
type Tally struct {
	TotalVotes      int
	Approvals       int
	Decided         int
	AverageScore    float64
	ScoreCourage    float64
	ScoreHonesty    float64
	ScoreLoyalty    float64
	ScoreWorkEthic  float64
	ScoreDiscipline float64
}

// Aggregate tallies the stored votes of a session. The overall average is the mean of the
// stored per-vote averages.
func (r *Repository) Aggregate(ctx context.Context, sessionID uuid.UUID) (Tally, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE verdict = 'approve'),
		COUNT(verdict),
		COALESCE(ROUND(AVG(average_score), 2), 0),
		COALESCE(ROUND(AVG(score_courage), 2), 0),
		COALESCE(ROUND(AVG(score_honesty), 2), 0),
		COALESCE(ROUND(AVG(score_loyalty), 2), 0),
		COALESCE(ROUND(AVG(score_work_ethic), 2), 0),
		COALESCE(ROUND(AVG(score_discipline), 2), 0)
		FROM votes WHERE voting_session_id = $1`
	var t Tally
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&t.TotalVotes, &t.Approvals, &t.Decided,
		&t.AverageScore, &t.ScoreCourage, &t.ScoreHonesty, &t.ScoreLoyalty, &t.ScoreWorkEthic, &t.ScoreDiscipline)
	if err != nil {
		return Tally{}, fmt.Errorf("aggregate votes: %w", err)
	}
	return t, nil
}

package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yansimam/backend/internal/models"
)

// ErrTokenTaken is returned by Create when the share token already exists.
var ErrTokenTaken = errors.New("share token already in use")

const sessionColumns = `s.id, s.user_id, s.share_token, s.photo_url, s.full_name, s.status, s.expires_at,
	s.created_at, s.updated_at, u.profile_photo_url,
	s.total_votes, s.approval_rate, s.average_score, s.score_courage, s.score_honesty,
	s.score_loyalty, s.score_work_ethic, s.score_discipline`

// Repository handles voting session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.VotingSession, error) {
	var s models.VotingSession
	res := &s.Results
	err := row.Scan(&s.ID, &s.UserID, &s.ShareToken, &s.PhotoURL, &s.FullName, &s.Status, &s.ExpiresAt,
		&s.CreatedAt, &s.UpdatedAt, &s.OwnerPhotoURL,
		&res.TotalVotes, &res.ApprovalRate, &res.AverageScore, &res.ScoreCourage, &res.ScoreHonesty,
		&res.ScoreLoyalty, &res.ScoreWorkEthic, &res.ScoreDiscipline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByToken returns the session for a share token joined with its owner's profile photo.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.VotingSession, error) {
	const q = `SELECT ` + sessionColumns + `
		FROM voting_sessions s JOIN users u ON u.id = s.user_id
		WHERE s.share_token = $1`
	return scanSession(r.pool.QueryRow(ctx, q, token))
}

// GetByID returns a session by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.VotingSession, error) {
	const q = `SELECT ` + sessionColumns + `
		FROM voting_sessions s JOIN users u ON u.id = s.user_id
		WHERE s.id = $1`
	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// ListByUser returns the user's sessions, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.VotingSession, error) {
	const q = `SELECT ` + sessionColumns + `
		FROM voting_sessions s JOIN users u ON u.id = s.user_id
		WHERE s.user_id = $1 ORDER BY s.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.VotingSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// CreateParams holds the fields of a new session.
type CreateParams struct {
	UserID    uuid.UUID
	Token     string
	PhotoURL  *string
	FullName  string
	CreatedAt time.Time
}

// Create inserts an active session expiring SessionTTL after CreatedAt.
// A share token collision returns ErrTokenTaken.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.VotingSession, error) {
	const q = `INSERT INTO voting_sessions (user_id, share_token, photo_url, full_name, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $6, $6)
		RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, p.UserID, p.Token, p.PhotoURL, p.FullName, models.ExpiresAtFor(p.CreatedAt), p.CreatedAt).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrTokenTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return r.GetByID(ctx, id)
}

// UpdateResults stores recomputed aggregates.
func (r *Repository) UpdateResults(ctx context.Context, id uuid.UUID, res models.SessionResults) error {
	const q = `UPDATE voting_sessions SET total_votes = $2, approval_rate = $3, average_score = $4,
		score_courage = $5, score_honesty = $6, score_loyalty = $7, score_work_ethic = $8, score_discipline = $9,
		updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, res.TotalVotes, res.ApprovalRate, res.AverageScore,
		res.ScoreCourage, res.ScoreHonesty, res.ScoreLoyalty, res.ScoreWorkEthic, res.ScoreDiscipline)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClosedSession is a session moved out of active by ExpireDue.
type ClosedSession struct {
	ID     uuid.UUID
	Token  string
	Status models.SessionStatus
}

// ExpireDue closes active sessions whose expiry has passed: completed when they received
// at least one vote, expired otherwise.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]ClosedSession, error) {
	const q = `UPDATE voting_sessions s
		SET status = CASE WHEN EXISTS (SELECT 1 FROM votes v WHERE v.voting_session_id = s.id)
			THEN 'completed' ELSE 'expired' END,
			updated_at = NOW()
		WHERE s.status = 'active' AND s.expires_at <= $1
		RETURNING s.id, s.share_token, s.status`
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var closed []ClosedSession
	for rows.Next() {
		var c ClosedSession
		if err := rows.Scan(&c.ID, &c.Token, &c.Status); err != nil {
			return nil, err
		}
		closed = append(closed, c)
	}
	return closed, rows.Err()
}

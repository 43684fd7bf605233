// Package voting runs the anonymous one-vote-per-device submission workflow:
// validate scores, resolve the session, check for a prior vote, insert, and
// trigger aggregation.
package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/scoring"
	"github.com/yansimam/backend/internal/sessions"
	"github.com/yansimam/backend/internal/votes"
	"github.com/yansimam/backend/pkg/metrics"
	"github.com/yansimam/backend/pkg/monitoring"
	rlock "github.com/yansimam/backend/pkg/redis"
)

// SessionResolver resolves share tokens. *sessions.Lookup implements it.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.ResolvedSession, error)
}

// VoteStore reads and writes votes. Insert returns votes.ErrDuplicate when the
// (session, device hash) pair already has a vote.
type VoteStore interface {
	Exists(ctx context.Context, sessionID uuid.UUID, deviceHash string) (bool, error)
	Insert(ctx context.Context, v *models.Vote) error
}

// Guard hands out single-attempt named locks. TryLock returns rlock.ErrLocked when
// the name is already held. *rlock.Locker implements it.
type Guard interface {
	TryLock(ctx context.Context, name string) (release func(), err error)
}

// Aggregator schedules a results recomputation for a session.
type Aggregator interface {
	EnqueueAggregate(ctx context.Context, sessionID uuid.UUID) error
}

// Ballot is what a voter sees when opening a session.
type Ballot struct {
	Session      *models.ResolvedSession
	AlreadyVoted bool
}

// SubmitRequest is one vote attempt. Scores are keyed by dimension key.
type SubmitRequest struct {
	Token    string
	Scores   map[string]float64
	Verdict  models.Verdict
	Identity identity.Identity
}

// Service implements session opening and vote submission.
type Service struct {
	sessions   SessionResolver
	votes      VoteStore
	guard      Guard
	aggregator Aggregator
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService creates a voting service. guard, aggregator, and m may be nil.
func NewService(resolver SessionResolver, store VoteStore, guard Guard, aggregator Aggregator, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:   resolver,
		votes:      store,
		guard:      guard,
		aggregator: aggregator,
		metrics:    m,
		logger:     logger,
	}
}

// Open resolves the session and checks whether the device already voted in it.
func (s *Service) Open(ctx context.Context, token string, id identity.Identity) (*Ballot, error) {
	rs, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	voted, err := s.votes.Exists(ctx, rs.ID, id.DeviceHash)
	if err != nil {
		return nil, s.storageError("check prior vote", err, rs.ID)
	}
	return &Ballot{Session: rs, AlreadyVoted: voted}, nil
}

// Validate checks scores and verdict without touching any store.
func Validate(scores map[string]float64, verdict models.Verdict) (scoring.Scores, error) {
	sc, err := scoring.FromMap(scores)
	if err != nil {
		return scoring.Scores{}, fmt.Errorf("%w: %w", ErrInputInvalid, err)
	}
	if !verdict.Valid() {
		return scoring.Scores{}, fmt.Errorf("%w: verdict must be approve or reject", ErrInputInvalid)
	}
	return sc, nil
}

// Submit records one vote. Errors classify with Code.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Vote, error) {
	v, err := s.submit(ctx, req)
	s.metrics.Submission(Code(err))
	return v, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*models.Vote, error) {
	scores, err := Validate(req.Scores, req.Verdict)
	if err != nil {
		return nil, err
	}
	if req.Identity.DeviceHash == "" || req.Identity.NetworkHash == "" {
		return nil, fmt.Errorf("%w: missing voter identity", ErrInputInvalid)
	}

	rs, err := s.resolve(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if s.guard != nil {
		release, err := s.guard.TryLock(ctx, "vote:"+rs.ID.String()+":"+req.Identity.DeviceHash)
		switch {
		case errors.Is(err, rlock.ErrLocked):
			return nil, ErrSubmitInProgress
		case err != nil:
			// The unique index still enforces one vote per device.
			s.logger.Warn("submit guard unavailable", zap.Error(err))
		default:
			defer release()
		}
	}

	voted, err := s.votes.Exists(ctx, rs.ID, req.Identity.DeviceHash)
	if err != nil {
		return nil, s.storageError("check prior vote", err, rs.ID)
	}
	if voted {
		return nil, ErrAlreadyVoted
	}

	vote := &models.Vote{
		VotingSessionID:      rs.ID,
		VoterIPHash:          req.Identity.NetworkHash,
		VoterFingerprintHash: req.Identity.DeviceHash,
		Scores:               scores,
		AverageScore:         scoring.Average(scores).InexactFloat64(),
		Verdict:              req.Verdict,
	}
	if err := s.votes.Insert(ctx, vote); err != nil {
		if errors.Is(err, votes.ErrDuplicate) {
			return nil, ErrAlreadyVoted
		}
		return nil, s.storageError("insert vote", err, rs.ID)
	}

	s.logger.Info("vote recorded",
		zap.String("session_id", rs.ID.String()),
		zap.String("vote_id", vote.ID.String()),
		zap.String("identity_kind", string(req.Identity.Kind)),
	)
	if s.aggregator != nil {
		if err := s.aggregator.EnqueueAggregate(context.WithoutCancel(ctx), rs.ID); err != nil {
			s.logger.Warn("enqueue aggregate failed", zap.String("session_id", rs.ID.String()), zap.Error(err))
		}
	}
	return vote, nil
}

func (s *Service) resolve(ctx context.Context, token string) (*models.ResolvedSession, error) {
	rs, err := s.sessions.Resolve(ctx, token)
	if err == nil {
		return rs, nil
	}
	if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrExpired) || errors.Is(err, sessions.ErrMissingPhoto) {
		return nil, err
	}
	return nil, s.storageError("resolve session", err, uuid.Nil)
}

func (s *Service) storageError(op string, err error, sessionID uuid.UUID) error {
	s.logger.Error(op+" failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	monitoring.Capture(err, map[string]string{"op": op})
	return &StorageError{Err: err}
}

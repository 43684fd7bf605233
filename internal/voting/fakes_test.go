package voting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/sessions"
	"github.com/yansimam/backend/internal/votes"
	rlock "github.com/yansimam/backend/pkg/redis"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type sessionStore struct {
	mu    sync.Mutex
	byTok map[string]*models.VotingSession
	calls int
	err   error
}

func (s *sessionStore) GetByToken(_ context.Context, token string) (*models.VotingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vs, ok := s.byTok[token]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	cp := *vs
	return &cp, nil
}

func (s *sessionStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// voteStore enforces one vote per (session, device hash) the way the unique index does.
type voteStore struct {
	mu          sync.Mutex
	rows        map[string]*models.Vote
	existsCalls int
	insertCalls int
	insertErr   error
	existsErr   error
	// beforeInsert, when set, runs before the uniqueness check of Insert without the lock held.
	beforeInsert func()
}

func newVoteStore() *voteStore { return &voteStore{rows: map[string]*models.Vote{}} }

func voteKey(sessionID uuid.UUID, deviceHash string) string { return sessionID.String() + "/" + deviceHash }

func (s *voteStore) Exists(_ context.Context, sessionID uuid.UUID, deviceHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsCalls++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.rows[voteKey(sessionID, deviceHash)]
	return ok, nil
}

func (s *voteStore) Insert(_ context.Context, v *models.Vote) error {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.insertErr != nil {
		return s.insertErr
	}
	k := voteKey(v.VotingSessionID, v.VoterFingerprintHash)
	if _, ok := s.rows[k]; ok {
		return votes.ErrDuplicate
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	cp := *v
	s.rows[k] = &cp
	return nil
}

func (s *voteStore) Rows() []models.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Vote, 0, len(s.rows))
	for _, v := range s.rows {
		out = append(out, *v)
	}
	return out
}

func (s *voteStore) Calls() (exists, insert int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsCalls, s.insertCalls
}

type memGuard struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newMemGuard() *memGuard { return &memGuard{held: map[string]bool{}} }

func (g *memGuard) TryLock(_ context.Context, name string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.held[name] {
		return nil, rlock.ErrLocked
	}
	g.held[name] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, name)
	}, nil
}

type recordingAggregator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (a *recordingAggregator) EnqueueAggregate(_ context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return a.err
}

func (a *recordingAggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

var (
	t0          = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	testSalt    = "test-salt"
	testDeriver = identity.NewDeriver(identity.NewHasher(testSalt), nil)
	errBoom     = errors.New("connection reset by peer")
)

type fixture struct {
	clock    *clock
	sessions *sessionStore
	votes    *voteStore
	guard    *memGuard
	agg      *recordingAggregator
	svc      *Service
	session  *models.VotingSession
}

func newFixture() *fixture {
	photo := "https://cdn.example/p.jpg"
	s := &models.VotingSession{
		ID:         uuid.New(),
		ShareToken: "ab12cd34",
		PhotoURL:   &photo,
		FullName:   "Deniz",
		Status:     models.SessionActive,
		CreatedAt:  t0,
		ExpiresAt:  models.ExpiresAtFor(t0),
	}
	f := &fixture{
		clock:    &clock{now: t0},
		sessions: &sessionStore{byTok: map[string]*models.VotingSession{s.ShareToken: s}},
		votes:    newVoteStore(),
		guard:    newMemGuard(),
		agg:      &recordingAggregator{},
		session:  s,
	}
	lookup := sessions.NewLookup(f.sessions, f.clock.Now, nil)
	f.svc = NewService(lookup, f.votes, f.guard, f.agg, nil, nil)
	return f
}

func device(raw string) identity.Identity {
	return testDeriver.Derive(context.Background(), identity.StaticSource(raw), "203.0.113.7")
}

func scoresOf(c, h, l, w, d float64) map[string]float64 {
	return map[string]float64{
		"score_courage":    c,
		"score_honesty":    h,
		"score_loyalty":    l,
		"score_work_ethic": w,
		"score_discipline": d,
	}
}

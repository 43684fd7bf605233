package voting

import (
	"context"
	"errors"
	"sync"

	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/models"
)

// State is the lifecycle of one voting page instance.
type State string

const (
	StateLoading      State = "LOADING"
	StateReady        State = "READY"
	StateSubmitting   State = "SUBMITTING"
	StateSuccess      State = "SUCCESS"
	StateAlreadyVoted State = "ALREADY_VOTED"
	StateFailed       State = "FAILED"
	// StateUnavailable is terminal: the session could not be resolved (NOT_FOUND, EXPIRED, MISSING_PHOTO).
	StateUnavailable State = "UNAVAILABLE"
)

// Page drives one page instance through
// LOADING -> READY -> SUBMITTING -> {SUCCESS, ALREADY_VOTED, FAILED}.
// It owns the re-entrancy guard: a second Submit while one is in flight is rejected.
// FAILED keeps the submit action enabled.
type Page struct {
	svc   *Service
	token string
	id    identity.Identity

	mu     sync.Mutex
	state  State
	err    error
	ballot *Ballot
	vote   *models.Vote
}

// NewPage creates a page in LOADING for token, voting as id.
func NewPage(svc *Service, token string, id identity.Identity) *Page {
	return &Page{svc: svc, token: token, id: id, state: StateLoading}
}

// Load resolves the session and runs the prior-vote check. The page becomes READY only
// when both succeed and no prior vote exists.
func (p *Page) Load(ctx context.Context) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateLoading {
		return p.state
	}
	b, err := p.svc.Open(ctx, p.token, p.id)
	switch {
	case err == nil && b.AlreadyVoted:
		p.ballot, p.state = b, StateAlreadyVoted
	case err == nil:
		p.ballot, p.state = b, StateReady
	case isLookupFailure(err):
		p.err, p.state = err, StateUnavailable
	default:
		p.err, p.state = err, StateFailed
	}
	return p.state
}

// Submit validates locally, then sends the vote. INPUT_INVALID leaves the state unchanged.
func (p *Page) Submit(ctx context.Context, scores map[string]float64, verdict models.Verdict) (*models.Vote, error) {
	p.mu.Lock()
	switch {
	case p.state == StateSubmitting:
		p.mu.Unlock()
		return nil, ErrSubmitInProgress
	case p.state != StateReady && !(p.state == StateFailed && p.ballot != nil):
		p.mu.Unlock()
		return nil, ErrNotReady
	}
	if _, err := Validate(scores, verdict); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	prev := p.state
	p.state = StateSubmitting
	p.err = nil
	p.mu.Unlock()

	v, err := p.svc.Submit(ctx, SubmitRequest{Token: p.token, Scores: scores, Verdict: verdict, Identity: p.id})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	switch {
	case err == nil:
		p.vote, p.state = v, StateSuccess
	case errors.Is(err, ErrAlreadyVoted):
		p.state = StateAlreadyVoted
	case isLookupFailure(err):
		p.state = StateUnavailable
	case errors.Is(err, ErrSubmitInProgress), errors.Is(err, ErrInputInvalid):
		p.state = prev
	default:
		p.state = StateFailed
	}
	return v, err
}

// State returns the current state.
func (p *Page) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error behind the current state, if any.
func (p *Page) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Ballot returns the resolved session once loaded.
func (p *Page) Ballot() *Ballot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ballot
}

// Vote returns the stored vote after SUCCESS.
func (p *Page) Vote() *models.Vote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vote
}

// CanSubmit reports whether the submit action is enabled.
func (p *Page) CanSubmit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateReady || (p.state == StateFailed && p.ballot != nil)
}

func isLookupFailure(err error) bool {
	switch Code(err) {
	case CodeNotFound, CodeExpired, CodeMissingPhoto:
		return true
	}
	return false
}

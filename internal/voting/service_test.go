package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/scoring"
	"github.com/yansimam/backend/internal/sessions"
)

func TestSubmit_StoresAverageAndHashesOnly(t *testing.T) {
	f := newFixture()
	id := device("visitor-123")

	v, err := f.svc.Submit(context.Background(), SubmitRequest{
		Token: "ab12cd34", Scores: scoresOf(7, 8, 6, 9, 7), Verdict: models.VerdictApprove, Identity: id,
	})
	require.NoError(t, err)
	assert.Equal(t, 7.4, v.AverageScore)
	assert.Equal(t, f.session.ID, v.VotingSessionID)

	rows := f.votes.Rows()
	require.Len(t, rows, 1)
	assert.NotEqual(t, "visitor-123", rows[0].VoterFingerprintHash)
	assert.NotEqual(t, "203.0.113.7", rows[0].VoterIPHash)
	assert.Equal(t, identity.NewHasher(testSalt).Hash("visitor-123"), rows[0].VoterFingerprintHash)
	assert.Equal(t, identity.NewHasher(testSalt).Hash("203.0.113.7"), rows[0].VoterIPHash)
	assert.Equal(t, 1, f.agg.Count())
}

func TestSubmit_AverageIsMeanOfScores(t *testing.T) {
	tuples := [][5]float64{
		{1, 1, 1, 1, 1},
		{10, 10, 10, 10, 10},
		{1, 10, 5.5, 2.5, 7},
		{3, 4, 5, 4, 3},
		{9.5, 8.5, 7.5, 6.5, 5.5},
	}
	for _, tt := range tuples {
		f := newFixture()
		v, err := f.svc.Submit(context.Background(), SubmitRequest{
			Token: "ab12cd34", Scores: scoresOf(tt[0], tt[1], tt[2], tt[3], tt[4]), Identity: device("d"),
		})
		require.NoError(t, err)
		mean := (tt[0] + tt[1] + tt[2] + tt[3] + tt[4]) / 5
		assert.InDelta(t, mean, v.AverageScore, 0.005, "%v", tt)
	}
}

func TestSubmit_InvalidInputTouchesNoStore(t *testing.T) {
	cases := map[string]SubmitRequest{
		"below range": {Scores: scoresOf(0, 5, 5, 5, 5)},
		"above range": {Scores: scoresOf(5, 5, 10.5, 5, 5)},
		"off step":    {Scores: scoresOf(5, 5, 5, 5.25, 5)},
		"missing key": {Scores: map[string]float64{"score_courage": 5}},
		"unknown key": {Scores: withExtraKey(scoresOf(5, 5, 5, 5, 5), "score_charm")},
		"nil scores":  {},
		"bad verdict": {Scores: scoresOf(5, 5, 5, 5, 5), Verdict: "maybe"},
		"no identity": {Scores: scoresOf(5, 5, 5, 5, 5)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			req.Token = "ab12cd34"
			if name != "no identity" {
				req.Identity = device("d")
			}
			_, err := f.svc.Submit(context.Background(), req)
			require.ErrorIs(t, err, ErrInputInvalid)
			assert.Equal(t, CodeInputInvalid, Code(err))

			exists, inserts := f.votes.Calls()
			assert.Zero(t, exists)
			assert.Zero(t, inserts)
			assert.Zero(t, f.sessions.Calls())
		})
	}
}

func withExtraKey(m map[string]float64, key string) map[string]float64 {
	m[key] = 5
	return m
}

func TestSubmit_ValidationErrorIsExposed(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 11, 5, 5), Identity: device("d")})
	var ve *scoring.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, scoring.KeyLoyalty, ve.Field)
}

func TestSubmit_SecondAttemptIsAlreadyVoted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")}

	_, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	req.Scores = scoresOf(9, 9, 9, 9, 9)
	_, err = f.svc.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Len(t, f.votes.Rows(), 1)
	_, inserts := f.votes.Calls()
	assert.Equal(t, 1, inserts)
}

func TestSubmit_ConstraintViolationIsAlreadyVoted(t *testing.T) {
	f := newFixture()
	id := device("d")
	_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: id})
	require.NoError(t, err)

	// The existence check misses; the insert conflict still decides.
	racing := &racyStore{voteStore: f.votes}
	svc := NewService(sessions.NewLookup(f.sessions, f.clock.Now, nil), racing, nil, nil, nil, nil)
	_, err = svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(6, 6, 6, 6, 6), Identity: id})
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Len(t, f.votes.Rows(), 1)
}

type racyStore struct{ *voteStore }

func (racyStore) Exists(context.Context, uuid.UUID, string) (bool, error) { return false, nil }

func TestSubmit_BackToBackSameDeviceInsertsOnce(t *testing.T) {
	const n = 8
	run := func(t *testing.T, f *fixture, svc *Service) {
		id := device("same-device")
		codes := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: id})
				codes[i] = Code(err)
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, c := range codes {
			switch c {
			case CodeSuccess:
				successes++
			case CodeAlreadyVoted, CodeSubmitInProgress:
			default:
				t.Fatalf("unexpected outcome %s", c)
			}
		}
		assert.Equal(t, 1, successes, "codes=%v", codes)
		assert.Len(t, f.votes.Rows(), 1)
	}

	t.Run("store constraint only", func(t *testing.T) {
		f := newFixture()
		// Every submission passes the existence check before any insert runs.
		var arrived sync.WaitGroup
		arrived.Add(n)
		release := make(chan struct{})
		go func() { arrived.Wait(); close(release) }()
		f.votes.beforeInsert = func() { <-release }
		store := &countingExists{voteStore: f.votes, arrived: &arrived}
		run(t, f, NewService(sessions.NewLookup(f.sessions, f.clock.Now, nil), store, nil, nil, nil, nil))
	})

	t.Run("with guard", func(t *testing.T) {
		f := newFixture()
		run(t, f, f.svc)
	})
}

// countingExists marks each caller as arrived once it has passed the existence check.
type countingExists struct {
	*voteStore
	arrived *sync.WaitGroup
}

func (c *countingExists) Exists(ctx context.Context, sessionID uuid.UUID, deviceHash string) (bool, error) {
	ok, err := c.voteStore.Exists(ctx, sessionID, deviceHash)
	c.arrived.Done()
	return ok, err
}

func TestSubmit_TwoDevicesBothSucceed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.svc.Submit(ctx, SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("a")})
	require.NoError(t, err)
	b, err := f.svc.Submit(ctx, SubmitRequest{Token: "ab12cd34", Scores: scoresOf(6, 6, 6, 6, 6), Identity: device("b")})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, f.votes.Rows(), 2)
}

func TestSubmit_EphemeralIdentitiesNeverCollide(t *testing.T) {
	f := newFixture()
	failing := identity.SourceFunc(func(context.Context) (string, error) { return "", errors.New("blocked") })
	for i := 0; i < 3; i++ {
		id := testDeriver.Derive(context.Background(), failing, "")
		require.Equal(t, identity.KindEphemeral, id.Kind)
		_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: id})
		require.NoError(t, err)
	}
	assert.Len(t, f.votes.Rows(), 3)
}

func TestSubmit_StorageErrors(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		f := newFixture()
		f.votes.insertErr = errBoom
		_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")})
		var se *StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, errBoom.Error(), err.Error())
		assert.Equal(t, CodeStorageError, Code(err))
		assert.Zero(t, f.agg.Count())
	})
	t.Run("exists", func(t *testing.T) {
		f := newFixture()
		f.votes.existsErr = errBoom
		_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, CodeStorageError, Code(err))
		_, inserts := f.votes.Calls()
		assert.Zero(t, inserts)
	})
	t.Run("session read", func(t *testing.T) {
		f := newFixture()
		f.sessions.err = errBoom
		_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")})
		assert.Equal(t, CodeStorageError, Code(err))
	})
}

func TestSubmit_GuardHeldIsInProgress(t *testing.T) {
	f := newFixture()
	id := device("d")
	release, err := f.guard.TryLock(context.Background(), "vote:"+f.session.ID.String()+":"+id.DeviceHash)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: id})
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Empty(t, f.votes.Rows())
}

func TestSubmit_GuardOutageFallsBackToStore(t *testing.T) {
	f := newFixture()
	f.guard.err = errBoom
	_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")})
	require.NoError(t, err)
	assert.Len(t, f.votes.Rows(), 1)
}

func TestSubmit_EnqueueFailureIsNotSurfaced(t *testing.T) {
	f := newFixture()
	f.agg.err = errBoom
	_, err := f.svc.Submit(context.Background(), SubmitRequest{Token: "ab12cd34", Scores: scoresOf(5, 5, 5, 5, 5), Identity: device("d")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.agg.Count())
}

func TestExampleScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, second := device("device-one"), device("device-two")

	b, err := f.svc.Open(ctx, "ab12cd34", first)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(72*time.Hour), b.Session.ExpiresAt)
	assert.False(t, b.AlreadyVoted)

	f.clock.Set(t0.Add(10 * time.Hour))
	v, err := f.svc.Submit(ctx, SubmitRequest{Token: "ab12cd34", Scores: scoresOf(7, 8, 6, 9, 7), Identity: first})
	require.NoError(t, err)
	assert.Equal(t, 7.4, v.AverageScore)

	f.clock.Set(t0.Add(11 * time.Hour))
	b, err = f.svc.Open(ctx, "ab12cd34", first)
	require.NoError(t, err)
	assert.True(t, b.AlreadyVoted)
	_, err = f.svc.Submit(ctx, SubmitRequest{Token: "ab12cd34", Scores: scoresOf(1, 2, 3, 4, 5), Identity: first})
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	f.clock.Set(t0.Add(12 * time.Hour))
	v, err = f.svc.Submit(ctx, SubmitRequest{Token: "ab12cd34", Scores: scoresOf(3, 4, 5, 4, 3), Identity: second})
	require.NoError(t, err)
	assert.Equal(t, 3.8, v.AverageScore)

	f.clock.Set(t0.Add(73 * time.Hour))
	for _, id := range []identity.Identity{first, second, device("device-three")} {
		_, err = f.svc.Open(ctx, "ab12cd34", id)
		assert.ErrorIs(t, err, sessions.ErrExpired)
		assert.Equal(t, CodeExpired, Code(err))
	}
	assert.Len(t, f.votes.Rows(), 2)
}

func TestCodeAndStatus(t *testing.T) {
	assert.Equal(t, 201, HTTPStatus(Code(nil)))
	assert.Equal(t, 404, HTTPStatus(Code(sessions.ErrNotFound)))
	assert.Equal(t, 410, HTTPStatus(Code(sessions.ErrExpired)))
	assert.Equal(t, 422, HTTPStatus(Code(sessions.ErrMissingPhoto)))
	assert.Equal(t, 409, HTTPStatus(Code(ErrAlreadyVoted)))
	assert.Equal(t, 429, HTTPStatus(Code(ErrSubmitInProgress)))
	assert.Equal(t, 503, HTTPStatus(Code(&StorageError{Err: errBoom})))
}

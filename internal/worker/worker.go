package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/realtime"
	"github.com/yansimam/backend/internal/scoring"
	"github.com/yansimam/backend/internal/sessions"
	"github.com/yansimam/backend/internal/votes"
	"github.com/yansimam/backend/pkg/metrics"
	"github.com/yansimam/backend/pkg/monitoring"
	"github.com/yansimam/backend/pkg/queue"
)

// DequeueTimeout bounds one blocking wait on the job list.
const DequeueTimeout = 5 * time.Second

// Jobs is the queue side the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Tallier computes raw aggregates for a session.
type Tallier interface {
	Aggregate(ctx context.Context, sessionID uuid.UUID) (votes.Tally, error)
}

// ResultsWriter stores recomputed aggregates.
type ResultsWriter interface {
	UpdateResults(ctx context.Context, id uuid.UUID, res models.SessionResults) error
}

// Publisher fans results out to live viewers.
type Publisher interface {
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload []byte) error
}

// ResultsEvent is the payload of a results_updated event.
type ResultsEvent struct {
	SessionID uuid.UUID             `json:"session_id"`
	Results   models.SessionResults `json:"results"`
	Qualifies bool                  `json:"qualifies"`
}

// ResultsFromTally turns raw counts into stored aggregates.
func ResultsFromTally(t votes.Tally) models.SessionResults {
	return models.SessionResults{
		TotalVotes:      t.TotalVotes,
		ApprovalRate:    scoring.ApprovalRate(t.Approvals, t.Decided).InexactFloat64(),
		AverageScore:    t.AverageScore,
		ScoreCourage:    t.ScoreCourage,
		ScoreHonesty:    t.ScoreHonesty,
		ScoreLoyalty:    t.ScoreLoyalty,
		ScoreWorkEthic:  t.ScoreWorkEthic,
		ScoreDiscipline: t.ScoreDiscipline,
	}
}

// AggregationProcessor processes session_aggregate jobs: tally votes, store the aggregates,
// and notify live viewers.
type AggregationProcessor struct {
	jobs      Jobs
	tallies   Tallier
	results   ResultsWriter
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	backoff   time.Duration
}

// NewAggregationProcessor creates an aggregation processor. publisher and m may be nil.
func NewAggregationProcessor(jobs Jobs, tallies Tallier, results ResultsWriter, publisher Publisher, m *metrics.Metrics, logger *zap.Logger) *AggregationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationProcessor{
		jobs:      jobs,
		tallies:   tallies,
		results:   results,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		backoff:   queue.RetryBackoff,
	}
}

// Process executes one aggregation job.
func (p *AggregationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionAggregate {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AggregatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	sid := payload.SessionID

	tally, err := p.tallies.Aggregate(ctx, sid)
	if err != nil {
		return fmt.Errorf("tally votes: %w", err)
	}
	res := ResultsFromTally(tally)
	if err := p.results.UpdateResults(ctx, sid, res); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			p.logger.Info("session gone, skipping aggregate", zap.String("session_id", sid.String()))
			return nil
		}
		return fmt.Errorf("update results: %w", err)
	}

	if p.publisher != nil {
		body, err := json.Marshal(ResultsEvent{SessionID: sid, Results: res, Qualifies: res.Qualifies()})
		if err == nil {
			err = p.publisher.PublishSessionEvent(ctx, sid, realtime.EventResultsUpdated, body)
		}
		if err != nil {
			p.logger.Warn("publish results failed", zap.String("session_id", sid.String()), zap.Error(err))
		}
	}

	p.logger.Info("session aggregated",
		zap.String("session_id", sid.String()),
		zap.Int("total_votes", res.TotalVotes),
		zap.Float64("approval_rate", res.ApprovalRate),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AggregationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("aggregation worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx, DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, job)
	}
}

func (p *AggregationProcessor) handle(ctx context.Context, job *queue.Job) {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		p.metrics.Aggregate("ok")
		return
	}
	p.metrics.Aggregate("error")
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if job.Attempt+1 >= queue.MaxRetries {
		monitoring.Capture(err, map[string]string{"job_type": string(job.Type), "job_id": job.ID})
	}
	if reErr := p.jobs.Retry(context.WithoutCancel(ctx), job); reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
	}
	p.sleep(ctx)
}

func (p *AggregationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

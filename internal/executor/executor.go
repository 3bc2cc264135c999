// Package executor runs stage jobs on bounded per-stage worker pools under a
// deadline.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/metrics"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Job produces the result of one stage. It should return promptly once ctx
// is done, but the executor does not depend on it.
type Job func(ctx context.Context) models.StageResult

// Executor owns one pool per stage.
type Executor struct {
	pools     map[models.Stage]*Pool
	deadlines map[models.Stage]time.Duration
}

// New starts a pool for every stage, sized and timed from cfg.
func New(cfg config.ExecutorConfig) *Executor {
	e := &Executor{
		pools:     make(map[models.Stage]*Pool, len(models.Stages)),
		deadlines: make(map[models.Stage]time.Duration, len(models.Stages)),
	}
	for _, stage := range models.Stages {
		e.pools[stage] = NewPool(string(stage), cfg.PoolSizeFor(stage))
		e.deadlines[stage] = cfg.DeadlineFor(stage)
	}
	return e
}

// Deadline returns the time budget of stage.
func (e *Executor) Deadline(stage models.Stage) time.Duration { return e.deadlines[stage] }

// Pool returns the pool serving stage.
func (e *Executor) Pool(stage models.Stage) *Pool { return e.pools[stage] }

// Execute runs job on the stage's pool and waits for its result or the
// stage deadline, whichever comes first. The deadline covers the time spent
// waiting for a worker. On timeout the job's context is canceled and its
// eventual result is discarded. Every failure is tagged with stage.
func (e *Executor) Execute(ctx context.Context, stage models.Stage, job Job) models.StageResult {
	start := time.Now()
	result := e.execute(ctx, stage, job)
	result.Stage = stage
	if result.Failure != nil {
		result.Failure = result.Failure.WithStage(stage)
	}

	outcome := "ok"
	log := logging.Ctx(ctx)
	if result.Failure != nil {
		outcome = string(result.Failure.Kind)
		metrics.StageFailures.WithLabelValues(string(stage), outcome).Inc()
		log.Warn().Str("stage", string(stage)).Str("kind", outcome).Str("subkind", string(result.Failure.Subkind)).
			Str("message", result.Failure.Message).Dur("duration", time.Since(start)).Msg("Stage failed")
	} else {
		log.Info().Str("stage", string(stage)).Dur("duration", time.Since(start)).Msg("Stage completed")
	}
	metrics.StageDuration.WithLabelValues(string(stage), outcome).Observe(time.Since(start).Seconds())
	return result
}

func (e *Executor) execute(parent context.Context, stage models.Stage, job Job) models.StageResult {
	pool, ok := e.pools[stage]
	if !ok {
		return models.Failed(stage, models.NewFailure(models.KindInternal, "no worker pool for stage %q", stage))
	}
	deadline := e.deadlines[stage]

	ctx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return models.Failed(stage, contextFailure(err, deadline))
	}

	// Buffered so a job finishing after the caller gave up never blocks its worker.
	done := make(chan models.StageResult, 1)
	enqueued := time.Now()
	task := func() {
		metrics.PoolQueueWait.WithLabelValues(string(stage)).Observe(time.Since(enqueued).Seconds())
		done <- runJob(ctx, stage, job)
	}

	if err := pool.Submit(ctx, task); err != nil {
		if errors.Is(err, ErrPoolClosed) {
			return models.Failed(stage, models.NewFailure(models.KindInternal, "%v", err))
		}
		return models.Failed(stage, contextFailure(ctx.Err(), deadline))
	}

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		metrics.AbandonedJobs.WithLabelValues(string(stage)).Inc()
		logging.Ctx(parent).Warn().Str("stage", string(stage)).Dur("deadline", deadline).
			Msg("Stage deadline reached; the running job is canceled and its result will be discarded")
		return models.Failed(stage, contextFailure(ctx.Err(), deadline))
	}
}

// runJob converts a panic and an empty success into failures.
func runJob(ctx context.Context, stage models.Stage, job Job) (result models.StageResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.Failed(stage, models.NewFailure(models.KindInternal, "job panicked: %v", r))
		}
	}()

	result = job(ctx)
	if result.Failure == nil && len(result.Texts) == 0 && len(result.Sections) == 0 {
		return models.Failed(stage, models.NewFailure(models.KindEmptyResult, "no data found in the response"))
	}
	return result
}

// contextFailure maps a context error to the failure the caller sees: an
// elapsed deadline is a timeout, anything else is a canceled request.
func contextFailure(err error, deadline time.Duration) *models.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewFailure(models.KindTimeout, "stage did not complete within %s", deadline)
	}
	if err == nil {
		err = errors.New("unknown")
	}
	return models.NewFailure(models.KindInternal, "canceled: %v", err)
}

// Shutdown drains every pool. Jobs already running finish first.
func (e *Executor) Shutdown(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for stage, pool := range e.pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("pool %s: %w", stage, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

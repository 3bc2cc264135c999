package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/gateway"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/prompts"
)

func TestMain(m *testing.M) {
	// opencensus, pulled in by the Gemini client, starts a worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newExecutor(t *testing.T, poolSize int, single time.Duration) *Executor {
	t.Helper()
	e := New(config.ExecutorConfig{
		PoolSize:       poolSize,
		SingleDeadline: single,
		FullDeadline:   5 * single,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.Shutdown(ctx))
	})
	return e
}

func ok(texts ...string) Job {
	return func(ctx context.Context) models.StageResult {
		return models.TextSuccess(models.StageStrengths, texts)
	}
}

func TestExecute_ReturnsJobResult(t *testing.T) {
	e := newExecutor(t, 2, time.Second)

	r := e.Execute(context.Background(), models.StageStrengths, ok("a", "b"))
	require.True(t, r.OK())
	assert.Equal(t, []string{"a", "b"}, r.Texts)
	assert.Equal(t, models.StageStrengths, r.Stage)
}

func TestExecute_TimeoutAtDeadline(t *testing.T) {
	const deadline = 50 * time.Millisecond
	e := newExecutor(t, 1, deadline)

	release := make(chan struct{})
	finished := make(chan struct{})
	stubborn := func(ctx context.Context) models.StageResult {
		defer close(finished)
		<-release // ignores ctx on purpose
		return models.TextSuccess(models.StageGoals, []string{"late"})
	}

	start := time.Now()
	r := e.Execute(context.Background(), models.StageGoals, stubborn)
	elapsed := time.Since(start)

	require.False(t, r.OK())
	assert.Equal(t, models.KindTimeout, r.Failure.Kind)
	assert.Equal(t, models.StageGoals, r.Failure.Stage)
	assert.True(t, r.Failure.Retryable())
	assert.GreaterOrEqual(t, elapsed, deadline)
	assert.Less(t, elapsed, deadline+time.Second)

	// The abandoned job still occupies its worker until it returns.
	assert.Equal(t, 1, e.Pool(models.StageGoals).InFlight())
	close(release)
	<-finished
}

func TestExecute_CancelsJobContextOnTimeout(t *testing.T) {
	e := newExecutor(t, 1, 30*time.Millisecond)

	canceled := make(chan error, 1)
	r := e.Execute(context.Background(), models.StageNeeds, func(ctx context.Context) models.StageResult {
		<-ctx.Done()
		canceled <- ctx.Err()
		return models.Failed(models.StageNeeds, models.NewFailure(models.KindTimeout, "interrupted"))
	})

	assert.Equal(t, models.KindTimeout, r.Failure.Kind)
	select {
	case err := <-canceled:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job context was not canceled")
	}
}

func TestExecute_ConcurrencyBound(t *testing.T) {
	const workers = 2
	e := newExecutor(t, workers, 5*time.Second)

	var running, peak atomic.Int32
	job := func(ctx context.Context) models.StageResult {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return models.TextSuccess(models.StageMeans, []string{"m"})
	}

	var wg sync.WaitGroup
	results := make([]models.StageResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.Execute(context.Background(), models.StageMeans, job)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.OK())
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Equal(t, int32(workers), peak.Load())
}

func TestExecute_PanicIsInternalError(t *testing.T) {
	e := newExecutor(t, 1, time.Second)

	r := e.Execute(context.Background(), models.StageChallenges, func(ctx context.Context) models.StageResult {
		panic("boom")
	})
	require.False(t, r.OK())
	assert.Equal(t, models.KindInternal, r.Failure.Kind)
	assert.Contains(t, r.Failure.Message, "boom")

	// The worker survives the panic.
	r = e.Execute(context.Background(), models.StageChallenges, ok("c"))
	assert.True(t, r.OK())
}

func TestExecute_EmptySuccessIsEmptyResult(t *testing.T) {
	e := newExecutor(t, 1, time.Second)

	r := e.Execute(context.Background(), models.StageStrengths, func(ctx context.Context) models.StageResult {
		return models.StageResult{}
	})
	require.False(t, r.OK())
	assert.Equal(t, models.KindEmptyResult, r.Failure.Kind)
}

func TestExecute_ParentCanceled(t *testing.T) {
	e := newExecutor(t, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := e.Execute(ctx, models.StageStrengths, ok("a"))
	require.False(t, r.OK())
	assert.Equal(t, models.KindInternal, r.Failure.Kind)
	assert.Contains(t, r.Failure.Message, "canceled")
}

func TestExecute_AfterShutdown(t *testing.T) {
	e := New(config.ExecutorConfig{PoolSize: 1, SingleDeadline: time.Second, FullDeadline: time.Second})
	require.NoError(t, e.Shutdown(context.Background()))

	r := e.Execute(context.Background(), models.StageStrengths, ok("a"))
	require.False(t, r.OK())
	assert.Equal(t, models.KindInternal, r.Failure.Kind)
	assert.Contains(t, r.Failure.Message, ErrPoolClosed.Error())
}

func TestPool_ShutdownDrainsRunningTasks(t *testing.T) {
	p := NewPool("drain", 1)

	release := make(chan struct{})
	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func() {
		<-release
		ran.Store(true)
	}))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, ran.Load())
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolClosed)
}

func TestPool_ShutdownUnblocksWaitingSubmitters(t *testing.T) {
	p := NewPool("busy", 1)

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	submitErr := make(chan error, 1)
	go func() {
		submitErr <- p.Submit(context.Background(), func() {})
	}()

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- p.Shutdown(context.Background())
	}()

	select {
	case err := <-submitErr:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiting submitter was not released")
	}

	close(release)
	require.NoError(t, <-shutdownDone)
}

type fakeAssembler struct {
	err error
}

func (f fakeAssembler) Assemble(stage models.Stage, locale string, in prompts.PromptInput) (gateway.Request, error) {
	if f.err != nil {
		return gateway.Request{}, f.err
	}
	return gateway.Request{Text: string(stage) + "/" + locale}, nil
}

func TestNewStageJob(t *testing.T) {
	ctx := context.Background()
	in := prompts.PromptInput{ItemCount: 3}

	t.Run("success", func(t *testing.T) {
		var sent gateway.Request
		gw := gateway.GatewayFunc(func(ctx context.Context, req gateway.Request) (string, error) {
			sent = req
			return `<output>["x","y"]</output>`, nil
		})
		r := NewStageJob(fakeAssembler{}, gw, models.StageNeeds, "fr", in)(ctx)
		require.True(t, r.OK())
		assert.Equal(t, []string{"x", "y"}, r.Texts)
		assert.Equal(t, "needs/fr", sent.Text)
	})

	t.Run("configuration", func(t *testing.T) {
		var calls atomic.Int32
		gw := gateway.GatewayFunc(func(ctx context.Context, req gateway.Request) (string, error) {
			calls.Add(1)
			return "", nil
		})
		r := NewStageJob(fakeAssembler{err: errors.New("no template")}, gw, models.StageNeeds, "de", in)(ctx)
		require.False(t, r.OK())
		assert.Equal(t, models.KindConfiguration, r.Failure.Kind)
		assert.Zero(t, calls.Load())
	})

	t.Run("service error", func(t *testing.T) {
		gw := gateway.GatewayFunc(func(ctx context.Context, req gateway.Request) (string, error) {
			return "", &gateway.ServiceError{Subkind: models.SubkindAuthentication, StatusCode: 401}
		})
		r := NewStageJob(fakeAssembler{}, gw, models.StageNeeds, "en", in)(ctx)
		require.False(t, r.OK())
		assert.Equal(t, models.KindService, r.Failure.Kind)
		assert.Equal(t, models.SubkindAuthentication, r.Failure.Subkind)
		assert.False(t, r.Failure.Retryable())
	})

	t.Run("deadline", func(t *testing.T) {
		gw := gateway.GatewayFunc(func(ctx context.Context, req gateway.Request) (string, error) {
			return "", context.DeadlineExceeded
		})
		r := NewStageJob(fakeAssembler{}, gw, models.StageNeeds, "en", in)(ctx)
		assert.Equal(t, models.KindTimeout, r.Failure.Kind)
	})

	t.Run("upstream reported", func(t *testing.T) {
		gw := gateway.GatewayFunc(func(ctx context.Context, req gateway.Request) (string, error) {
			return `{"error":"description too short"}`, nil
		})
		r := NewStageJob(fakeAssembler{}, gw, models.StageNeeds, "en", in)(ctx)
		assert.Equal(t, models.KindUpstreamReported, r.Failure.Kind)
		assert.Equal(t, "description too short", r.Failure.Message)
	})
}

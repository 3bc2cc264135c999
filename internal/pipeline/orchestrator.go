// Package pipeline composes stage executions into category and full-profile
// recommendations.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/executor"
	"github.com/BerylCAtieno/recommendation-agent/internal/gateway"
	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/prompts"
)

var ErrMissingInput = errors.New("missing required input")

// Runner executes one stage job. *executor.Executor is the production Runner.
type Runner interface {
	Execute(ctx context.Context, stage models.Stage, job executor.Job) models.StageResult
}

var _ Runner = (*executor.Executor)(nil)

// IDSource hands out item identifiers.
type IDSource interface {
	NewID() string
}

// UUIDSource issues random UUIDs.
type UUIDSource struct{}

func (UUIDSource) NewID() string { return uuid.NewString() }

// Request is the input of every operation. Which lists are used depends on
// the operation.
type Request struct {
	Profile    models.Profile
	Locale     string
	ItemCount  int
	Strengths  []string
	Challenges []string
	Needs      []string
	Goals      []string
}

// CategoryResult is the outcome of a single-category operation. Texts is set
// for strengths, challenges and needs; Items for goals and means.
type CategoryResult struct {
	Stage   models.Stage
	Texts   []string
	Items   []models.RecommendationItem
	Failure *models.Failure
}

func (r CategoryResult) OK() bool { return r.Failure == nil }

type Options struct {
	Mode          string
	ItemCount     int
	DefaultLocale string
	IDs           IDSource
}

// Orchestrator sequences stage executions. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	runner    Runner
	assembler executor.Assembler
	gateway   gateway.Gateway
	ids       IDSource
	mode      string
	itemCount int
	locale    string
}

func New(runner Runner, assembler executor.Assembler, gw gateway.Gateway, opts Options) *Orchestrator {
	if opts.IDs == nil {
		opts.IDs = UUIDSource{}
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeCompound
	}
	if opts.ItemCount <= 0 {
		opts.ItemCount = 10
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	return &Orchestrator{
		runner:    runner,
		assembler: assembler,
		gateway:   gw,
		ids:       opts.IDs,
		mode:      opts.Mode,
		itemCount: opts.ItemCount,
		locale:    opts.DefaultLocale,
	}
}

func (o *Orchestrator) Mode() string { return o.mode }

func (o *Orchestrator) run(ctx context.Context, stage models.Stage, req Request) models.StageResult {
	locale := req.Locale
	if locale == "" {
		locale = o.locale
	}
	count := req.ItemCount
	if count <= 0 {
		count = o.itemCount
	}
	in := prompts.PromptInput{
		Profile:    req.Profile,
		ItemCount:  count,
		Strengths:  req.Strengths,
		Challenges: req.Challenges,
		Needs:      req.Needs,
		Goals:      req.Goals,
	}
	return o.runner.Execute(ctx, stage, executor.NewStageJob(o.assembler, o.gateway, stage, locale, in))
}

func (o *Orchestrator) texts(ctx context.Context, stage models.Stage, req Request) CategoryResult {
	r := o.run(ctx, stage, req)
	if !r.OK() {
		return CategoryResult{Stage: stage, Failure: r.Failure}
	}
	list := r.List()
	if len(list) == 0 {
		return CategoryResult{Stage: stage, Failure: shapeFailure(stage)}
	}
	return CategoryResult{Stage: stage, Texts: list}
}

func (o *Orchestrator) items(ctx context.Context, stage models.Stage, req Request) CategoryResult {
	r := o.texts(ctx, stage, req)
	if !r.OK() {
		return r
	}
	return CategoryResult{Stage: stage, Items: newAssigner(o.ids).assign(r.Texts)}
}

func (o *Orchestrator) Strengths(ctx context.Context, req Request) CategoryResult {
	return o.texts(ctx, models.StageStrengths, req)
}

func (o *Orchestrator) Challenges(ctx context.Context, req Request) CategoryResult {
	return o.texts(ctx, models.StageChallenges, req)
}

func (o *Orchestrator) Needs(ctx context.Context, req Request) CategoryResult {
	return o.texts(ctx, models.StageNeeds, req)
}

// Goals needs at least one of challenges and needs.
func (o *Orchestrator) Goals(ctx context.Context, req Request) CategoryResult {
	if len(req.Challenges) == 0 && len(req.Needs) == 0 {
		return missing(models.StageGoals, "challenges or needs")
	}
	return o.items(ctx, models.StageGoals, req)
}

// Means needs goals.
func (o *Orchestrator) Means(ctx context.Context, req Request) CategoryResult {
	if len(req.Goals) == 0 {
		return missing(models.StageMeans, "goals")
	}
	return o.items(ctx, models.StageMeans, req)
}

// FullProfile produces every category in the configured mode. The first
// failure ends the run and is returned alone.
func (o *Orchestrator) FullProfile(ctx context.Context, req Request) models.PipelineResult {
	logging.Ctx(ctx).Info().Str("mode", o.mode).Bool("document", req.Profile.Document != nil).Msg("Full profile requested")
	if o.mode == config.ModeDecomposed {
		return o.decomposed(ctx, req)
	}
	return o.compound(ctx, req)
}

func (o *Orchestrator) compound(ctx context.Context, req Request) models.PipelineResult {
	r := o.run(ctx, models.StageFull, req)
	if !r.OK() {
		return models.PipelineFailure(r.Failure)
	}
	if len(r.Sections) == 0 {
		return models.PipelineFailure(shapeFailure(models.StageFull))
	}

	for _, c := range models.Categories {
		if len(r.Sections[c]) == 0 {
			f := models.NewFailure(models.KindEmptyResult, "the response has no %s", c)
			return models.PipelineFailure(f.WithStage(c.Stage()))
		}
	}

	ids := newAssigner(o.ids)
	return models.PipelineSuccess(models.FullProfile{
		Strengths:  r.Sections[models.CategoryStrengths],
		Challenges: r.Sections[models.CategoryChallenges],
		Needs:      r.Sections[models.CategoryNeeds],
		Goals:      ids.assign(r.Sections[models.CategoryGoals]),
		Means:      ids.assign(r.Sections[models.CategoryMeans]),
	})
}

func (o *Orchestrator) decomposed(ctx context.Context, req Request) models.PipelineResult {
	base := Request{Profile: req.Profile, Locale: req.Locale, ItemCount: req.ItemCount}

	strengths := o.Strengths(ctx, base)
	if !strengths.OK() {
		return models.PipelineFailure(strengths.Failure)
	}

	// Challenges and needs only depend on the profile. Both run to the end so
	// the reported failure follows invocation order, not timing.
	var challenges, needs CategoryResult
	var g errgroup.Group
	g.Go(func() error {
		challenges = o.Challenges(ctx, base)
		return nil
	})
	g.Go(func() error {
		needs = o.Needs(ctx, base)
		return nil
	})
	_ = g.Wait()
	for _, r := range []CategoryResult{challenges, needs} {
		if !r.OK() {
			return models.PipelineFailure(r.Failure)
		}
	}

	derived := base
	derived.Strengths = strengths.Texts
	derived.Challenges = challenges.Texts
	derived.Needs = needs.Texts

	goals := o.texts(ctx, models.StageGoals, derived)
	if !goals.OK() {
		return models.PipelineFailure(goals.Failure)
	}

	derived.Goals = goals.Texts
	means := o.texts(ctx, models.StageMeans, derived)
	if !means.OK() {
		return models.PipelineFailure(means.Failure)
	}

	ids := newAssigner(o.ids)
	return models.PipelineSuccess(models.FullProfile{
		Strengths:  strengths.Texts,
		Challenges: challenges.Texts,
		Needs:      needs.Texts,
		Goals:      ids.assign(goals.Texts),
		Means:      ids.assign(means.Texts),
	})
}

func missing(stage models.Stage, what string) CategoryResult {
	f := models.NewFailure(models.KindInternal, "%v: %s", ErrMissingInput, what)
	return CategoryResult{Stage: stage, Failure: f.WithStage(stage)}
}

func shapeFailure(stage models.Stage) *models.Failure {
	want := "a list"
	if stage == models.StageFull {
		want = "an object of categories"
	}
	f := models.NewFailure(models.KindMalformedOutput, "expected %s for stage %s", want, stage)
	return f.WithStage(stage)
}

// assigner issues ids that are unique within one result.
type assigner struct {
	src  IDSource
	seen map[string]struct{}
}

func newAssigner(src IDSource) *assigner {
	return &assigner{src: src, seen: make(map[string]struct{})}
}

const maxIDAttempts = 8

func (a *assigner) next() string {
	var id string
	for i := 0; i < maxIDAttempts; i++ {
		id = a.src.NewID()
		if _, dup := a.seen[id]; !dup {
			a.seen[id] = struct{}{}
			return id
		}
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, dup := a.seen[candidate]; !dup {
			a.seen[candidate] = struct{}{}
			return candidate
		}
	}
}

func (a *assigner) assign(texts []string) []models.RecommendationItem {
	items := make([]models.RecommendationItem, len(texts))
	for i, t := range texts {
		items[i] = models.RecommendationItem{ID: a.next(), Description: t}
	}
	return items
}

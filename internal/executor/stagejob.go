package executor

import (
	"context"
	"errors"

	"github.com/BerylCAtieno/recommendation-agent/internal/gateway"
	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/normalize"
	"github.com/BerylCAtieno/recommendation-agent/internal/prompts"
)

// Assembler builds the gateway request for a stage.
type Assembler interface {
	Assemble(stage models.Stage, locale string, in prompts.PromptInput) (gateway.Request, error)
}

var _ Assembler = (*prompts.Assembler)(nil)

// NewStageJob composes assembly, the gateway call and normalization into one
// job.
func NewStageJob(a Assembler, gw gateway.Gateway, stage models.Stage, locale string, in prompts.PromptInput) Job {
	return func(ctx context.Context) models.StageResult {
		req, err := a.Assemble(stage, locale, in)
		if err != nil {
			var f *models.Failure
			if errors.As(err, &f) {
				return models.Failed(stage, f)
			}
			return models.Failed(stage, models.NewFailure(models.KindConfiguration, "%v", err))
		}

		raw, err := gw.Send(ctx, req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return models.Failed(stage, models.NewFailure(models.KindTimeout, "service call interrupted: %v", err))
			}
			if errors.Is(err, context.Canceled) {
				return models.Failed(stage, models.NewFailure(models.KindInternal, "canceled: %v", err))
			}
			return models.Failed(stage, gateway.ToFailure(err))
		}
		result := normalize.Normalize(stage, raw)
		logging.Ctx(ctx).Debug().Str("stage", string(stage)).Int("response_bytes", len(raw)).
			Str("result", normalize.Describe(result)).Msg("Response normalized")
		return result
	}
}

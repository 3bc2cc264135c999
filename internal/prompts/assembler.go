package prompts

import (
	"fmt"
	"strings"

	"github.com/BerylCAtieno/recommendation-agent/internal/gateway"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// PromptInput is everything a template may reference.
type PromptInput struct {
	Profile    models.Profile
	ItemCount  int
	Strengths  []string
	Challenges []string
	Needs      []string
	Goals      []string
}

// view is the value templates are executed against.
type view struct {
	Age         string
	Gender      string
	Description string
	ItemCount   int
	HasDocument bool
	Strengths   []string
	Challenges  []string
	Needs       []string
	Goals       []string
}

// Assembler turns a profile into a gateway request using the registry.
type Assembler struct {
	reg *Registry
}

func NewAssembler(reg *Registry) *Assembler {
	return &Assembler{reg: reg}
}

func (a *Assembler) Registry() *Registry { return a.reg }

// Assemble renders the template for (stage, locale). The result depends only
// on its arguments and the registry. Errors are *models.Failure of kind
// configuration_error.
func (a *Assembler) Assemble(stage models.Stage, locale string, in PromptInput) (gateway.Request, error) {
	tmpl, err := a.reg.Lookup(stage, locale)
	if err != nil {
		return gateway.Request{}, configFailure(err)
	}

	v := view{
		Age:         in.Profile.AgeText(),
		Gender:      string(in.Profile.Gender),
		Description: strings.TrimSpace(in.Profile.Description),
		ItemCount:   in.ItemCount,
		HasDocument: in.Profile.Document != nil,
		Strengths:   orEmpty(in.Strengths),
		Challenges:  orEmpty(in.Challenges),
		Needs:       orEmpty(in.Needs),
		Goals:       orEmpty(in.Goals),
	}
	if v.Gender == "" {
		v.Gender = string(models.GenderUndefined)
	}

	var b strings.Builder
	if err := tmpl.prompt.Execute(&b, v); err != nil {
		return gateway.Request{}, configFailure(fmt.Errorf("render template %s: %w", tmpl.Key, err))
	}

	req := gateway.Request{
		Text:     strings.TrimSpace(b.String()),
		Document: in.Profile.Document,
	}
	if len(tmpl.Context) > 0 {
		req.Context = append([]string(nil), tmpl.Context...)
	}
	return req, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func configFailure(err error) *models.Failure {
	return &models.Failure{Kind: models.KindConfiguration, Message: err.Error()}
}

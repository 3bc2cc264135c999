package api

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/pipeline"
)

// ProfileFields are accepted by every endpoint.
type ProfileFields struct {
	Age       *float64 `json:"age" form:"age" binding:"omitempty,gte=0"`
	Gender    string   `json:"gender" form:"gender" binding:"omitempty,oneof=male female other undefined"`
	Locale    string   `json:"locale" form:"locale" binding:"omitempty,max=16"`
	ItemCount int      `json:"item_count" form:"item_count" binding:"omitempty,gte=1,lte=50"`
}

func (p ProfileFields) gender() models.Gender {
	if p.Gender == "" {
		return models.GenderUndefined
	}
	return models.Gender(p.Gender)
}

func (p ProfileFields) request(profile models.Profile) pipeline.Request {
	return pipeline.Request{Profile: profile, Locale: p.Locale, ItemCount: p.ItemCount}
}

// DescriptionRequest is the body of the strengths, challenges and needs
// endpoints.
type DescriptionRequest struct {
	ProfileFields
	Description string `json:"description" form:"description" binding:"required"`
}

func (r DescriptionRequest) build(doc *models.Document) (pipeline.Request, error) {
	profile, err := models.NewProfile(r.Age, r.gender(), r.Description, doc)
	if err != nil {
		return pipeline.Request{}, err
	}
	return r.request(profile), nil
}

// GoalsRequest needs at least one challenge or need.
type GoalsRequest struct {
	ProfileFields
	Strengths  []string `json:"strengths"`
	Challenges []string `json:"challenges"`
	Needs      []string `json:"needs"`
}

func (r GoalsRequest) build() pipeline.Request {
	req := r.request(models.Profile{Age: r.Age, Gender: r.gender()})
	req.Strengths = r.Strengths
	req.Challenges = r.Challenges
	req.Needs = r.Needs
	return req
}

type MeansRequest struct {
	ProfileFields
	Strengths  []string `json:"strengths"`
	Challenges []string `json:"challenges"`
	Needs      []string `json:"needs"`
	Goals      []string `json:"goals" binding:"required,min=1,dive,required"`
}

func (r MeansRequest) build() pipeline.Request {
	req := r.request(models.Profile{Age: r.Age, Gender: r.gender()})
	req.Strengths = r.Strengths
	req.Challenges = r.Challenges
	req.Needs = r.Needs
	req.Goals = r.Goals
	return req
}

const tagChallengesOrNeeds = "challenges_or_needs"

func validateGoalsRequest(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(GoalsRequest)
	if !ok {
		return
	}
	if len(nonBlank(req.Challenges)) == 0 && len(nonBlank(req.Needs)) == 0 {
		sl.ReportError(req.Challenges, "challenges", "Challenges", tagChallengesOrNeeds, "")
	}
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

var registerOnce sync.Once

// registerValidators installs the custom rules on gin's validator and makes
// errors report JSON field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = f.Tag.Get("form")
			}
			return name
		})
		v.RegisterStructValidation(validateGoalsRequest, GoalsRequest{})
	})
}

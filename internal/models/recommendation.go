package models

// Stage identifies one unit of generation: a single category or the
// compound full profile.
type Stage string

const (
	StageStrengths  Stage = "strengths"
	StageChallenges Stage = "challenges"
	StageNeeds      Stage = "needs"
	StageGoals      Stage = "goals"
	StageMeans      Stage = "means"
	StageFull       Stage = "full"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageStrengths, StageChallenges, StageNeeds, StageGoals, StageMeans, StageFull}

func (s Stage) String() string { return string(s) }

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Category is one of the five recommendation categories.
type Category string

const (
	CategoryStrengths  Category = "strengths"
	CategoryChallenges Category = "challenges"
	CategoryNeeds      Category = "needs"
	CategoryGoals      Category = "goals"
	CategoryMeans      Category = "means"
)

// Categories lists every category in the order they appear in a full profile.
var Categories = []Category{CategoryStrengths, CategoryChallenges, CategoryNeeds, CategoryGoals, CategoryMeans}

// Itemized reports whether entries of c carry an identity.
func (c Category) Itemized() bool {
	return c == CategoryGoals || c == CategoryMeans
}

// Stage returns the single-category stage that produces c.
func (c Category) Stage() Stage { return Stage(c) }

// RecommendationItem is an identified goal or mean.
type RecommendationItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Descriptions returns the description of every item, in order.
func Descriptions(items []RecommendationItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Description
	}
	return out
}

// FullProfile is the aggregated payload of a successful full-profile run.
type FullProfile struct {
	Strengths  []string             `json:"strengths"`
	Challenges []string             `json:"challenges"`
	Needs      []string             `json:"needs"`
	Goals      []RecommendationItem `json:"goals"`
	Means      []RecommendationItem `json:"means"`
}

// PipelineResult is the terminal outcome of a full-profile request. Exactly
// one of Profile and Failure is set.
type PipelineResult struct {
	Profile *FullProfile
	Failure *Failure
}

func PipelineSuccess(p FullProfile) PipelineResult { return PipelineResult{Profile: &p} }

func PipelineFailure(f *Failure) PipelineResult { return PipelineResult{Failure: f} }

func (r PipelineResult) OK() bool { return r.Failure == nil && r.Profile != nil }

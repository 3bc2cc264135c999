// Package normalize turns the free text returned by the generative service
// into a typed stage result.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Aliases maps every accepted object key onto its category. Keys are
// compared after lowercasing and trimming.
var Aliases = map[string]models.Category{
	"strengths":  models.CategoryStrengths,
	"strength":   models.CategoryStrengths,
	"forces":     models.CategoryStrengths,
	"challenges": models.CategoryChallenges,
	"challenge":  models.CategoryChallenges,
	"defis":      models.CategoryChallenges,
	"défis":      models.CategoryChallenges,
	"needs":      models.CategoryNeeds,
	"need":       models.CategoryNeeds,
	"besoins":    models.CategoryNeeds,
	"goals":      models.CategoryGoals,
	"goal":       models.CategoryGoals,
	"objectives": models.CategoryGoals,
	"objective":  models.CategoryGoals,
	"objectifs":  models.CategoryGoals,
	"means":      models.CategoryMeans,
	"resources":  models.CategoryMeans,
	"moyens":     models.CategoryMeans,
}

// Canonical returns the category a key folds into.
func Canonical(name string) (models.Category, bool) {
	c, ok := Aliases[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

const errorKey = "error"

// Normalize parses raw service output for stage. Only two shapes are
// accepted: a JSON array of strings, or a JSON object mapping category names
// to arrays. Anything else is malformed output.
func Normalize(stage models.Stage, raw string) models.StageResult {
	body := Strip(raw)
	if body == "" {
		return models.Failed(stage, models.NewFailure(models.KindEmptyResult, "empty response"))
	}

	switch body[0] {
	case '[':
		var entries []any
		if err := json.Unmarshal([]byte(body), &entries); err != nil {
			return malformed(stage, err)
		}
		return models.TextSuccess(stage, cleanEntries(entries))
	case '{':
		var fields map[string]any
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return malformed(stage, err)
		}
		if msg, reported := upstreamError(fields); reported {
			return models.Failed(stage, models.NewFailure(models.KindUpstreamReported, "%s", msg))
		}
		return models.SectionSuccess(stage, sections(fields))
	default:
		return models.Failed(stage, models.NewFailure(models.KindMalformedOutput, "response is neither a JSON array nor a JSON object"))
	}
}

// Strip removes the <output> wrapper and markdown code fences and trims the
// result. Text outside an <output> block is discarded.
func Strip(raw string) string {
	s := raw
	if start := strings.Index(s, "<output>"); start >= 0 {
		s = s[start+len("<output>"):]
		if end := strings.LastIndex(s, "</output>"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.ReplaceAll(s, "</output>", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the info string, e.g. ```json
			s = s[nl+1:]
		} else {
			s = ""
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func malformed(stage models.Stage, err error) models.StageResult {
	return models.Failed(stage, models.NewFailure(models.KindMalformedOutput, "undecodable response: %v", err))
}

// upstreamError reports an error field the service embedded in its answer.
// The key alone marks the answer as an error, whatever its value.
func upstreamError(fields map[string]any) (string, bool) {
	v, ok := fields[errorKey]
	if !ok {
		return "", false
	}
	switch e := v.(type) {
	case string:
		if msg := strings.TrimSpace(e); msg != "" {
			return msg, true
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg), true
		}
	}
	if msg, ok := fields["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg), true
	}
	if b, err := json.Marshal(v); err == nil && v != nil {
		return "the service reported an error: " + string(b), true
	}
	return "the service reported an error", true
}

func sections(fields map[string]any) map[models.Category][]string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[models.Category][]string)
	for _, k := range keys {
		cat, ok := Canonical(k)
		if !ok {
			continue
		}
		entries, ok := fields[k].([]any)
		if !ok {
			continue
		}
		out[cat] = append(out[cat], cleanEntries(entries)...)
	}
	return out
}

// cleanEntries keeps strings, and objects carrying a string description,
// trimmed and non-empty.
func cleanEntries(entries []any) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		var s string
		switch v := e.(type) {
		case string:
			s = v
		case map[string]any:
			s, _ = v["description"].(string)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Describe is a short summary of a result for logs.
func Describe(r models.StageResult) string {
	switch {
	case r.Failure != nil:
		return string(r.Failure.Kind)
	case len(r.Texts) > 0:
		return fmt.Sprintf("%d items", len(r.Texts))
	default:
		return fmt.Sprintf("%d categories", len(r.Sections))
	}
}

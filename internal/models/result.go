package models

import (
	"fmt"
	"strings"
)

// FailureKind classifies why a stage did not produce a payload.
type FailureKind string

const (
	KindConfiguration    FailureKind = "configuration_error"
	KindService          FailureKind = "service_error"
	KindMalformedOutput  FailureKind = "malformed_output"
	KindEmptyResult      FailureKind = "empty_result"
	KindUpstreamReported FailureKind = "upstream_reported"
	KindTimeout          FailureKind = "timeout"
	KindInternal         FailureKind = "internal_error"
)

// ServiceSubkind refines KindService following the generative service's own
// error taxonomy.
type ServiceSubkind string

const (
	SubkindAuthentication   ServiceSubkind = "authentication"
	SubkindPermission       ServiceSubkind = "permission"
	SubkindRateLimited      ServiceSubkind = "rate_limited"
	SubkindOverloaded       ServiceSubkind = "overloaded"
	SubkindRequestTooLarge  ServiceSubkind = "request_too_large"
	SubkindUnavailable      ServiceSubkind = "unavailable"
	SubkindUpstreamInternal ServiceSubkind = "upstream_internal"
	SubkindInvalidRequest   ServiceSubkind = "invalid_request"
)

// Failure is the failure arm of StageResult and PipelineResult.
type Failure struct {
	Kind    FailureKind    `json:"kind"`
	Subkind ServiceSubkind `json:"subkind,omitempty"`
	Stage   Stage          `json:"stage,omitempty"`
	Message string         `json:"message"`
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Stage != "" {
		fmt.Fprintf(&b, "%s: ", f.Stage)
	}
	b.WriteString(string(f.Kind))
	if f.Subkind != "" {
		fmt.Fprintf(&b, " (%s)", f.Subkind)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", f.Message)
	}
	return b.String()
}

// Retryable reports whether resubmitting the same request may succeed. The
// decision to resubmit always belongs to the caller.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindTimeout:
		return true
	case KindService:
		switch f.Subkind {
		case SubkindRateLimited, SubkindOverloaded, SubkindUnavailable, SubkindUpstreamInternal:
			return true
		}
	}
	return false
}

// WithStage returns a copy of f tagged with stage, keeping an existing tag.
func (f *Failure) WithStage(stage Stage) *Failure {
	c := *f
	if c.Stage == "" {
		c.Stage = stage
	}
	return &c
}

func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StageResult is the outcome of one stage. On success exactly one of Texts
// (list-shaped output) and Sections (mapping-shaped output) is non-empty; on
// failure only Failure is set.
type StageResult struct {
	Stage    Stage
	Texts    []string
	Sections map[Category][]string
	Failure  *Failure
}

// TextSuccess builds a list-shaped success. An empty list is reported as
// KindEmptyResult since an empty success is not representable.
func TextSuccess(stage Stage, texts []string) StageResult {
	if len(texts) == 0 {
		return Failed(stage, NewFailure(KindEmptyResult, "no data found in the response"))
	}
	return StageResult{Stage: stage, Texts: texts}
}

// SectionSuccess builds a mapping-shaped success, dropping empty categories.
func SectionSuccess(stage Stage, sections map[Category][]string) StageResult {
	kept := make(map[Category][]string, len(sections))
	for c, v := range sections {
		if len(v) > 0 {
			kept[c] = v
		}
	}
	if len(kept) == 0 {
		return Failed(stage, NewFailure(KindEmptyResult, "no data found in the response"))
	}
	return StageResult{Stage: stage, Sections: kept}
}

func Failed(stage Stage, f *Failure) StageResult {
	return StageResult{Stage: stage, Failure: f.WithStage(stage)}
}

func (r StageResult) OK() bool { return r.Failure == nil }

// List returns the list-shaped payload. A mapping-shaped payload carrying the
// stage's own category is accepted as well, since some templates wrap the
// list in an object keyed by the category name.
func (r StageResult) List() []string {
	if len(r.Texts) > 0 {
		return r.Texts
	}
	return r.Sections[Category(r.Stage)]
}

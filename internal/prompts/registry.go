package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

//go:embed templates.yaml
var defaultTemplates []byte

var (
	ErrTemplateNotFound = errors.New("no prompt template")
	ErrDuplicateKey     = errors.New("duplicate prompt template")
)

// Key addresses one template.
type Key struct {
	Stage  models.Stage
	Locale string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Stage, k.Locale) }

// Template is a parsed prompt plus the auxiliary instruction documents that
// accompany it.
type Template struct {
	Key     Key
	Context []string
	prompt  *template.Template
}

// Registry holds every template keyed by (stage, locale). It is filled once
// by a loader and only read afterwards.
type Registry struct {
	templates map[Key]*Template
}

type fileFormat struct {
	Templates []struct {
		Stage   string   `yaml:"stage"`
		Locale  string   `yaml:"locale"`
		Context []string `yaml:"context"`
		Prompt  string   `yaml:"prompt"`
	} `yaml:"templates"`
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"lines": joinLines,
}

func joinLines(items []string) string {
	return strings.Join(items, ",\n ")
}

// Default returns the registry built from the embedded templates.
func Default() (*Registry, error) {
	return Parse(defaultTemplates)
}

// LoadFile builds a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML. Every template is parsed up front so a
// broken template fails at startup rather than on a request.
func Parse(data []byte) (*Registry, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	reg := &Registry{templates: make(map[Key]*Template, len(ff.Templates))}
	for i, t := range ff.Templates {
		stage := models.Stage(strings.TrimSpace(t.Stage))
		if !stage.Valid() {
			return nil, fmt.Errorf("template %d: unknown stage %q", i, t.Stage)
		}
		locale := normalizeLocale(t.Locale)
		if locale == "" {
			return nil, fmt.Errorf("template %d (%s): locale is required", i, stage)
		}
		key := Key{Stage: stage, Locale: locale}
		if _, dup := reg.templates[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}

		tmpl, err := template.New(key.String()).Funcs(funcs).Option("missingkey=error").Parse(t.Prompt)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		reg.templates[key] = &Template{
			Key:     key,
			Context: trimAll(t.Context),
			prompt:  tmpl,
		}
	}
	return reg, nil
}

// Lookup finds the template for stage and locale. A regional locale such as
// "fr-CA" falls back to its language ("fr").
func (r *Registry) Lookup(stage models.Stage, locale string) (*Template, error) {
	locale = normalizeLocale(locale)
	if t, ok := r.templates[Key{Stage: stage, Locale: locale}]; ok {
		return t, nil
	}
	if lang, _, found := strings.Cut(locale, "-"); found {
		if t, ok := r.templates[Key{Stage: stage, Locale: lang}]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w for stage %q and locale %q", ErrTemplateNotFound, stage, locale)
}

// Locales returns every locale that has at least one template, sorted.
func (r *Registry) Locales() []string {
	seen := map[string]bool{}
	for k := range r.templates {
		seen[k.Locale] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether a template exists for the key.
func (r *Registry) Supports(stage models.Stage, locale string) bool {
	_, err := r.Lookup(stage, locale)
	return err == nil
}

func normalizeLocale(l string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(l)), "_", "-")
}

func trimAll(docs []string) []string {
	var out []string
	for _, d := range docs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

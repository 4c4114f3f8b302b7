package generator

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// promptFile is the on-disk shape of a prompts document.
type promptFile struct {
	Version int    `yaml:"version"`
	Content string `yaml:"content"`
	Quiz    string `yaml:"quiz"`
}

// PromptData is the lesson metadata a prompt is rendered from.
type PromptData struct {
	Title       string
	Description string
	Subject     string
	GradeLevel  string
}

// Prompts renders the content and quiz prompts.
type Prompts struct {
	content *template.Template
	quiz    *template.Template
}

var defaultPrompts = mustParsePrompts(defaultPromptsYAML)

func mustParsePrompts(data []byte) *Prompts {
	p, err := ParsePrompts(data)
	if err != nil {
		panic(fmt.Sprintf("built-in prompts: %v", err))
	}
	return p
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() *Prompts {
	return defaultPrompts
}

// LoadPrompts reads a prompts YAML file. An empty path selects the built-in prompts.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts: %w", err)
	}
	p, err := ParsePrompts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePrompts parses a prompts YAML document. Both templates are executed
// once against sample data so that later rendering cannot fail.
func ParsePrompts(data []byte) (*Prompts, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing prompts: %w", err)
	}
	if strings.TrimSpace(f.Content) == "" || strings.TrimSpace(f.Quiz) == "" {
		return nil, fmt.Errorf("prompts must define both content and quiz")
	}

	content, err := parseTemplate("content", f.Content)
	if err != nil {
		return nil, err
	}
	quiz, err := parseTemplate("quiz", f.Quiz)
	if err != nil {
		return nil, err
	}
	return &Prompts{content: content, quiz: quiz}, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s prompt: %w", name, err)
	}
	sample := PromptData{Title: "t", Description: "d", Subject: "s", GradeLevel: "g"}
	if err := t.Execute(new(strings.Builder), sample); err != nil {
		return nil, fmt.Errorf("rendering %s prompt: %w", name, err)
	}
	return t, nil
}

// Content renders the lesson-body prompt.
func (p *Prompts) Content(req Request) string {
	return render(p.content, defaultPrompts.content, req)
}

// Quiz renders the quiz prompt.
func (p *Prompts) Quiz(req Request) string {
	return render(p.quiz, defaultPrompts.quiz, req)
}

func render(t, fallback *template.Template, req Request) string {
	data := promptData(req)
	var b strings.Builder
	if err := t.Execute(&b, data); err == nil {
		return b.String()
	}
	b.Reset()
	_ = fallback.Execute(&b, data)
	return b.String()
}

func promptData(req Request) PromptData {
	return PromptData{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Subject:     titleCase(strings.TrimSpace(req.Subject)),
		GradeLevel:  strings.TrimSpace(req.GradeLevel),
	}
}

// titleCase capitalises each word and keeps existing capitals, so "AP biology"
// becomes "AP Biology". A Caser is stateful, hence one per call.
func titleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

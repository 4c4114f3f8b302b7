package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func photosynthesis() Request {
	return Request{
		LessonID:    "L1",
		Title:       "Photosynthesis",
		Description: "How plants turn light into food",
		Subject:     "science",
		GradeLevel:  "6-8",
		DocumentURL: "https://example.com/doc.pdf",
	}
}

func TestDefaultPrompts_Content(t *testing.T) {
	got := DefaultPrompts().Content(photosynthesis())

	for _, want := range []string{
		`"Photosynthesis"`,
		"Science educator",
		"grade 6-8",
		"How plants turn light into food",
		"3 to 5 sections",
		"4 to 8 key terms",
		`"keyPoints"`,
		`"keyTerms"`,
		"Return raw JSON only",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("content prompt missing %q\n%s", want, got)
		}
	}
}

func TestDefaultPrompts_Quiz(t *testing.T) {
	got := DefaultPrompts().Quiz(photosynthesis())

	for _, want := range []string{
		`"Photosynthesis"`,
		"exactly 5 questions",
		"exactly 4 options",
		"0-based index",
		`"correctAnswer"`,
		`"explanation"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("quiz prompt missing %q\n%s", want, got)
		}
	}
}

func TestPrompts_Deterministic(t *testing.T) {
	p := DefaultPrompts()
	if p.Content(photosynthesis()) != p.Content(photosynthesis()) {
		t.Error("content prompt differs between renders")
	}
	if p.Quiz(photosynthesis()) != p.Quiz(photosynthesis()) {
		t.Error("quiz prompt differs between renders")
	}
}

func TestPrompts_EmptyDescriptionOmitted(t *testing.T) {
	req := photosynthesis()
	req.Description = "   "
	if got := DefaultPrompts().Content(req); strings.Contains(got, "Lesson description:") {
		t.Errorf("prompt should omit an empty description:\n%s", got)
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"science", "Science"},
		{"computer science", "Computer Science"},
		{"AP biology", "AP Biology"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePrompts(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", "content: 'Teach {{.Title}}'\nquiz: 'Quiz {{.Title}}'\n", false},
		{"missing quiz", "content: 'Teach {{.Title}}'\n", true},
		{"bad yaml", "content: [unclosed", true},
		{"bad template syntax", "content: 'Teach {{.Title'\nquiz: 'q'\n", true},
		{"unknown field", "content: 'Teach {{.Nope}}'\nquiz: 'q'\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrompts([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePrompts() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	if err != nil || p != DefaultPrompts() {
		t.Fatalf("LoadPrompts(\"\") = %p, %v; want the built-in prompts", p, err)
	}

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("content: 'Write about {{.Title}} for {{.Subject}}'\nquiz: 'Quiz on {{.Title}}'\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err = LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}
	if got := p.Content(photosynthesis()); got != "Write about Photosynthesis for Science" {
		t.Errorf("Content() = %q", got)
	}

	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPrompts() should fail for a missing file")
	}
}

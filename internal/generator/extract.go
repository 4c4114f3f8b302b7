package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

// Strategy names the extraction step that produced a value.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyFenced    Strategy = "fenced"
	StrategyBraceScan Strategy = "brace_scan"
	StrategyFallback  Strategy = "fallback"
)

// Extraction is the result of recovering a structured value from model output.
type Extraction[T any] struct {
	Value    T
	Strategy Strategy
}

// Fallback reports whether the value is the fixed placeholder.
func (e Extraction[T]) Fallback() bool {
	return e.Strategy == StrategyFallback
}

const contentSchemaJSON = `{
  "type": "object",
  "required": ["sections"],
  "properties": {
    "title": {"type": "string"},
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "content"],
        "properties": {
          "title": {"type": "string"},
          "content": {"type": "string"},
          "keyPoints": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    },
    "keyTerms": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["term", "definition"],
        "properties": {
          "term": {"type": "string"},
          "definition": {"type": "string"}
        }
      }
    }
  }
}`

const quizSchemaJSON = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["question", "options", "correctAnswer"],
        "properties": {
          "question": {"type": "string"},
          "options": {"type": "array", "minItems": 4, "maxItems": 4, "items": {"type": "string"}},
          "correctAnswer": {"type": "integer", "minimum": 0, "maximum": 3},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

var (
	contentExtractor = extractor[lesson.Content]{schema: mustSchema(contentSchemaJSON), fallback: FallbackContent}
	quizExtractor    = extractor[lesson.Quiz]{schema: mustSchema(quizSchemaJSON), fallback: FallbackQuiz}

	fencedBlock = regexp.MustCompile("(?is)```[ \\t]*(?:json)?[ \\t]*\\r?\\n?(.*?)```")
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling schema: %v", err))
	}
	return s
}

// ExtractContent recovers a lesson body from raw model output. It never
// fails: unusable output yields FallbackContent.
func ExtractContent(raw string) Extraction[lesson.Content] {
	return contentExtractor.extract(raw)
}

// ExtractQuiz recovers a quiz from raw model output. It never fails:
// unusable output yields FallbackQuiz.
func ExtractQuiz(raw string) Extraction[lesson.Quiz] {
	return quizExtractor.extract(raw)
}

// strategy proposes candidate JSON documents found in raw text.
type strategy struct {
	name       Strategy
	candidates func(raw string) []string
}

var strategies = []strategy{
	{StrategyDirect, tryDirectParse},
	{StrategyFenced, tryFencedBlock},
	{StrategyBraceScan, tryBraceScan},
}

type extractor[T any] struct {
	schema   *gojsonschema.Schema
	fallback func() T
}

func (x extractor[T]) extract(raw string) Extraction[T] {
	for _, s := range strategies {
		for _, candidate := range s.candidates(raw) {
			if v, ok := x.decode(candidate); ok {
				return Extraction[T]{Value: v, Strategy: s.name}
			}
		}
	}
	return Extraction[T]{Value: x.fallback(), Strategy: StrategyFallback}
}

// decode accepts a candidate only if it is valid JSON of the expected shape.
func (x extractor[T]) decode(candidate string) (T, bool) {
	var zero T
	doc := []byte(candidate)
	if !json.Valid(doc) {
		return zero, false
	}
	result, err := x.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil || !result.Valid() {
		return zero, false
	}
	doc, err = normalizeNumbers(doc)
	if err != nil {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return zero, false
	}
	return v, true
}

// normalizeNumbers rewrites integral numbers such as 1.0 or 2e0 as plain
// integers. The schema accepts them as integers but encoding/json does not.
func normalizeNumbers(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(integralNumbers(v))
}

func integralNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = integralNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = integralNumbers(e)
		}
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			return t
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return t
		}
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return v
}

func tryDirectParse(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return []string{trimmed}
}

func tryFencedBlock(raw string) []string {
	var out []string
	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			out = append(out, inner)
		}
	}
	return out
}

// tryBraceScan returns brace-delimited spans, largest first: the span from
// the first '{' to the last '}', then every balanced top-level object.
func tryBraceScan(raw string) []string {
	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first < 0 || last <= first {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(raw[first : last+1])

	balanced := balancedObjects(raw)
	sort.SliceStable(balanced, func(i, j int) bool { return len(balanced[i]) > len(balanced[j]) })
	for _, b := range balanced {
		add(b)
	}
	return out
}

// balancedObjects finds top-level {...} spans, skipping braces inside JSON strings.
func balancedObjects(raw string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, raw[start:i+1])
			}
		}
	}
	return out
}

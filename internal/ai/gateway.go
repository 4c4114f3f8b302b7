// Package ai provides a provider-agnostic gateway to large language models.
// Callers depend on Completer; the Router chains concrete providers in
// fallback order.
package ai

import "context"

// TaskType labels a request for logging and model selection.
type TaskType int

const (
	TaskLessonContent TaskType = iota
	TaskQuiz
	TaskTutoring
	TaskSummary
)

func (t TaskType) String() string {
	switch t {
	case TaskLessonContent:
		return "lesson_content"
	case TaskQuiz:
		return "quiz"
	case TaskTutoring:
		return "tutoring"
	case TaskSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"` // empty selects the provider default
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks providers that support it to constrain output to a JSON object.
	JSON bool `json:"json,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Completer turns a prompt into text. It is the only capability the
// generator and tutor need.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Completer
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}

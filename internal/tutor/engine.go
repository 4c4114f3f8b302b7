// Package tutor answers student questions about a lesson, keeping one
// conversation per user and lesson.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/platform/logger"
)

const (
	defaultMaxTokens             = 1024
	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000 // ~20k tokens triggers compaction
	defaultKeepRecent            = 6
	summaryMaxTokens             = 256

	apologyReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	resetReply   = "Conversation cleared. Ask me anything about this lesson!"
)

// ErrEmptyQuestion is returned for blank input.
var ErrEmptyQuestion = errors.New("question is empty")

// Config holds dependencies for the tutor engine. Model and Lessons are required.
type Config struct {
	Model                 ai.Completer
	Lessons               lesson.Store
	Store                 ConversationStore
	Budget                ai.BudgetChecker // optional per-user daily token budget
	Logger                *logger.Logger
	MaxTokens             int
	CompactThreshold      int // messages before compaction triggers (default 20)
	CompactTokenThreshold int // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int // recent messages kept verbatim after compaction (default 6)
}

// Engine processes tutor chat turns.
type Engine struct {
	model                 ai.Completer
	lessons               lesson.Store
	store                 ConversationStore
	budget                ai.BudgetChecker
	log                   *logger.Logger
	maxTokens             int
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
}

// Question is one chat turn from a user.
type Question struct {
	LessonID string
	UserID   string
	Text     string
}

// Answer is the tutor's reply to a Question.
type Answer struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Reply          string `json:"reply"`
	Model          string `json:"model,omitempty"`
	InputTokens    int    `json:"input_tokens,omitempty"`
	OutputTokens   int    `json:"output_tokens,omitempty"`
}

// NewEngine creates a tutor engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("tutor: model is required")
	}
	if cfg.Lessons == nil {
		return nil, fmt.Errorf("tutor: lesson store is required")
	}

	e := &Engine{
		model:                 cfg.Model,
		lessons:               cfg.Lessons,
		store:                 cfg.Store,
		budget:                cfg.Budget,
		log:                   cfg.Logger.With("component", "tutor"),
		maxTokens:             cfg.MaxTokens,
		compactThreshold:      cfg.CompactThreshold,
		compactTokenThreshold: cfg.CompactTokenThreshold,
		keepRecent:            cfg.KeepRecent,
	}
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.maxTokens <= 0 {
		e.maxTokens = defaultMaxTokens
	}
	if e.compactThreshold <= 0 {
		e.compactThreshold = defaultCompactThreshold
	}
	if e.compactTokenThreshold <= 0 {
		e.compactTokenThreshold = defaultCompactTokenThreshold
	}
	if e.keepRecent <= 0 {
		e.keepRecent = defaultKeepRecent
	}
	return e, nil
}

// Ask handles one chat turn. Model failures produce an apology reply rather
// than an error; an exhausted budget returns ai.ErrBudgetExceeded.
func (e *Engine) Ask(ctx context.Context, q Question) (Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Answer{}, ErrEmptyQuestion
	}

	l, err := e.lessons.GetLesson(ctx, q.LessonID)
	if err != nil {
		return Answer{}, err
	}

	e.log.Info("processing tutor message",
		"lesson_id", q.LessonID,
		"user_id", q.UserID,
		"text_len", len(text),
	)

	if strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, q, text)
	}

	if e.budget != nil {
		if err := e.budget.Check(ctx, q.UserID); err != nil {
			if errors.Is(err, ai.ErrBudgetExceeded) {
				return Answer{}, err
			}
			e.log.Warn("budget check failed, continuing", "user_id", q.UserID, "error", err)
		}
	}

	conv, err := e.getOrCreateConversation(ctx, q)
	if err != nil {
		e.log.Error("failed to get conversation", "error", err)
		return Answer{Reply: apologyReply}, nil
	}

	if err := e.store.AddMessage(ctx, conv.ID, Message{Role: ai.RoleUser, Content: text}); err != nil {
		e.log.Error("failed to store user message", "error", err)
	}

	// Refresh to pick up the stored turn.
	if fresh, err := e.store.GetConversation(ctx, conv.ID); err == nil {
		conv = fresh
	} else {
		conv.Messages = append(conv.Messages, Message{Role: ai.RoleUser, Content: text})
	}

	e.maybeCompact(ctx, conv, q.UserID)

	messages := []ai.Message{{Role: ai.RoleSystem, Content: e.buildSystemPrompt(ctx, l)}}
	messages = append(messages, buildContextMessages(conv)...)

	resp, err := e.model.Complete(ctx, ai.CompletionRequest{
		Messages:  messages,
		Task:      ai.TaskTutoring,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		e.log.Error("tutor completion failed", "lesson_id", q.LessonID, "error", err)
		return Answer{ConversationID: conv.ID, Reply: apologyReply}, nil
	}

	if err := e.store.AddMessage(ctx, conv.ID, Message{
		Role:         ai.RoleAssistant,
		Content:      resp.Content,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}); err != nil {
		e.log.Error("failed to store assistant message", "error", err)
	}
	e.recordUsage(ctx, q.UserID, resp)

	return Answer{
		ConversationID: conv.ID,
		Reply:          resp.Content,
		Model:          resp.Model,
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
	}, nil
}

// History returns the active conversation of a user about a lesson.
func (e *Engine) History(ctx context.Context, userID, lessonID string) (*Conversation, error) {
	return e.store.ActiveConversation(ctx, userID, lessonID)
}

func (e *Engine) recordUsage(ctx context.Context, userID string, resp ai.CompletionResponse) {
	if e.budget == nil {
		return
	}
	if err := e.budget.Record(ctx, userID, resp.TotalTokens()); err != nil {
		e.log.Warn("recording token usage failed", "user_id", userID, "error", err)
	}
}

// buildContextMessages returns the conversation turns for the prompt. With a
// summary, only the turns after the compaction point follow it.
func buildContextMessages(conv *Conversation) []ai.Message {
	var messages []ai.Message
	recent := conv.Messages

	if conv.Summary != "" {
		messages = append(messages,
			ai.Message{Role: ai.RoleUser, Content: "Previous conversation summary:\n" + conv.Summary},
			ai.Message{Role: ai.RoleAssistant, Content: "Understood, I'll continue based on our previous conversation."},
		)
		if conv.CompactedAt <= len(recent) {
			recent = recent[conv.CompactedAt:]
		}
	}

	for _, m := range recent {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// estimateTokens gives a rough token count (1 token ≈ 4 chars).
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// maybeCompact folds older turns into the rolling summary when the turns
// since the last compaction exceed either threshold.
func (e *Engine) maybeCompact(ctx context.Context, conv *Conversation, userID string) {
	if conv.CompactedAt > len(conv.Messages) {
		return
	}
	uncompacted := conv.Messages[conv.CompactedAt:]
	if len(uncompacted) <= e.compactThreshold && estimateTokens(uncompacted) <= e.compactTokenThreshold {
		return
	}

	compactUpTo := len(conv.Messages) - e.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range conv.Messages[conv.CompactedAt:compactUpTo] {
		role := "Student"
		if m.Role == ai.RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := e.model.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: `Summarize this tutoring conversation concisely. Capture:
- Topics discussed and key concepts
- What the student understood or struggled with
- Any examples or problems worked through
Keep the summary under 150 words. Write in the same language used in the conversation.`},
			{Role: ai.RoleUser, Content: content.String()},
		},
		Task:      ai.TaskSummary,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		e.log.Warn("compaction failed, continuing without summary", "error", err)
		return
	}
	e.recordUsage(ctx, userID, resp)

	if err := e.store.SetSummary(ctx, conv.ID, resp.Content, compactUpTo); err != nil {
		e.log.Warn("failed to save summary", "error", err)
		return
	}

	conv.Summary = resp.Content
	conv.CompactedAt = compactUpTo

	e.log.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}

func (e *Engine) getOrCreateConversation(ctx context.Context, q Question) (*Conversation, error) {
	conv, err := e.store.ActiveConversation(ctx, q.UserID, q.LessonID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	id, err := e.store.CreateConversation(ctx, Conversation{UserID: q.UserID, LessonID: q.LessonID})
	if err != nil {
		return nil, err
	}
	return e.store.GetConversation(ctx, id)
}

func (e *Engine) handleCommand(ctx context.Context, q Question, text string) (Answer, error) {
	cmd := strings.Fields(text)[0]

	switch cmd {
	case "/reset":
		conv, err := e.store.ActiveConversation(ctx, q.UserID, q.LessonID)
		switch {
		case err == nil:
			if err := e.store.EndConversation(ctx, conv.ID); err != nil {
				e.log.Error("failed to end conversation", "error", err)
			}
		case !errors.Is(err, ErrConversationNotFound):
			e.log.Error("failed to find conversation", "error", err)
		}
		return Answer{Reply: resetReply}, nil
	default:
		return Answer{Reply: fmt.Sprintf("Unknown command: %s\nUse /reset to start over.", cmd)}, nil
	}
}

// buildSystemPrompt grounds the tutor in the lesson and its newest generated material.
func (e *Engine) buildSystemPrompt(ctx context.Context, l lesson.Lesson) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a friendly and encouraging tutor helping a student with the lesson %q", l.Title)
	if l.Subject != "" {
		fmt.Fprintf(&b, " (%s", l.Subject)
		if l.GradeLevel != "" {
			fmt.Fprintf(&b, ", grade %s", l.GradeLevel)
		}
		b.WriteString(")")
	}
	b.WriteString(".\n")
	if desc := strings.TrimSpace(l.Description); desc != "" {
		fmt.Fprintf(&b, "Lesson description: %s\n", desc)
	}

	content, err := e.lessons.LatestContent(ctx, l.ID)
	switch {
	case err == nil && !content.IsFallback:
		b.WriteString("\nLESSON MATERIAL:\n")
		for _, s := range content.Content.Sections {
			fmt.Fprintf(&b, "- %s", s.Title)
			if len(s.KeyPoints) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(s.KeyPoints, "; "))
			}
			b.WriteString("\n")
		}
		if len(content.Content.KeyTerms) > 0 {
			b.WriteString("\nKEY TERMS:\n")
			for _, t := range content.Content.KeyTerms {
				fmt.Fprintf(&b, "- %s: %s\n", t.Term, t.Definition)
			}
		}
	case err != nil && !errors.Is(err, lesson.ErrNoContent):
		e.log.Warn("loading lesson content for tutor failed", "lesson_id", l.ID, "error", err)
	}

	b.WriteString(`
TEACHING STYLE:
- Start with what the student knows and build from there
- Break complex ideas into small steps
- If the student is stuck, give a hint before the answer
- Keep responses concise; this is a chat, not a textbook

RULES:
- Stay on the topic of this lesson
- Never give answers without explanation
- Respond in the language the student uses`)
	return b.String()
}

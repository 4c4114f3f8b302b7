// Package generator turns lesson metadata into structured lesson content and
// a quiz using a language model.
//
// A run has two model calls. A failure of the content call aborts the run and
// marks the lesson failed. A failure of the quiz call degrades to a fixed
// fallback quiz. Output that is not usable JSON is recovered by ExtractContent
// and ExtractQuiz and never surfaces as an error.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/platform/logger"
)

const (
	// Temperature is used for both model calls.
	Temperature = 0.7

	DefaultContentMaxTokens = 4096
	DefaultQuizMaxTokens    = 2048
	DefaultStaleAfter       = 15 * time.Minute
)

// RegenerateMode selects how a new result is stored next to earlier ones.
type RegenerateMode string

const (
	// RegenerateInsert adds a row per run; readers use the newest.
	RegenerateInsert RegenerateMode = "insert"
	// RegenerateReplace deletes earlier rows in the same transaction as the insert.
	RegenerateReplace RegenerateMode = "replace"
)

// ErrGenerationInProgress is returned when another run holds a fresh claim on the lesson.
var ErrGenerationInProgress = errors.New("lesson generation already in progress")

// Request carries the lesson fields a run is built from.
type Request struct {
	LessonID    string
	Title       string
	Description string
	Subject     string
	GradeLevel  string
	DocumentURL string
	RequestedBy string // user that triggered the run, for events
}

// Config configures a Generator. Model and Store are required.
type Config struct {
	Model            ai.Completer
	Store            lesson.Store
	Prompts          *Prompts
	Events           EventLogger
	Logger           *logger.Logger
	ContentMaxTokens int
	QuizMaxTokens    int
	StaleAfter       time.Duration
	RegenerateMode   RegenerateMode
	Now              func() time.Time
}

// Generator runs the lesson generation pipeline.
type Generator struct {
	model            ai.Completer
	store            lesson.Store
	prompts          *Prompts
	events           EventLogger
	log              *logger.Logger
	contentMaxTokens int
	quizMaxTokens    int
	staleAfter       time.Duration
	mode             RegenerateMode
	now              func() time.Time

	wg sync.WaitGroup
}

// New creates a Generator, filling unset options with defaults.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("generator: model is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("generator: store is required")
	}

	g := &Generator{
		model:            cfg.Model,
		store:            cfg.Store,
		prompts:          cfg.Prompts,
		events:           cfg.Events,
		log:              cfg.Logger.With("component", "generator"),
		contentMaxTokens: cfg.ContentMaxTokens,
		quizMaxTokens:    cfg.QuizMaxTokens,
		staleAfter:       cfg.StaleAfter,
		mode:             cfg.RegenerateMode,
		now:              cfg.Now,
	}
	if g.prompts == nil {
		g.prompts = DefaultPrompts()
	}
	if g.events == nil {
		g.events = NopEventLogger{}
	}
	if g.contentMaxTokens <= 0 {
		g.contentMaxTokens = DefaultContentMaxTokens
	}
	if g.quizMaxTokens <= 0 {
		g.quizMaxTokens = DefaultQuizMaxTokens
	}
	if g.staleAfter <= 0 {
		g.staleAfter = DefaultStaleAfter
	}
	switch g.mode {
	case "":
		g.mode = RegenerateInsert
	case RegenerateInsert, RegenerateReplace:
	default:
		return nil, fmt.Errorf("generator: unknown regenerate mode %q", g.mode)
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Generate claims the lesson and runs the pipeline to completion.
func (g *Generator) Generate(ctx context.Context, req Request) (lesson.GeneratedContent, error) {
	if err := g.claim(ctx, req); err != nil {
		return lesson.GeneratedContent{}, err
	}
	return g.run(ctx, req)
}

// Start claims the lesson synchronously, then runs the pipeline on its own
// goroutine. The run is detached from ctx cancellation; Wait blocks until
// every started run has finished.
func (g *Generator) Start(ctx context.Context, req Request) error {
	if err := g.claim(ctx, req); err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				g.log.Error("background generation panicked", "lesson_id", req.LessonID, "error", err)
				g.markFailed(bg, req, err)
			}
		}()

		if _, err := g.run(bg, req); err != nil {
			g.log.Error("background generation failed", "lesson_id", req.LessonID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until all background runs finish or ctx is done.
func (g *Generator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// claim marks the lesson as in flight. Losing to a fresh claim is an error;
// any other store failure is logged and the run continues.
func (g *Generator) claim(ctx context.Context, req Request) error {
	now := g.now()
	won, err := g.store.ClaimProcessing(ctx, req.LessonID, now, now.Add(-g.staleAfter))
	switch {
	case errors.Is(err, lesson.ErrNotFound):
		return err
	case err != nil:
		g.log.Warn("claiming lesson failed, continuing", "lesson_id", req.LessonID, "error", err)
		return nil
	case !won:
		return ErrGenerationInProgress
	}
	return nil
}

func (g *Generator) run(ctx context.Context, req Request) (lesson.GeneratedContent, error) {
	start := g.now()
	g.logEvent(ctx, req, EventGenerationStarted, nil)

	content, contentResp, err := g.generateContent(ctx, req)
	if err != nil {
		err = fmt.Errorf("generating lesson content: %w", err)
		g.markFailed(ctx, req, err)
		return lesson.GeneratedContent{}, err
	}

	quiz, quizFallback := g.generateQuiz(ctx, req)

	row := lesson.GeneratedContent{
		LessonID:     req.LessonID,
		Content:      content.Value,
		Quiz:         quiz,
		IsFallback:   content.Fallback(),
		QuizFallback: quizFallback,
		Model:        contentResp.Model,
	}

	saved, err := g.save(ctx, row)
	if err != nil {
		err = fmt.Errorf("saving generated content: %w", err)
		g.markFailed(ctx, req, err)
		return lesson.GeneratedContent{}, err
	}

	if err := g.store.UpdateStatus(ctx, req.LessonID, true, false, ""); err != nil {
		return lesson.GeneratedContent{}, fmt.Errorf("marking lesson processed: %w", err)
	}

	elapsed := g.now().Sub(start)
	g.log.Info("lesson content generated",
		"lesson_id", req.LessonID,
		"content_id", saved.ID,
		"model", saved.Model,
		"is_fallback", saved.IsFallback,
		"quiz_fallback", saved.QuizFallback,
		"duration_ms", elapsed.Milliseconds(),
	)
	g.logEvent(ctx, req, EventGenerationCompleted, map[string]any{
		"content_id":    saved.ID,
		"model":         saved.Model,
		"is_fallback":   saved.IsFallback,
		"quiz_fallback": saved.QuizFallback,
		"sections":      len(saved.Content.Sections),
		"questions":     len(saved.Quiz.Questions),
		"duration_ms":   elapsed.Milliseconds(),
	})
	return saved, nil
}

func (g *Generator) generateContent(ctx context.Context, req Request) (Extraction[lesson.Content], ai.CompletionResponse, error) {
	resp, err := g.model.Complete(ctx, ai.CompletionRequest{
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: g.prompts.Content(req)}},
		MaxTokens:   g.contentMaxTokens,
		Temperature: Temperature,
		Task:        ai.TaskLessonContent,
		JSON:        true,
	})
	if err != nil {
		return Extraction[lesson.Content]{}, ai.CompletionResponse{}, err
	}

	content := ExtractContent(resp.Content)
	if content.Fallback() {
		g.log.Warn("lesson content unparseable, using fallback",
			"lesson_id", req.LessonID,
			"response_len", len(resp.Content),
		)
		g.logEvent(ctx, req, EventContentFallback, map[string]any{"response_len": len(resp.Content)})
	} else if content.Value.Title == "" {
		content.Value.Title = req.Title
	}
	g.log.Debug("lesson content extracted", "lesson_id", req.LessonID, "strategy", string(content.Strategy))
	return content, resp, nil
}

// generateQuiz never fails; it reports whether the fallback quiz was used.
func (g *Generator) generateQuiz(ctx context.Context, req Request) (lesson.Quiz, bool) {
	resp, err := g.model.Complete(ctx, ai.CompletionRequest{
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: g.prompts.Quiz(req)}},
		MaxTokens:   g.quizMaxTokens,
		Temperature: Temperature,
		Task:        ai.TaskQuiz,
		JSON:        true,
	})
	if err != nil {
		g.log.Warn("quiz generation failed, using fallback", "lesson_id", req.LessonID, "error", err)
		g.logEvent(ctx, req, EventQuizFallback, map[string]any{"reason": "model_error", "error": err.Error()})
		return FallbackQuiz(), true
	}

	quiz := ExtractQuiz(resp.Content)
	if quiz.Fallback() {
		g.log.Warn("quiz unparseable, using fallback", "lesson_id", req.LessonID)
		g.logEvent(ctx, req, EventQuizFallback, map[string]any{"reason": "unparseable"})
	}
	return quiz.Value, quiz.Fallback()
}

func (g *Generator) save(ctx context.Context, row lesson.GeneratedContent) (lesson.GeneratedContent, error) {
	if g.mode == RegenerateReplace {
		return g.store.ReplaceContent(ctx, row)
	}
	return g.store.InsertContent(ctx, row)
}

// markFailed clears the in-flight marker and records the error. It still
// runs when ctx was cancelled.
func (g *Generator) markFailed(ctx context.Context, req Request, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := g.store.UpdateStatus(ctx, req.LessonID, false, false, cause.Error()); err != nil {
		g.log.Error("marking lesson failed", "lesson_id", req.LessonID, "error", err)
	}
	g.log.Warn("lesson generation failed", "lesson_id", req.LessonID, "error", cause)
	g.logEvent(ctx, req, EventGenerationFailed, map[string]any{"error": cause.Error()})
}

func (g *Generator) logEvent(ctx context.Context, req Request, eventType string, data map[string]any) {
	err := g.events.LogEvent(context.WithoutCancel(ctx), Event{
		LessonID:  req.LessonID,
		UserID:    req.RequestedBy,
		Type:      eventType,
		Data:      data,
		CreatedAt: g.now(),
	})
	if err != nil {
		g.log.Warn("logging generation event failed", "type", eventType, "error", err)
	}
}

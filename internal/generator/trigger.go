package generator

import (
	"context"
	"errors"

	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

var (
	// ErrAlreadyGenerated is returned when content exists and regeneration was not requested.
	ErrAlreadyGenerated = errors.New("lesson content already generated")
	// ErrForbidden is returned when the caller does not own the lesson.
	ErrForbidden = errors.New("only the lesson owner can generate its content")
)

// TriggerOptions controls a Trigger call.
type TriggerOptions struct {
	Regenerate bool // allow a run when content already exists
	Background bool // return once the lesson is claimed
}

// Trigger outcomes.
const (
	TriggerCompleted  = "completed"
	TriggerProcessing = "processing"
)

// TriggerResult reports the outcome of Trigger. Content is set only for
// foreground runs.
type TriggerResult struct {
	LessonID string                   `json:"lesson_id"`
	Status   string                   `json:"status"`
	Content  *lesson.GeneratedContent `json:"content,omitempty"`
}

// RequestFromLesson builds a pipeline request from a stored lesson.
func RequestFromLesson(l lesson.Lesson) Request {
	return Request{
		LessonID:    l.ID,
		Title:       l.Title,
		Description: l.Description,
		Subject:     l.Subject,
		GradeLevel:  l.GradeLevel,
		DocumentURL: l.DocumentURL,
	}
}

// Trigger starts generation for a lesson on behalf of teacherID, who must
// own it.
func (g *Generator) Trigger(ctx context.Context, lessonID, teacherID string, opts TriggerOptions) (TriggerResult, error) {
	l, err := g.store.GetLesson(ctx, lessonID)
	if err != nil {
		return TriggerResult{}, err
	}
	if l.TeacherID != teacherID {
		return TriggerResult{}, ErrForbidden
	}

	if !opts.Regenerate {
		_, err := g.store.LatestContent(ctx, lessonID)
		switch {
		case err == nil:
			return TriggerResult{}, ErrAlreadyGenerated
		case !errors.Is(err, lesson.ErrNoContent):
			return TriggerResult{}, err
		}
	}

	req := RequestFromLesson(l)
	req.RequestedBy = teacherID

	if opts.Background {
		if err := g.Start(ctx, req); err != nil {
			return TriggerResult{}, err
		}
		return TriggerResult{LessonID: lessonID, Status: TriggerProcessing}, nil
	}

	content, err := g.Generate(ctx, req)
	if err != nil {
		return TriggerResult{}, err
	}
	return TriggerResult{LessonID: lessonID, Status: TriggerCompleted, Content: &content}, nil
}

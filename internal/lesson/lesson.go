// Package lesson defines lessons, their AI-generated material and the
// stores that persist both.
package lesson

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lesson does not exist.
	ErrNotFound = errors.New("lesson not found")
	// ErrNoContent is returned when a lesson has no generated content yet.
	ErrNoContent = errors.New("lesson has no generated content")
)

// Status is the processing state derived from a lesson's flags.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Lesson is a unit of teaching material owned by a teacher.
//
// AIProcessed and AIProcessingNeeded are nullable: a lesson that was never
// submitted for generation has neither set.
type Lesson struct {
	ID                    string     `json:"id"`
	TeacherID             string     `json:"teacher_id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Subject               string     `json:"subject"`
	GradeLevel            string     `json:"grade_level"`
	DocumentURL           string     `json:"document_url"`
	AIProcessed           *bool      `json:"ai_processed"`
	AIProcessingNeeded    *bool      `json:"ai_processing_needed"`
	AIProcessingStartedAt *time.Time `json:"ai_processing_started_at,omitempty"`
	AIError               string     `json:"ai_error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Status derives the processing state. An in-flight marker wins over
// everything else.
func (l Lesson) Status() Status {
	switch {
	case isTrue(l.AIProcessingNeeded):
		return StatusProcessing
	case isTrue(l.AIProcessed):
		return StatusReady
	case l.AIError != "":
		return StatusFailed
	default:
		return StatusPending
	}
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// Section is one titled part of the lesson body.
type Section struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	KeyPoints []string `json:"keyPoints"`
}

// KeyTerm is a vocabulary entry.
type KeyTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Content is the structured lesson body.
type Content struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
	KeyTerms []KeyTerm `json:"keyTerms"`
}

// Question is a four-option multiple-choice question. CorrectAnswer is a
// 0-based index into Options.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Quiz is an ordered list of questions.
type Quiz struct {
	Questions []Question `json:"questions"`
}

// GeneratedContent is one generation result. A lesson may accumulate
// several; readers use the newest.
type GeneratedContent struct {
	ID           string    `json:"id"`
	LessonID     string    `json:"lesson_id"`
	Content      Content   `json:"content"`
	Quiz         Quiz      `json:"quiz"`
	IsFallback   bool      `json:"is_fallback"`
	QuizFallback bool      `json:"quiz_fallback"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

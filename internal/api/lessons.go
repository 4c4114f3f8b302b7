package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/p-n-ai/curriculum-ai/internal/export"
	"github.com/p-n-ai/curriculum-ai/internal/generator"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

// CreateLessonRequest is the body of POST /api/lessons.
type CreateLessonRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Subject     string `json:"subject" validate:"required,max=100"`
	GradeLevel  string `json:"grade_level" validate:"required,max=50"`
	DocumentURL string `json:"document_url" validate:"required,http_url"`
}

// GenerateRequest is the optional body of the generate endpoints.
type GenerateRequest struct {
	Regenerate bool `json:"regenerate"`
}

// LessonResponse adds the derived processing status to a lesson.
type LessonResponse struct {
	lesson.Lesson
	Status lesson.Status `json:"status"`
}

func (s *server) createLesson(w http.ResponseWriter, r *http.Request) {
	var req CreateLessonRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := IdentityFrom(r.Context())
	created, err := s.lessons.CreateLesson(r.Context(), lesson.Lesson{
		TeacherID:   id.UserID,
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
		GradeLevel:  req.GradeLevel,
		DocumentURL: req.DocumentURL,
	})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("creating lesson: %w", err))
		return
	}

	s.log.Info("lesson created", "lesson_id", created.ID, "teacher_id", created.TeacherID)
	respondWithJSON(w, http.StatusCreated, LessonResponse{Lesson: created, Status: created.Status()})
}

func (s *server) getLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.lessons.GetLesson(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, LessonResponse{Lesson: l, Status: l.Status()})
}

func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, false)
}

func (s *server) generateAsync(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, true)
}

func (s *server) trigger(w http.ResponseWriter, r *http.Request, background bool) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := IdentityFrom(r.Context())
	result, err := s.generator.Trigger(r.Context(), mux.Vars(r)["id"], id.UserID, generator.TriggerOptions{
		Regenerate: req.Regenerate,
		Background: background,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	code := http.StatusOK
	if background {
		code = http.StatusAccepted
	}
	respondWithJSON(w, code, result)
}

func (s *server) getContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.latestContent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, content)
}

func (s *server) exportQuiz(w http.ResponseWriter, r *http.Request) {
	content, err := s.latestContent(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	title := content.Content.Title
	if title == "" {
		title = "Quiz"
	}
	f, err := export.QuizWorkbook(title, content.Quiz)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("building quiz workbook: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz-%s.xlsx"`, content.LessonID))
	if err := f.Write(w); err != nil {
		s.log.Error("writing quiz workbook", "lesson_id", content.LessonID, "error", err)
	}
}

// latestContent resolves the lesson first so a missing lesson and a lesson
// without content are reported distinctly.
func (s *server) latestContent(r *http.Request) (lesson.GeneratedContent, error) {
	lessonID := mux.Vars(r)["id"]
	if _, err := s.lessons.GetLesson(r.Context(), lessonID); err != nil {
		return lesson.GeneratedContent{}, err
	}
	return s.lessons.LatestContent(r.Context(), lessonID)
}

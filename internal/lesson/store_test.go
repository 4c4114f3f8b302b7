package lesson_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/platform/database/dbtest"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) lesson.Store { return lesson.NewMemoryStore() })
}

func TestPostgresStore(t *testing.T) {
	db := dbtest.New(t)
	runStoreTests(t, func(t *testing.T) lesson.Store {
		s, err := lesson.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		return s
	})
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := lesson.NewPostgresStore(nil); err == nil {
		t.Fatal("NewPostgresStore(nil) should return error")
	}
}

func newLesson(t *testing.T, s lesson.Store) lesson.Lesson {
	t.Helper()
	l, err := s.CreateLesson(context.Background(), lesson.Lesson{
		TeacherID:   "teacher-1",
		Title:       "Photosynthesis",
		Description: "How plants make food",
		Subject:     "Science",
		GradeLevel:  "6-8",
		DocumentURL: "https://example.com/photosynthesis.pdf",
	})
	if err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}
	return l
}

func sampleContent(lessonID, title string) lesson.GeneratedContent {
	return lesson.GeneratedContent{
		LessonID: lessonID,
		Content: lesson.Content{
			Title: title,
			Sections: []lesson.Section{
				{Title: "Intro", Content: "Plants use light.", KeyPoints: []string{"light", "water"}},
			},
			KeyTerms: []lesson.KeyTerm{{Term: "Chlorophyll", Definition: "Green pigment"}},
		},
		Quiz: lesson.Quiz{Questions: []lesson.Question{{
			Question:      "What do plants need?",
			Options:       []string{"Light", "Sand", "Metal", "Plastic"},
			CorrectAnswer: 0,
			Explanation:   "Light drives photosynthesis.",
		}}},
		Model: "mock",
	}
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) lesson.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)
		if l.ID == "" {
			t.Fatal("CreateLesson() returned empty ID")
		}

		got, err := s.GetLesson(ctx, l.ID)
		if err != nil {
			t.Fatalf("GetLesson() error = %v", err)
		}
		if got.Title != "Photosynthesis" || got.TeacherID != "teacher-1" {
			t.Errorf("GetLesson() = %+v", got)
		}
		if got.AIProcessed != nil || got.AIProcessingNeeded != nil {
			t.Errorf("new lesson flags = %v/%v, want nil/nil", got.AIProcessed, got.AIProcessingNeeded)
		}
		if got.Status() != lesson.StatusPending {
			t.Errorf("Status() = %q, want pending", got.Status())
		}
	})

	t.Run("missing lesson", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
			if _, err := s.GetLesson(ctx, id); !errors.Is(err, lesson.ErrNotFound) {
				t.Errorf("GetLesson(%q) error = %v, want ErrNotFound", id, err)
			}
			if err := s.UpdateStatus(ctx, id, true, false, ""); !errors.Is(err, lesson.ErrNotFound) {
				t.Errorf("UpdateStatus(%q) error = %v, want ErrNotFound", id, err)
			}
			if _, err := s.ClaimProcessing(ctx, id, time.Now(), time.Now()); !errors.Is(err, lesson.ErrNotFound) {
				t.Errorf("ClaimProcessing(%q) error = %v, want ErrNotFound", id, err)
			}
		}
	})

	t.Run("claim is exclusive until stale", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)
		start := time.Now().UTC().Truncate(time.Millisecond)

		won, err := s.ClaimProcessing(ctx, l.ID, start, start.Add(-15*time.Minute))
		if err != nil || !won {
			t.Fatalf("first ClaimProcessing() = %v, %v; want true, nil", won, err)
		}

		got, _ := s.GetLesson(ctx, l.ID)
		if got.Status() != lesson.StatusProcessing {
			t.Errorf("Status() after claim = %q, want processing", got.Status())
		}

		later := start.Add(time.Minute)
		won, err = s.ClaimProcessing(ctx, l.ID, later, later.Add(-15*time.Minute))
		if err != nil || won {
			t.Fatalf("second ClaimProcessing() = %v, %v; want false, nil", won, err)
		}

		muchLater := start.Add(20 * time.Minute)
		won, err = s.ClaimProcessing(ctx, l.ID, muchLater, muchLater.Add(-15*time.Minute))
		if err != nil || !won {
			t.Fatalf("stale ClaimProcessing() = %v, %v; want true, nil", won, err)
		}
	})

	t.Run("marker without start time is reclaimable", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)
		if err := s.UpdateStatus(ctx, l.ID, false, true, ""); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
		got, _ := s.GetLesson(ctx, l.ID)
		if got.AIProcessingStartedAt != nil || got.Status() != lesson.StatusProcessing {
			t.Fatalf("lesson = %+v, want processing without start time", got)
		}

		now := time.Now()
		won, err := s.ClaimProcessing(ctx, l.ID, now, now.Add(-15*time.Minute))
		if err != nil || !won {
			t.Fatalf("ClaimProcessing() = %v, %v; want true, nil", won, err)
		}
		got, _ = s.GetLesson(ctx, l.ID)
		if got.AIProcessingStartedAt == nil {
			t.Error("AIProcessingStartedAt should be set by the claim")
		}
	})

	t.Run("claim after completion", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)
		now := time.Now()

		if won, _ := s.ClaimProcessing(ctx, l.ID, now, now.Add(-time.Hour)); !won {
			t.Fatal("first claim should win")
		}
		if err := s.UpdateStatus(ctx, l.ID, true, false, ""); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
		if won, _ := s.ClaimProcessing(ctx, l.ID, now, now.Add(-time.Hour)); !won {
			t.Fatal("claim after completion should win")
		}
	})

	t.Run("status update records failure", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)
		now := time.Now()
		_, _ = s.ClaimProcessing(ctx, l.ID, now, now.Add(-time.Hour))

		if err := s.UpdateStatus(ctx, l.ID, false, false, "model unavailable"); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
		got, _ := s.GetLesson(ctx, l.ID)
		if got.AIProcessed == nil || *got.AIProcessed || got.AIProcessingNeeded == nil || *got.AIProcessingNeeded {
			t.Errorf("flags = %v/%v, want false/false", got.AIProcessed, got.AIProcessingNeeded)
		}
		if got.AIError != "model unavailable" || got.Status() != lesson.StatusFailed {
			t.Errorf("AIError = %q, Status = %q", got.AIError, got.Status())
		}
		if got.AIProcessingStartedAt != nil {
			t.Errorf("AIProcessingStartedAt = %v, want cleared", got.AIProcessingStartedAt)
		}

		// A new claim clears the previous failure.
		_, _ = s.ClaimProcessing(ctx, l.ID, now, now.Add(-time.Hour))
		got, _ = s.GetLesson(ctx, l.ID)
		if got.AIError != "" {
			t.Errorf("AIError after claim = %q, want empty", got.AIError)
		}
	})

	t.Run("insert keeps every row and latest wins", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)

		if _, err := s.LatestContent(ctx, l.ID); !errors.Is(err, lesson.ErrNoContent) {
			t.Fatalf("LatestContent() on empty error = %v, want ErrNoContent", err)
		}

		first, err := s.InsertContent(ctx, sampleContent(l.ID, "First"))
		if err != nil {
			t.Fatalf("InsertContent() error = %v", err)
		}
		if first.ID == "" || first.CreatedAt.IsZero() {
			t.Errorf("InsertContent() = %+v, want ID and CreatedAt", first)
		}
		time.Sleep(2 * time.Millisecond)
		if _, err := s.InsertContent(ctx, sampleContent(l.ID, "Second")); err != nil {
			t.Fatalf("InsertContent() error = %v", err)
		}

		n, err := s.CountContent(ctx, l.ID)
		if err != nil || n != 2 {
			t.Fatalf("CountContent() = %d, %v; want 2", n, err)
		}

		latest, err := s.LatestContent(ctx, l.ID)
		if err != nil {
			t.Fatalf("LatestContent() error = %v", err)
		}
		if latest.Content.Title != "Second" {
			t.Errorf("latest title = %q, want Second", latest.Content.Title)
		}
		if len(latest.Quiz.Questions) != 1 || latest.Quiz.Questions[0].Options[0] != "Light" {
			t.Errorf("latest quiz = %+v", latest.Quiz)
		}
		if latest.Content.Sections[0].KeyPoints[1] != "water" {
			t.Errorf("key points = %v", latest.Content.Sections[0].KeyPoints)
		}
	})

	t.Run("replace leaves one row", func(t *testing.T) {
		s := newStore(t)
		l := newLesson(t, s)

		_, _ = s.InsertContent(ctx, sampleContent(l.ID, "Old 1"))
		_, _ = s.InsertContent(ctx, sampleContent(l.ID, "Old 2"))

		replaced := sampleContent(l.ID, "New")
		replaced.IsFallback = true
		if _, err := s.ReplaceContent(ctx, replaced); err != nil {
			t.Fatalf("ReplaceContent() error = %v", err)
		}

		n, _ := s.CountContent(ctx, l.ID)
		if n != 1 {
			t.Errorf("CountContent() = %d, want 1", n)
		}
		latest, _ := s.LatestContent(ctx, l.ID)
		if latest.Content.Title != "New" || !latest.IsFallback {
			t.Errorf("latest = %+v, want the replacement", latest)
		}
	})

	t.Run("content for missing lesson", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.InsertContent(ctx, sampleContent("not-a-uuid", "X")); err == nil {
			t.Error("InsertContent() for a missing lesson should fail")
		}
	})
}

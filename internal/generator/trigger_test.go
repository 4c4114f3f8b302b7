package generator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
	"github.com/p-n-ai/curriculum-ai/internal/generator"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

func TestTrigger(t *testing.T) {
	tests := []struct {
		name       string
		lessonID   string
		teacherID  string
		opts       generator.TriggerOptions
		preexist   bool
		wantErr    error
		wantStatus string
	}{
		{name: "first run", lessonID: "L1", teacherID: "teacher-1", wantStatus: generator.TriggerCompleted},
		{name: "missing lesson", lessonID: "nope", teacherID: "teacher-1", wantErr: lesson.ErrNotFound},
		{name: "not the owner", lessonID: "L1", teacherID: "teacher-2", wantErr: generator.ErrForbidden},
		{name: "already generated", lessonID: "L1", teacherID: "teacher-1", preexist: true, wantErr: generator.ErrAlreadyGenerated},
		{
			name:       "regenerate",
			lessonID:   "L1",
			teacherID:  "teacher-1",
			preexist:   true,
			opts:       generator.TriggerOptions{Regenerate: true},
			wantStatus: generator.TriggerCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, generator.Config{},
				ai.MockReply{Content: contentJSON},
				ai.MockReply{Content: quizJSON},
				ai.MockReply{Content: contentJSON},
				ai.MockReply{Content: quizJSON},
			)
			ctx := context.Background()
			if tt.preexist {
				if _, err := f.gen.Generate(ctx, l1Request()); err != nil {
					t.Fatalf("seeding Generate() error = %v", err)
				}
			}

			got, err := f.gen.Trigger(ctx, tt.lessonID, tt.teacherID, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Trigger() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Trigger() error = %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Content == nil || got.Content.LessonID != "L1" {
				t.Errorf("Content = %+v", got.Content)
			}
		})
	}
}

func TestTrigger_Background(t *testing.T) {
	f := newFixture(t, generator.Config{},
		ai.MockReply{Content: contentJSON},
		ai.MockReply{Content: quizJSON},
	)

	got, err := f.gen.Trigger(context.Background(), "L1", "teacher-1", generator.TriggerOptions{Background: true})
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got.Status != generator.TriggerProcessing || got.Content != nil {
		t.Errorf("Trigger() = %+v, want processing without content", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.gen.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if n := countRows(t, f.store); n != 1 {
		t.Errorf("content rows = %d, want 1", n)
	}
}

func TestRequestFromLesson(t *testing.T) {
	l := lesson.Lesson{ID: "L1", Title: "T", Description: "D", Subject: "S", GradeLevel: "G", DocumentURL: "U"}
	got := generator.RequestFromLesson(l)
	want := generator.Request{LessonID: "L1", Title: "T", Description: "D", Subject: "S", GradeLevel: "G", DocumentURL: "U"}
	if got != want {
		t.Errorf("RequestFromLesson() = %+v, want %+v", got, want)
	}
}

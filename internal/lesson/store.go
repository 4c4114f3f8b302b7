package lesson

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists lessons and their generated content.
type Store interface {
	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	// ClaimProcessing marks the lesson as in flight unless a claim newer
	// than staleBefore already exists. It reports whether the claim was won.
	ClaimProcessing(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	// UpdateStatus sets both processing flags. A non-empty errMsg is
	// recorded as the lesson's last failure.
	UpdateStatus(ctx context.Context, id string, processed, needed bool, errMsg string) error
	InsertContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error)
	// ReplaceContent deletes every earlier row of the lesson and inserts c atomically.
	ReplaceContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error)
	LatestContent(ctx context.Context, lessonID string) (GeneratedContent, error)
	CountContent(ctx context.Context, lessonID string) (int, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	lessons  map[string]*Lesson
	contents map[string][]GeneratedContent // lessonID -> rows, oldest first
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lessons:  make(map[string]*Lesson),
		contents: make(map[string][]GeneratedContent),
		now:      time.Now,
	}
}

// CreateLesson stores l. A preset ID is kept, otherwise a UUID is assigned.
func (s *MemoryStore) CreateLesson(_ context.Context, l Lesson) (Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if _, exists := s.lessons[l.ID]; exists {
		return Lesson{}, fmt.Errorf("lesson %s already exists", l.ID)
	}
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	stored := l
	s.lessons[l.ID] = &stored
	return l, nil
}

func (s *MemoryStore) GetLesson(_ context.Context, id string) (Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return copyLesson(l), nil
}

func (s *MemoryStore) ClaimProcessing(_ context.Context, id string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok {
		return false, ErrNotFound
	}
	// A marker without a start time cannot age out, so it counts as stale.
	inFlight := isTrue(l.AIProcessingNeeded) &&
		l.AIProcessingStartedAt != nil && !l.AIProcessingStartedAt.Before(staleBefore)
	if inFlight {
		return false, nil
	}

	l.AIProcessingNeeded = boolPtr(true)
	started := now
	l.AIProcessingStartedAt = &started
	l.AIError = ""
	l.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, processed, needed bool, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok {
		return ErrNotFound
	}
	l.AIProcessed = boolPtr(processed)
	l.AIProcessingNeeded = boolPtr(needed)
	if !needed {
		l.AIProcessingStartedAt = nil
	}
	l.AIError = errMsg
	l.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) InsertContent(_ context.Context, c GeneratedContent) (GeneratedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(c)
}

func (s *MemoryStore) ReplaceContent(_ context.Context, c GeneratedContent) (GeneratedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[c.LessonID]; !ok {
		return GeneratedContent{}, ErrNotFound
	}
	delete(s.contents, c.LessonID)
	return s.insertLocked(c)
}

func (s *MemoryStore) insertLocked(c GeneratedContent) (GeneratedContent, error) {
	if _, ok := s.lessons[c.LessonID]; !ok {
		return GeneratedContent{}, ErrNotFound
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now()
	s.contents[c.LessonID] = append(s.contents[c.LessonID], c)
	return c, nil
}

func (s *MemoryStore) LatestContent(_ context.Context, lessonID string) (GeneratedContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.contents[lessonID]
	if len(rows) == 0 {
		return GeneratedContent{}, ErrNoContent
	}
	return rows[len(rows)-1], nil
}

func (s *MemoryStore) CountContent(_ context.Context, lessonID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contents[lessonID]), nil
}

func copyLesson(l *Lesson) Lesson {
	out := *l
	if l.AIProcessed != nil {
		out.AIProcessed = boolPtr(*l.AIProcessed)
	}
	if l.AIProcessingNeeded != nil {
		out.AIProcessingNeeded = boolPtr(*l.AIProcessingNeeded)
	}
	if l.AIProcessingStartedAt != nil {
		t := *l.AIProcessingStartedAt
		out.AIProcessingStartedAt = &t
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

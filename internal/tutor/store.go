package tutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// no active one matches.
var ErrConversationNotFound = errors.New("conversation not found")

// Message is a single turn in a conversation.
type Message struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation is a chat session between one user and the tutor about one lesson.
type Conversation struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	Messages    []Message  `json:"messages"`
	Summary     string     `json:"summary,omitempty"`
	CompactedAt int        `json:"compacted_at,omitempty"` // number of messages folded into Summary
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// ConversationStore persists conversations and their message history.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv Conversation) (string, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ActiveConversation returns the open conversation of userID about
	// lessonID, or ErrConversationNotFound.
	ActiveConversation(ctx context.Context, userID, lessonID string) (*Conversation, error)
	AddMessage(ctx context.Context, conversationID string, msg Message) error
	SetSummary(ctx context.Context, conversationID, summary string, compactedAt int) error
	EndConversation(ctx context.Context, id string) error
}

// MemoryStore is an in-memory ConversationStore.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv Conversation) (string, error) {
	if conv.UserID == "" || conv.LessonID == "" {
		return "", fmt.Errorf("user_id and lesson_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv.ID = uuid.NewString()
	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now()
	}
	conv.Messages = append([]Message{}, conv.Messages...)
	s.conversations[conv.ID] = &conv
	return conv.ID, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) ActiveConversation(_ context.Context, userID, lessonID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID || conv.LessonID != lessonID || conv.EndedAt != nil {
			continue
		}
		if newest == nil || conv.StartedAt.After(newest.StartedAt) {
			newest = conv
		}
	}
	if newest == nil {
		return nil, ErrConversationNotFound
	}
	return copyConversation(newest), nil
}

func (s *MemoryStore) AddMessage(_ context.Context, conversationID string, msg Message) error {
	if msg.Role == "" || msg.Content == "" {
		return fmt.Errorf("message role and content are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

func (s *MemoryStore) SetSummary(_ context.Context, conversationID, summary string, compactedAt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Summary = summary
	conv.CompactedAt = compactedAt
	return nil
}

func (s *MemoryStore) EndConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	now := time.Now()
	conv.EndedAt = &now
	return nil
}

func copyConversation(c *Conversation) *Conversation {
	out := *c
	out.Messages = append([]Message{}, c.Messages...)
	if c.EndedAt != nil {
		ended := *c.EndedAt
		out.EndedAt = &ended
	}
	return &out
}

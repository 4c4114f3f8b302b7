package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed ConversationStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a conversation store on the conversations and messages tables.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv Conversation) (string, error) {
	if conv.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	if !isUUID(conv.LessonID) {
		return "", fmt.Errorf("invalid lesson_id %q", conv.LessonID)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	startedAt := conv.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id string
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, lesson_id, started_at)
		 VALUES ($1, $2::uuid, $3)
		 RETURNING id::text`,
		conv.UserID,
		conv.LessonID,
		startedAt,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	for _, msg := range conv.Messages {
		if err := s.AddMessage(ctx, id, msg); err != nil {
			return "", fmt.Errorf("save initial messages: %w", err)
		}
	}
	return id, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if !isUUID(id) {
		return nil, ErrConversationNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	conv, err := s.getConversationByQuery(ctx,
		`SELECT id::text, user_id, lesson_id::text, summary, compacted_at, started_at, ended_at
		 FROM conversations
		 WHERE id = $1::uuid`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *PostgresStore) ActiveConversation(ctx context.Context, userID, lessonID string) (*Conversation, error) {
	if !isUUID(lessonID) {
		return nil, ErrConversationNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	conv, err := s.getConversationByQuery(ctx,
		`SELECT id::text, user_id, lesson_id::text, summary, compacted_at, started_at, ended_at
		 FROM conversations
		 WHERE user_id = $1
		   AND lesson_id = $2::uuid
		   AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID,
		lessonID,
	)
	if err != nil {
		return nil, err
	}
	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, conversationID string, msg Message) error {
	if msg.Role == "" || msg.Content == "" {
		return fmt.Errorf("message role and content are required")
	}
	if !isUUID(conversationID) {
		return ErrConversationNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content, model, input_tokens, output_tokens, created_at)
		 SELECT c.id, $2, $3, $4, $5, $6, $7
		 FROM conversations c
		 WHERE c.id = $1::uuid`,
		conversationID,
		msg.Role,
		msg.Content,
		msg.Model,
		msg.InputTokens,
		msg.OutputTokens,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, conversationID, summary string, compactedAt int) error {
	return s.execOne(ctx, "set summary",
		`UPDATE conversations SET summary = $2, compacted_at = $3 WHERE id = $1::uuid`,
		conversationID, summary, compactedAt,
	)
}

func (s *PostgresStore) EndConversation(ctx context.Context, id string) error {
	return s.execOne(ctx, "end conversation",
		`UPDATE conversations SET ended_at = now() WHERE id = $1::uuid AND ended_at IS NULL`,
		id,
	)
}

// execOne runs an update keyed by conversation id and maps a miss to
// ErrConversationNotFound.
func (s *PostgresStore) execOne(ctx context.Context, op, query string, id string, args ...any) error {
	if !isUUID(id) {
		return ErrConversationNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) getConversationByQuery(ctx context.Context, query string, args ...any) (*Conversation, error) {
	conv := &Conversation{Messages: []Message{}}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.LessonID,
		&conv.Summary,
		&conv.CompactedAt,
		&conv.StartedAt,
		&conv.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) loadMessages(ctx context.Context, conv *Conversation) error {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, model, input_tokens, output_tokens, created_at
		 FROM messages
		 WHERE conversation_id = $1::uuid
		 ORDER BY id ASC`,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Role,
			&msg.Content,
			&msg.Model,
			&msg.InputTokens,
			&msg.OutputTokens,
			&msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	return nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

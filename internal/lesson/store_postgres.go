package lesson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/curriculum-ai/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const lessonColumns = `id::text, teacher_id, title, description, subject, grade_level, document_url,
	ai_processed, ai_processing_needed, ai_processing_started_at, COALESCE(ai_error, ''),
	created_at, updated_at`

func scanLesson(row pgx.Row) (Lesson, error) {
	var l Lesson
	err := row.Scan(
		&l.ID, &l.TeacherID, &l.Title, &l.Description, &l.Subject, &l.GradeLevel, &l.DocumentURL,
		&l.AIProcessed, &l.AIProcessingNeeded, &l.AIProcessingStartedAt, &l.AIError,
		&l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func (s *PostgresStore) CreateLesson(ctx context.Context, l Lesson) (Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if l.ID == "" {
		l.ID = uuid.NewString()
	} else if _, err := uuid.Parse(l.ID); err != nil {
		return Lesson{}, fmt.Errorf("lesson id %q is not a UUID", l.ID)
	}

	created, err := scanLesson(s.pool.QueryRow(ctx,
		`INSERT INTO lessons (id, teacher_id, title, description, subject, grade_level, document_url)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING `+lessonColumns,
		l.ID, l.TeacherID, l.Title, l.Description, l.Subject, l.GradeLevel, l.DocumentURL,
	))
	if err != nil {
		return Lesson{}, fmt.Errorf("create lesson: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetLesson(ctx context.Context, id string) (Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Lesson{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	l, err := scanLesson(s.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lesson{}, ErrNotFound
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) ClaimProcessing(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	// One conditional UPDATE, so two racing claims cannot both win.
	tag, err := s.pool.Exec(ctx,
		`UPDATE lessons
		 SET ai_processing_needed = true,
		     ai_processing_started_at = $2,
		     ai_error = NULL,
		     updated_at = $2
		 WHERE id = $1::uuid
		   AND (ai_processing_needed IS NOT TRUE
		        OR ai_processing_started_at IS NULL
		        OR ai_processing_started_at < $3)`,
		id, now, staleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("claim lesson: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetLesson(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, processed, needed bool, errMsg string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE lessons
		 SET ai_processed = $2,
		     ai_processing_needed = $3,
		     ai_processing_started_at = CASE WHEN $3 THEN ai_processing_started_at ELSE NULL END,
		     ai_error = NULLIF($4, ''),
		     updated_at = now()
		 WHERE id = $1::uuid`,
		id, processed, needed, errMsg,
	)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertContent(ctx context.Context, q querier, c GeneratedContent) (GeneratedContent, error) {
	content, err := json.Marshal(c.Content)
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("marshal content: %w", err)
	}
	quiz, err := json.Marshal(c.Quiz)
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("marshal quiz: %w", err)
	}

	err = q.QueryRow(ctx,
		`INSERT INTO generated_content (lesson_id, content, quiz, is_fallback, quiz_fallback, model)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)
		 RETURNING id::text, created_at`,
		c.LessonID, content, quiz, c.IsFallback, c.QuizFallback, c.Model,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("insert generated content: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) InsertContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error) {
	if _, err := uuid.Parse(c.LessonID); err != nil {
		return GeneratedContent{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return insertContent(ctx, s.pool, c)
}

func (s *PostgresStore) ReplaceContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error) {
	if _, err := uuid.Parse(c.LessonID); err != nil {
		return GeneratedContent{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var saved GeneratedContent
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM generated_content WHERE lesson_id = $1::uuid`, c.LessonID); err != nil {
			return fmt.Errorf("delete previous content: %w", err)
		}
		var err error
		saved, err = insertContent(ctx, tx, c)
		return err
	})
	if err != nil {
		return GeneratedContent{}, err
	}
	return saved, nil
}

func (s *PostgresStore) LatestContent(ctx context.Context, lessonID string) (GeneratedContent, error) {
	if _, err := uuid.Parse(lessonID); err != nil {
		return GeneratedContent{}, ErrNoContent
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c GeneratedContent
	var content, quiz []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, lesson_id::text, content, quiz, is_fallback, quiz_fallback, model, created_at
		 FROM generated_content
		 WHERE lesson_id = $1::uuid
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		lessonID,
	).Scan(&c.ID, &c.LessonID, &content, &quiz, &c.IsFallback, &c.QuizFallback, &c.Model, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GeneratedContent{}, ErrNoContent
	}
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("latest generated content: %w", err)
	}

	if err := json.Unmarshal(content, &c.Content); err != nil {
		return GeneratedContent{}, fmt.Errorf("decode content: %w", err)
	}
	if err := json.Unmarshal(quiz, &c.Quiz); err != nil {
		return GeneratedContent{}, fmt.Errorf("decode quiz: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CountContent(ctx context.Context, lessonID string) (int, error) {
	if _, err := uuid.Parse(lessonID); err != nil {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM generated_content WHERE lesson_id = $1::uuid`, lessonID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count generated content: %w", err)
	}
	return n, nil
}

// Package export renders generated lesson material to office formats.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

const (
	// QuizSheet is the worksheet that holds the questions.
	QuizSheet = "Quiz"
	// ContentType is the MIME type of the workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var quizHeader = []any{"#", "Question", "Option A", "Option B", "Option C", "Option D", "Correct", "Explanation"}

// WriteQuiz writes quiz as an .xlsx workbook with one row per question.
func WriteQuiz(w io.Writer, title string, quiz lesson.Quiz) error {
	f, err := QuizWorkbook(title, quiz)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// QuizWorkbook builds the workbook for quiz. The caller must Close it.
func QuizWorkbook(title string, quiz lesson.Quiz) (*excelize.File, error) {
	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	if err := f.SetSheetName("Sheet1", QuizSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   title,
		Subject: "Lesson quiz",
		Creator: "Curriculum AI",
	}); err != nil {
		return nil, fmt.Errorf("setting document properties: %w", err)
	}

	if err := f.SetSheetRow(QuizSheet, "A1", &quizHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0EBF5"}},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(QuizSheet, "A1", "H1", bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	for i, q := range quiz.Questions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := questionRow(i+1, q)
		if err := f.SetSheetRow(QuizSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing question %d: %w", i+1, err)
		}
	}

	for _, col := range []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 5},
		{"B", "B", 50},
		{"C", "F", 24},
		{"G", "G", 9},
		{"H", "H", 60},
	} {
		if err := f.SetColWidth(QuizSheet, col.from, col.to, col.width); err != nil {
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}
	if err := f.SetPanes(QuizSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freezing header: %w", err)
	}

	ok = true
	return f, nil
}

func questionRow(n int, q lesson.Question) []any {
	row := []any{n, q.Question}
	for i := 0; i < 4; i++ {
		opt := ""
		if i < len(q.Options) {
			opt = q.Options[i]
		}
		row = append(row, opt)
	}
	return append(row, answerLetter(q.CorrectAnswer), q.Explanation)
}

// answerLetter maps a 0-based option index to A-D.
func answerLetter(i int) string {
	if i < 0 || i > 3 {
		return ""
	}
	return string(rune('A' + i))
}

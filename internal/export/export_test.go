package export_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/curriculum-ai/internal/export"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
)

func readRows(t *testing.T, buf *bytes.Buffer) (*excelize.File, [][]string) {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(export.QuizSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	return f, rows
}

func TestWriteQuiz(t *testing.T) {
	quiz := lesson.Quiz{Questions: []lesson.Question{
		{
			Question:      "Where does photosynthesis happen?",
			Options:       []string{"Mitochondria", "Chloroplast", "Nucleus", "Ribosome"},
			CorrectAnswer: 1,
			Explanation:   "Chloroplasts hold chlorophyll.",
		},
		{
			Question:      "Which gas is released?",
			Options:       []string{"Oxygen", "Nitrogen", "Helium", "Argon"},
			CorrectAnswer: 0,
			Explanation:   "Water is split and oxygen is released.",
		},
	}}

	var buf bytes.Buffer
	if err := export.WriteQuiz(&buf, "Photosynthesis", quiz); err != nil {
		t.Fatalf("WriteQuiz() error = %v", err)
	}

	f, rows := readRows(t, &buf)

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, []string{"Quiz"}) {
		t.Errorf("GetSheetList() = %v, want [Quiz]", sheets)
	}

	want := [][]string{
		{"#", "Question", "Option A", "Option B", "Option C", "Option D", "Correct", "Explanation"},
		{"1", "Where does photosynthesis happen?", "Mitochondria", "Chloroplast", "Nucleus", "Ribosome", "B", "Chloroplasts hold chlorophyll."},
		{"2", "Which gas is released?", "Oxygen", "Nitrogen", "Helium", "Argon", "A", "Water is split and oxygen is released."},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q\nwant %q", rows, want)
	}

	props, err := f.GetDocProps()
	if err != nil {
		t.Fatalf("GetDocProps() error = %v", err)
	}
	if props.Title != "Photosynthesis" {
		t.Errorf("Title = %q, want Photosynthesis", props.Title)
	}

	styleID, err := f.GetCellStyle(export.QuizSheet, "A1")
	if err != nil {
		t.Fatalf("GetCellStyle() error = %v", err)
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		t.Fatalf("GetStyle() error = %v", err)
	}
	if style.Font == nil || !style.Font.Bold {
		t.Error("header row should be bold")
	}
}

func TestWriteQuiz_ShortOptions(t *testing.T) {
	quiz := lesson.Quiz{Questions: []lesson.Question{
		{Question: "True or false?", Options: []string{"True", "False"}, CorrectAnswer: 0, Explanation: "It is true."},
	}}

	var buf bytes.Buffer
	if err := export.WriteQuiz(&buf, "Logic", quiz); err != nil {
		t.Fatalf("WriteQuiz() error = %v", err)
	}
	_, rows := readRows(t, &buf)

	want := []string{"1", "True or false?", "True", "False", "", "", "A", "It is true."}
	if len(rows) != 2 || !reflect.DeepEqual(rows[1], want) {
		t.Errorf("rows = %q, want second row %q", rows, want)
	}
}

func TestWriteQuiz_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteQuiz(&buf, "Empty", lesson.Quiz{}); err != nil {
		t.Fatalf("WriteQuiz() error = %v", err)
	}
	_, rows := readRows(t, &buf)
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want header only", len(rows))
	}
}

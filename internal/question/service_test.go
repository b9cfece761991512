package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestNormalizeOptions(t *testing.T) {
	got := NormalizeOptions(map[string]string{
		" a ": " Lithium ",
		"b":   "",
		"Z":   "out of range",
		"C":   "Valproate",
	})
	if len(got) != 2 || got.Get("A") != "Lithium" || got.Get("C") != "Valproate" {
		t.Fatalf("unexpected options: %#v", got)
	}
	if got.Has("B") || got.Has("Z") {
		t.Fatalf("empty and unknown letters must be dropped: %#v", got)
	}
	if NormalizeOptions(map[string]string{"b": " "}) != nil {
		t.Fatalf("expected nil when nothing is left")
	}
}

func TestOptionsLettersSorted(t *testing.T) {
	o := Options{"D": "d", "A": "a", "C": "c"}
	letters := o.Letters()
	want := []string{"A", "C", "D"}
	if len(letters) != len(want) {
		t.Fatalf("unexpected letters: %v", letters)
	}
	for i := range want {
		if letters[i] != want[i] {
			t.Fatalf("unexpected letters: %v", letters)
		}
	}
}

func TestRecordCloneDoesNotAlias(t *testing.T) {
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	orig := Record{
		Text:      "Which drug?",
		Options:   Options{"A": "Lithium"},
		CreatedAt: &at,
		StudyData: json.RawMessage(`{"ease":2.5}`),
	}
	c := orig.Clone()
	c.Options["A"] = "changed"
	c.StudyData[0] = '['
	*c.CreatedAt = at.Add(time.Hour)

	if orig.Options["A"] != "Lithium" || orig.StudyData[0] != '{' || !orig.CreatedAt.Equal(at) {
		t.Fatalf("clone aliased the original: %+v", orig)
	}
}

func TestRecordNormalize(t *testing.T) {
	r := Record{
		ID:            " q-1 ",
		Text:          "  Which drug?  ",
		Options:       Options{"a": " Lithium "},
		CorrectAnswer: " a ",
		Part:          " 1 ",
		Creator:       " dr.rahma ",
	}.Normalize()
	if r.ID != "q-1" || r.Text != "Which drug?" || r.CorrectAnswer != "A" || r.Part != "1" || r.Creator != "dr.rahma" {
		t.Fatalf("unexpected normalized record: %+v", r)
	}
	if r.Options.Get("A") != "Lithium" {
		t.Fatalf("unexpected options: %#v", r.Options)
	}
}

func TestSaveBatchRejectsRecordWithoutText(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.SaveBatch(context.Background(), "dr.rahma", []Record{{Text: "ok"}, {Text: "  "}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSaveBatchRequiresOwner(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.SaveBatch(context.Background(), " ", []Record{{Text: "ok"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSaveBatchRejectsForeignCreator(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.SaveBatch(context.Background(), "mallory", []Record{
		{Text: "ok"},
		{ID: "q-1", Text: "rewritten", Creator: "rahma"},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListCorpusRejectsNegativeLimit(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.ListCorpus(context.Background(), CorpusFilter{Limit: -1})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetQuestionRequiresID(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.GetQuestion(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return &buf
}

func TestParseExcelReportsRowErrors(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Text", "option_a", "option_b", "correct_answer", "part"},
		{"Which drug?", "Lithium", "Valproate", "a", "1"},
		{"", "x", "y", "", "1"},
		{},
		{"Bell palsy nerve?", "VII", "", "B", "2"},
	})

	report, err := ParseExcel(buf)
	if err != nil {
		t.Fatalf("ParseExcel: %v", err)
	}
	if report.TotalRows != 3 || report.ParsedRows != 1 || report.FailedRows != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Errors[0].Row != 3 || report.Errors[1].Row != 5 {
		t.Fatalf("unexpected error rows: %+v", report.Errors)
	}
	rec := report.Records[0]
	if rec.CorrectAnswer != "A" || rec.Options.Get("B") != "Valproate" || rec.Part != "1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestParseExcelStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		in   *bytes.Buffer
	}{
		{"not a workbook", bytes.NewBufferString("plain text")},
		{"header only", buildWorkbook(t, [][]any{{"text"}})},
		{"missing text column", buildWorkbook(t, [][]any{{"option_a"}, {"Lithium"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseExcel(tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestWriteExcelReadsBack(t *testing.T) {
	at := time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)
	in := []Record{{
		ID:            "q-1",
		Text:          "Which drug?",
		Options:       Options{"A": "Lithium", "E": "Clozapine"},
		CorrectAnswer: "E",
		Part:          "1",
		Creator:       "dr.rahma",
		CreatedAt:     &at,
	}}
	raw, err := WriteExcel(in)
	if err != nil {
		t.Fatalf("WriteExcel: %v", err)
	}

	report, err := ParseExcel(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseExcel: %v", err)
	}
	if report.ParsedRows != 1 {
		t.Fatalf("expected one parsed row, got %+v", report)
	}
	got := report.Records[0]
	if got.ID != "q-1" || got.CorrectAnswer != "E" || got.Options.Get("E") != "Clozapine" || got.Options.Has("B") {
		t.Fatalf("unexpected record: %+v", got)
	}
}

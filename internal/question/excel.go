package question

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport is the outcome of parsing a spreadsheet. Rows that fail
// validation are reported and left out of Records.
type ImportReport struct {
	TotalRows  int              `json:"total_rows"`
	ParsedRows int              `json:"parsed_rows"`
	FailedRows int              `json:"failed_rows"`
	Errors     []ImportRowError `json:"errors"`
	Records    []Record         `json:"-"`
}

var baseHeaders = []string{"text", "correct_answer", "explanation", "category", "part", "year", "number"}

func optionHeader(letter string) string {
	return "option_" + strings.ToLower(letter)
}

// ExcelHeaders returns the column layout used for export, which ParseExcel
// also accepts in any order.
func ExcelHeaders() []string {
	out := make([]string, 0, 2+len(baseHeaders)+len(OptionLetters))
	out = append(out, "id", "text")
	for _, l := range OptionLetters {
		out = append(out, optionHeader(l))
	}
	out = append(out, baseHeaders[1:]...)
	out = append(out, "creator", "is_public", "created_at")
	return out
}

// ParseExcel reads candidate questions from the first sheet. Only the text
// column is required; option_a..option_o are picked up when present.
func ParseExcel(r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel: %v", ErrInvalidInput, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := header["text"]; !ok {
		return nil, fmt.Errorf("%w: missing required column: text", ErrInvalidInput)
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0), Records: make([]Record, 0, len(rows)-1)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		report.TotalRows++

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		rec := Record{
			ID:            get("id"),
			Text:          get("text"),
			CorrectAnswer: strings.ToUpper(get("correct_answer")),
			Explanation:   get("explanation"),
			Category:      get("category"),
			Part:          get("part"),
			Year:          get("year"),
			Number:        get("number"),
		}
		opts := make(map[string]string)
		for _, l := range OptionLetters {
			if v := get(optionHeader(l)); v != "" {
				opts[l] = v
			}
		}
		rec.Options = NormalizeOptions(opts)

		if err := validateImportRow(rec); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}
		report.ParsedRows++
		report.Records = append(report.Records, rec)
	}
	if report.TotalRows == 0 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}
	return report, nil
}

func validateImportRow(rec Record) error {
	if !rec.HasText() {
		return errors.New("text is required")
	}
	if rec.CorrectAnswer != "" && !rec.Options.Has(rec.CorrectAnswer) {
		return fmt.Errorf("correct_answer %q has no matching option", rec.CorrectAnswer)
	}
	return nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteExcel renders records as a single-sheet workbook.
func WriteExcel(records []Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	headers := ExcelHeaders()
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, rec := range records {
		row := i + 2
		values := make([]any, 0, len(headers))
		values = append(values, rec.ID, rec.Text)
		for _, l := range OptionLetters {
			values = append(values, rec.Options.Get(l))
		}
		createdAt := ""
		if rec.CreatedAt != nil {
			createdAt = rec.CreatedAt.UTC().Format(time.RFC3339)
		}
		values = append(values,
			rec.CorrectAnswer,
			rec.Explanation,
			rec.Category,
			rec.Part,
			rec.Year,
			rec.Number,
			rec.Creator,
			rec.IsPublic,
			createdAt,
		)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "B", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

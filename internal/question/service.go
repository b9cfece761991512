package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrForbidden        = errors.New("question belongs to another creator")
)

// Service persists the question corpus in Postgres.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// CorpusFilter narrows ListCorpus. Empty fields match everything.
type CorpusFilter struct {
	Creator       string
	Part          string
	IncludePublic bool
	Limit         int
}

// SaveReport summarizes one SaveBatch call.
type SaveReport struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	IDs      []string `json:"ids"`
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	options        JSONB NOT NULL DEFAULT '{}'::jsonb,
	correct_answer TEXT NOT NULL DEFAULT '',
	explanation    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	part           TEXT NOT NULL DEFAULT '',
	year           TEXT NOT NULL DEFAULT '',
	number         TEXT NOT NULL DEFAULT '',
	creator        TEXT NOT NULL DEFAULT '',
	is_public      BOOLEAN NOT NULL DEFAULT FALSE,
	study_data     JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_questions_creator_part ON questions (creator, part);
`

const selectColumns = `id, text, options, correct_answer, explanation, category, part, year, number,
	creator, is_public, study_data, created_at`

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Migrate creates the questions table when it does not exist.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate questions: %w", err)
	}
	return nil
}

// ListCorpus loads the existing questions a batch is compared against,
// oldest first.
func (s *Service) ListCorpus(ctx context.Context, f CorpusFilter) ([]Record, error) {
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", ErrInvalidInput)
	}

	query := `SELECT ` + selectColumns + ` FROM questions WHERE 1=1`
	args := make([]any, 0, 3)
	if creator := strings.TrimSpace(f.Creator); creator != "" {
		args = append(args, creator)
		if f.IncludePublic {
			query += fmt.Sprintf(` AND (creator = $%d OR is_public)`, len(args))
		} else {
			query += fmt.Sprintf(` AND creator = $%d`, len(args))
		}
	}
	if part := strings.TrimSpace(f.Part); part != "" {
		args = append(args, part)
		query += fmt.Sprintf(` AND part = $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

// GetQuestion loads a single record by id.
func (s *Service) GetQuestion(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM questions WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &rec, nil
}

// SaveBatch persists a resolved batch for owner in one transaction. A record
// whose id exists is updated in place, and only when owner owns it. Other
// records are inserted under their own id, or a fresh one when they have
// none, so replaying a batch with the same ids does not duplicate rows.
func (s *Service) SaveBatch(ctx context.Context, owner string, records []Record) (*SaveReport, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	for i, rec := range records {
		if !rec.HasText() {
			return nil, fmt.Errorf("%w: record %d has no text", ErrInvalidInput, i)
		}
		if c := strings.TrimSpace(rec.Creator); c != "" && c != owner {
			return nil, fmt.Errorf("%w: record %d is owned by %s", ErrForbidden, i, c)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	report := &SaveReport{IDs: make([]string, 0, len(records))}
	now := s.now().UTC()
	for i, raw := range records {
		rec := raw.Normalize()
		rec.Creator = owner
		options, err := json.Marshal(optionsOrEmpty(rec.Options))
		if err != nil {
			return nil, fmt.Errorf("encode options for record %d: %w", i, err)
		}

		exists := false
		if rec.ID != "" {
			var current string
			err := tx.QueryRowContext(ctx, `SELECT creator FROM questions WHERE id = $1 FOR UPDATE`, rec.ID).Scan(&current)
			switch {
			case err == nil:
				if current != owner {
					return nil, fmt.Errorf("%w: question %s", ErrForbidden, rec.ID)
				}
				exists = true
			case errors.Is(err, sql.ErrNoRows):
			default:
				return nil, fmt.Errorf("lock question %s: %w", rec.ID, err)
			}
		}

		if exists {
			if _, err := tx.ExecContext(ctx, `
				UPDATE questions
				SET text = $2, options = $3::jsonb, correct_answer = $4, explanation = $5,
					category = $6, part = $7, year = $8, number = $9,
					is_public = $10, study_data = $11::jsonb, updated_at = $12
				WHERE id = $1 AND creator = $13
			`, rec.ID, rec.Text, options, rec.CorrectAnswer, rec.Explanation,
				rec.Category, rec.Part, rec.Year, rec.Number,
				rec.IsPublic, nullJSON(rec.StudyData), now, owner); err != nil {
				return nil, fmt.Errorf("update question %s: %w", rec.ID, err)
			}
			report.Updated++
			report.IDs = append(report.IDs, rec.ID)
			continue
		}

		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := now
		if rec.CreatedAt != nil {
			createdAt = rec.CreatedAt.UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questions (
				id, text, options, correct_answer, explanation, category, part, year, number,
				creator, is_public, study_data, created_at, updated_at
			) VALUES (
				$1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9,
				$10, $11, $12::jsonb, $13, $14
			)
		`, id, rec.Text, options, rec.CorrectAnswer, rec.Explanation, rec.Category, rec.Part, rec.Year, rec.Number,
			rec.Creator, rec.IsPublic, nullJSON(rec.StudyData), createdAt, now); err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		report.Inserted++
		report.IDs = append(report.IDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return report, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		options   []byte
		studyData []byte
		createdAt time.Time
	)
	if err := row.Scan(
		&rec.ID, &rec.Text, &options, &rec.CorrectAnswer, &rec.Explanation, &rec.Category,
		&rec.Part, &rec.Year, &rec.Number, &rec.Creator, &rec.IsPublic, &studyData, &createdAt,
	); err != nil {
		return Record{}, err
	}
	if len(options) > 0 {
		var raw map[string]string
		if err := json.Unmarshal(options, &raw); err != nil {
			return Record{}, fmt.Errorf("decode options: %w", err)
		}
		rec.Options = NormalizeOptions(raw)
	}
	if len(studyData) > 0 {
		rec.StudyData = json.RawMessage(studyData)
	}
	rec.CreatedAt = &createdAt
	return rec, nil
}

func optionsOrEmpty(o Options) Options {
	if o == nil {
		return Options{}
	}
	return o
}

func nullJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}

package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pritecards/internal/dedup"
	"pritecards/internal/platform/logger"
	"pritecards/internal/question"
	"pritecards/internal/session"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrSessionNotFound  = errors.New("import session not found")
	ErrAlreadyCommitted = errors.New("import session already committed")
)

// MaxCandidates bounds a single scan request.
const MaxCandidates = 5000

type corpusStore interface {
	ListCorpus(ctx context.Context, f question.CorpusFilter) ([]question.Record, error)
	SaveBatch(ctx context.Context, defaultCreator string, records []question.Record) (*question.SaveReport, error)
}

type scanRecorder interface {
	RecordScan(stats dedup.ScanStats)
	RecordCommit(report question.SaveReport)
}

type Service struct {
	corpus   corpusStore
	sessions session.Store
	cfg      dedup.Config
	metrics  scanRecorder
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
	recordID func() string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type ServiceConfig struct {
	Dedup   dedup.Config
	Metrics scanRecorder
	Logger  *logger.Logger
}

func NewService(corpus corpusStore, sessions session.Store, cfg ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		corpus:   corpus,
		sessions: sessions,
		cfg:      cfg.Dedup,
		metrics:  cfg.Metrics,
		log:      log.With("component", "importer"),
		now:      time.Now,
		newID:    uuid.NewString,
		recordID: uuid.NewString,
		locks:    map[string]*sessionLock{},
	}
}

type ScanInput struct {
	Creator       string
	Candidates    []question.Record
	Overrides     dedup.Overrides
	IncludePublic bool
	ImportErrors  []question.ImportRowError
}

// Scan compares a batch against the creator's corpus and opens a review
// session for it.
func (s *Service) Scan(ctx context.Context, in ScanInput) (*View, error) {
	creator := strings.TrimSpace(in.Creator)
	if creator == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if len(in.Candidates) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidInput)
	}
	if len(in.Candidates) > MaxCandidates {
		return nil, fmt.Errorf("%w: at most %d questions per scan", ErrInvalidInput, MaxCandidates)
	}
	cfg, err := in.Overrides.Apply(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.corpus.ListCorpus(ctx, question.CorpusFilter{Creator: creator, IncludePublic: in.IncludePublic})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return s.scan(ctx, creator, cfg, in.Candidates, existing, in.ImportErrors)
}

// ScanExcel parses the workbook and loads the corpus concurrently, then scans.
func (s *Service) ScanExcel(ctx context.Context, creator string, r io.Reader, ov dedup.Overrides, includePublic bool) (*View, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	cfg, err := ov.Apply(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var (
		report   *question.ImportReport
		existing []question.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep, err := question.ParseExcel(r)
		if err != nil {
			if errors.Is(err, question.ErrInvalidInput) {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return err
		}
		report = rep
		return nil
	})
	g.Go(func() error {
		items, err := s.corpus.ListCorpus(gctx, question.CorpusFilter{Creator: creator, IncludePublic: includePublic})
		if err != nil {
			return fmt.Errorf("load corpus: %w", err)
		}
		existing = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(report.Records) == 0 {
		return nil, fmt.Errorf("%w: no valid rows (%d failed)", ErrInvalidInput, report.FailedRows)
	}
	if len(report.Records) > MaxCandidates {
		return nil, fmt.Errorf("%w: at most %d questions per scan", ErrInvalidInput, MaxCandidates)
	}
	return s.scan(ctx, creator, cfg, report.Records, existing, report.Errors)
}

func (s *Service) scan(ctx context.Context, creator string, cfg dedup.Config, raw, existing []question.Record, importErrors []question.ImportRowError) (*View, error) {
	// Incoming rows never carry identity: ids are assigned at commit and the
	// caller owns everything it imports.
	candidates := make([]question.Record, len(raw))
	for i, r := range raw {
		c := r.Normalize()
		c.ID = ""
		c.Creator = creator
		candidates[i] = c
	}

	res, err := dedup.Scan(ctx, candidates, existing, cfg, dedup.WithOwner(creator))
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	s.log.Info("scan finished",
		"creator", creator,
		"candidates", res.Stats.Candidates,
		"existing", res.Stats.Existing,
		"duplicates", res.Stats.Duplicates,
		"recovered_failures", res.Stats.RecoveredFailures,
		"elapsed_ms", res.Stats.Elapsed.Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.RecordScan(res.Stats)
	}

	w := dedup.NewWorkflow(res)
	if err := w.Begin(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &session.Session{
		ID:           s.newID(),
		Creator:      creator,
		Config:       cfg,
		Stats:        res.Stats,
		Workflow:     w.Snapshot(),
		ImportErrors: importErrors,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return newView(sess, w), nil
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, creator, id string) (*View, error) {
	sess, w, err := s.load(ctx, creator, id)
	if err != nil {
		return nil, err
	}
	return newView(sess, w), nil
}

func (s *Service) SetStrategy(ctx context.Context, creator, id string, strategy dedup.Strategy) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.SetStrategy(strategy)
	})
}

func (s *Service) SetManualSelections(ctx context.Context, creator, id string, sel dedup.ManualSelections) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.SetManualSelections(sel)
	})
}

func (s *Service) Resolve(ctx context.Context, creator, id string) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.ResolveCurrentAndAdvance()
	})
}

func (s *Service) Skip(ctx context.Context, creator, id string) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.SkipCurrent()
	})
}

func (s *Service) ApplyToAll(ctx context.Context, creator, id string) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.ApplyStrategyToAllRemaining()
	})
}

// Reopen sends a resolved session back to review at the given cluster.
func (s *Service) Reopen(ctx context.Context, creator, id string, cluster int) (*View, error) {
	return s.mutate(ctx, creator, id, func(w *dedup.Workflow) error {
		return w.Reopen(cluster)
	})
}

// Commit finalizes the workflow and persists the batch. A merge failure
// leaves the session untouched so the offending decision can be changed.
// Record ids are pinned in the session before the write, so retrying after a
// failed session update rewrites the same rows.
func (s *Service) Commit(ctx context.Context, creator, id string) (*question.SaveReport, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, w, err := s.load(ctx, creator, id)
	if err != nil {
		return nil, err
	}
	if sess.Committed != nil {
		return nil, ErrAlreadyCommitted
	}

	batch, err := w.Finalize()
	if err != nil {
		var me *dedup.MergeError
		if errors.As(err, &me) {
			s.log.Warn("finalize failed", "session_id", id, "cluster", me.Cluster, "field", me.Field, "error", err)
		}
		return nil, err
	}

	if len(sess.CommitIDs) != len(batch) {
		sess.CommitIDs = make([]string, len(batch))
		for i, rec := range batch {
			sess.CommitIDs[i] = rec.ID
			if rec.ID == "" {
				sess.CommitIDs[i] = s.recordID()
			}
		}
		sess.UpdatedAt = s.now().UTC()
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = sess.CommitIDs[i]
		}
	}

	report, err := s.corpus.SaveBatch(ctx, sess.Creator, batch)
	if err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	s.log.Info("batch committed", "session_id", id, "creator", sess.Creator, "inserted", report.Inserted, "updated", report.Updated)
	if s.metrics != nil {
		s.metrics.RecordCommit(*report)
	}

	sess.Committed = report
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("mark session committed: %w", err)
	}
	return report, nil
}

// Cancel aborts the workflow and drops the session. Nothing is persisted.
func (s *Service) Cancel(ctx context.Context, creator, id string) error {
	unlock := s.lock(id)
	defer unlock()

	sess, w, err := s.load(ctx, creator, id)
	if err != nil {
		return err
	}
	if sess.Committed != nil {
		return ErrAlreadyCommitted
	}
	if err := w.Cancel(); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Info("import cancelled", "session_id", id, "creator", sess.Creator)
	return nil
}

// ExportCorpus renders the creator's questions as an xlsx workbook.
func (s *Service) ExportCorpus(ctx context.Context, creator, part string) ([]byte, error) {
	if strings.TrimSpace(creator) == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	items, err := s.corpus.ListCorpus(ctx, question.CorpusFilter{Creator: creator, Part: part})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return question.WriteExcel(items)
}

func (s *Service) mutate(ctx context.Context, creator, id string, op func(*dedup.Workflow) error) (*View, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, w, err := s.load(ctx, creator, id)
	if err != nil {
		return nil, err
	}
	if sess.Committed != nil {
		return nil, ErrAlreadyCommitted
	}
	if err := op(w); err != nil {
		return nil, err
	}

	sess.Workflow = w.Snapshot()
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return newView(sess, w), nil
}

func (s *Service) load(ctx context.Context, creator, id string) (*session.Session, *dedup.Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Creator != creator {
		return nil, nil, ErrSessionNotFound
	}
	w, err := dedup.RestoreWorkflow(sess.Workflow)
	if err != nil {
		return nil, nil, fmt.Errorf("restore workflow: %w", err)
	}
	return sess, w, nil
}

// lock serializes operations on one session within this process. Entries
// are dropped once no caller holds or waits for them.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internaldb "pritecards/internal/db"
	"pritecards/internal/dedup"
	"pritecards/internal/question"
)

// batchInput collects what the scan and review commands read.
type batchInput struct {
	Candidates   []question.Record
	ImportErrors []question.ImportRowError
	Existing     []question.Record
}

// loadRecords reads a JSON array of records or an .xlsx workbook.
func loadRecords(path string) ([]question.Record, []question.ImportRowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return readRecords(f, filepath.Ext(path))
}

func readRecords(r io.Reader, ext string) ([]question.Record, []question.ImportRowError, error) {
	switch strings.ToLower(ext) {
	case ".xlsx":
		report, err := question.ParseExcel(r)
		if err != nil {
			return nil, nil, err
		}
		return report.Records, report.Errors, nil
	case ".json", "":
		var out []question.Record
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, nil, fmt.Errorf("decode records: %w", err)
		}
		return out, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported input format %q (want .json or .xlsx)", ext)
	}
}

func loadDedupConfig(cmd *cobra.Command) (dedup.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("DEDUP_CONFIG_FILE")
	}
	cfg := dedup.DefaultConfig()
	if path != "" {
		fileCfg, err := dedup.LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}
	return dedup.ConfigFromEnv(cfg)
}

func dsnFlag(cmd *cobra.Command) string {
	dsn, _ := cmd.Flags().GetString("dsn")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	return dsn
}

func openQuestions(ctx context.Context, dsn string) (*question.Service, *sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("a database is required: pass --dsn or set DB_DSN")
	}
	dbConn, err := internaldb.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	svc := question.NewService(dbConn)
	if err := svc.Migrate(ctx); err != nil {
		_ = dbConn.Close()
		return nil, nil, err
	}
	return svc, dbConn, nil
}

// loadBatch reads candidates and the corpus concurrently. The corpus comes
// from corpusPath when set, otherwise from Postgres for creator.
func loadBatch(ctx context.Context, inputPath, corpusPath, dsn string, filter question.CorpusFilter) (*batchInput, error) {
	var in batchInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, rowErrs, err := loadRecords(inputPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", inputPath, err)
		}
		in.Candidates = recs
		in.ImportErrors = rowErrs
		return nil
	})
	g.Go(func() error {
		if corpusPath != "" {
			recs, _, err := loadRecords(corpusPath)
			if err != nil {
				return fmt.Errorf("read corpus %s: %w", corpusPath, err)
			}
			in.Existing = recs
			return nil
		}
		svc, dbConn, err := openQuestions(gctx, dsn)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		recs, err := svc.ListCorpus(gctx, filter)
		if err != nil {
			return err
		}
		in.Existing = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

func writeJSONFile(path string, v interface{}) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

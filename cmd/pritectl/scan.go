package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pritecards/internal/dedup"
	"pritecards/internal/question"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a batch of questions for duplicates",
	Long: `Scan compares every question in --input against the corpus and prints
the duplicate clusters it found.

Examples:
  # Compare an Excel batch against a JSON corpus
  pritectl scan --input batch.xlsx --corpus corpus.json

  # Compare against the creator's questions in Postgres and save the result
  pritectl scan --input batch.json --creator rahma --out scan.json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, in, err := runScan(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}
		printScanSummary(res, in.ImportErrors)

		out, _ := cmd.Flags().GetString("out")
		if out != "" {
			w := dedup.NewWorkflow(res)
			if err := w.Begin(); err != nil {
				fail("%v", err)
			}
			if err := writeJSONFile(out, w.Snapshot()); err != nil {
				fail("write %s: %v", out, err)
			}
		}
	},
}

func init() {
	addBatchFlags(scanCmd)
	scanCmd.Flags().String("out", "", "Write the review snapshot to this file")
	rootCmd.AddCommand(scanCmd)
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "Batch to import (.json or .xlsx)")
	cmd.Flags().String("corpus", "", "Existing questions as a JSON file instead of Postgres")
	cmd.Flags().String("creator", "", "Corpus owner when reading from Postgres")
	cmd.Flags().String("part", "", "Only compare against this exam part")
	cmd.Flags().Bool("include-public", false, "Also compare against other creators' public questions")
	cmd.Flags().Bool("quiet", false, "Hide scan progress")
}

func runScan(ctx context.Context, cmd *cobra.Command) (dedup.ScanResult, *batchInput, error) {
	input, _ := cmd.Flags().GetString("input")
	corpus, _ := cmd.Flags().GetString("corpus")
	creator, _ := cmd.Flags().GetString("creator")
	part, _ := cmd.Flags().GetString("part")
	includePublic, _ := cmd.Flags().GetBool("include-public")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if input == "" {
		return dedup.ScanResult{}, nil, fmt.Errorf("--input is required")
	}
	if corpus == "" && strings.TrimSpace(creator) == "" {
		return dedup.ScanResult{}, nil, fmt.Errorf("--creator is required when the corpus comes from Postgres")
	}
	cfg, err := loadDedupConfig(cmd)
	if err != nil {
		return dedup.ScanResult{}, nil, err
	}

	in, err := loadBatch(ctx, input, corpus, dsnFlag(cmd), question.CorpusFilter{
		Creator:       creator,
		Part:          part,
		IncludePublic: includePublic,
	})
	if err != nil {
		return dedup.ScanResult{}, nil, err
	}
	for i := range in.Candidates {
		in.Candidates[i] = in.Candidates[i].Normalize()
		if in.Candidates[i].Creator == "" {
			in.Candidates[i].Creator = creator
		}
	}

	opts := []dedup.ScanOption{dedup.WithOwner(creator)}
	if !quiet {
		last := -1
		opts = append(opts, dedup.WithProgress(func(p int) {
			if p != last {
				last = p
				fmt.Fprintf(os.Stderr, "\rscanning... %3d%%", p)
			}
		}))
	}
	res, err := dedup.Scan(ctx, in.Candidates, in.Existing, cfg, opts...)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return dedup.ScanResult{}, nil, err
	}
	return res, in, nil
}

func printScanSummary(res dedup.ScanResult, rowErrs []question.ImportRowError) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	s := res.Stats
	fmt.Printf("\n%s Scanned %d question(s) against %d existing in %s\n",
		green("✓"), s.Candidates, s.Existing, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Comparisons: %d\n", s.Comparisons)
	fmt.Printf("  New: %d  Duplicates: %s\n", len(res.NonDuplicates), yellow(s.Duplicates))
	if s.SkippedNoText > 0 {
		fmt.Printf("  Without text: %d\n", s.SkippedNoText)
	}
	if s.RecoveredFailures > 0 {
		fmt.Printf("  %s %d comparison(s) fell back to exact match\n", yellow("⚠"), s.RecoveredFailures)
	}
	for _, e := range rowErrs {
		fmt.Printf("  %s row %d: %s\n", red("✗"), e.Row, e.Error)
	}

	for i, c := range res.Clusters {
		best, _ := c.Best()
		fmt.Printf("\n%s %s\n", cyan(fmt.Sprintf("[%d]", i+1)), excerpt(c.Candidate.Text, 70))
		fmt.Printf("  matches %s (score %.2f, suggests %s)\n",
			best.Existing.ID, best.Similarity.Score, best.Similarity.MergeStrategy)
		for _, r := range c.Reasons {
			fmt.Printf("    - %s\n", r)
		}
	}
	fmt.Println()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

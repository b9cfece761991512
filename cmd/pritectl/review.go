package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pritecards/internal/dedup"
	"pritecards/internal/question"
	"pritecards/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Resolve duplicate clusters and write the final batch",
	Long: `Review resolves every duplicate cluster, either interactively or with a
single --strategy for all of them, and writes the batch to persist.

The clusters come from a snapshot written by "pritectl scan --out" or from
a fresh scan using the same flags as scan.

Examples:
  # Interactive review of a saved scan
  pritectl review --snapshot scan.json --out final.json

  # Keep both records for every duplicate and save to Postgres
  pritectl review --input batch.xlsx --creator rahma --strategy keepBoth --commit`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		w, err := loadWorkflow(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}

		strategyFlag, _ := cmd.Flags().GetString("strategy")
		if strategyFlag != "" {
			strategy, err := dedup.ParseStrategy(strategyFlag)
			if err != nil {
				fail("%v", err)
			}
			if err := resolveAll(w, strategy); err != nil {
				fail("%v", err)
			}
		} else if w.State() != dedup.StateResolved {
			m, err := tui.NewModel(w)
			if err != nil {
				fail("%v", err)
			}
			final, err := tea.NewProgram(m).Run()
			if err != nil {
				fail("review: %v", err)
			}
			if fm, ok := final.(tui.Model); ok && fm.Cancelled {
				fmt.Fprintln(os.Stderr, "review cancelled, nothing written")
				os.Exit(2)
			}
		}

		records, err := w.Finalize()
		if err != nil {
			var me *dedup.MergeError
			if errors.As(err, &me) {
				fail("cluster %d could not be merged: %v (re-run review and choose another strategy)", me.Cluster+1, me.Err)
			}
			fail("%v", err)
		}

		out, _ := cmd.Flags().GetString("out")
		if out != "" || !mustBool(cmd, "commit") {
			if err := writeJSONFile(out, records); err != nil {
				fail("write output: %v", err)
			}
		}

		if mustBool(cmd, "commit") {
			creator, _ := cmd.Flags().GetString("creator")
			if strings.TrimSpace(creator) == "" {
				fail("--commit needs --creator")
			}
			report, err := commitRecords(ctx, dsnFlag(cmd), creator, records)
			if err != nil {
				fail("commit: %v", err)
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s Saved %d new and %d updated question(s)\n", green("✓"), report.Inserted, report.Updated)
		}
	},
}

func init() {
	addBatchFlags(reviewCmd)
	reviewCmd.Flags().String("snapshot", "", "Snapshot written by scan --out")
	reviewCmd.Flags().String("strategy", "", "Resolve every cluster with this strategy (newer, metadata, keepBoth)")
	reviewCmd.Flags().String("out", "", "Write the final batch JSON here (default stdout unless --commit)")
	reviewCmd.Flags().Bool("commit", false, "Save the final batch to Postgres")
	rootCmd.AddCommand(reviewCmd)
}

func loadWorkflow(ctx context.Context, cmd *cobra.Command) (*dedup.Workflow, error) {
	snapshot, _ := cmd.Flags().GetString("snapshot")
	if snapshot != "" {
		return readSnapshot(snapshot)
	}
	res, _, err := runScan(ctx, cmd)
	if err != nil {
		return nil, err
	}
	w := dedup.NewWorkflow(res)
	if err := w.Begin(); err != nil {
		return nil, err
	}
	return w, nil
}

// resolveAll applies strategy to every unresolved cluster. Manual is
// rejected since it needs per-cluster field choices.
func resolveAll(w *dedup.Workflow, strategy dedup.Strategy) error {
	if strategy == dedup.StrategyManual {
		return fmt.Errorf("%w: manual needs interactive review", dedup.ErrInvalidStrategy)
	}
	if w.State() == dedup.StatePending {
		if err := w.Begin(); err != nil {
			return err
		}
	}
	// Read-only clusters stay keepBoth; the strategy starts at the first one
	// that may be merged.
	for w.State() == dedup.StateReviewing {
		c, _, err := w.Current()
		if err != nil {
			return err
		}
		if !c.ReadOnly {
			break
		}
		if err := w.ResolveCurrentAndAdvance(); err != nil {
			return err
		}
	}
	if w.State() != dedup.StateReviewing {
		return nil
	}
	if err := w.SetStrategy(strategy); err != nil {
		return err
	}
	return w.ApplyStrategyToAllRemaining()
}

func commitRecords(ctx context.Context, dsn, creator string, records []question.Record) (*question.SaveReport, error) {
	svc, dbConn, err := openQuestions(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()
	return svc.SaveBatch(ctx, creator, records)
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pritecards/internal/question"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a creator's questions to Excel",
	Run: func(cmd *cobra.Command, args []string) {
		creator, _ := cmd.Flags().GetString("creator")
		part, _ := cmd.Flags().GetString("part")
		out, _ := cmd.Flags().GetString("out")
		if creator == "" {
			fail("--creator is required")
		}

		ctx := context.Background()
		svc, dbConn, err := openQuestions(ctx, dsnFlag(cmd))
		if err != nil {
			fail("%v", err)
		}
		defer dbConn.Close()

		records, err := svc.ListCorpus(ctx, question.CorpusFilter{Creator: creator, Part: part})
		if err != nil {
			fail("%v", err)
		}
		body, err := question.WriteExcel(records)
		if err != nil {
			fail("%v", err)
		}
		if err := os.WriteFile(out, body, 0o644); err != nil {
			fail("write %s: %v", out, err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Exported %d question(s) to %s\n", green("✓"), len(records), out)
	},
}

func init() {
	exportCmd.Flags().String("creator", "", "Corpus owner")
	exportCmd.Flags().String("part", "", "Only export this exam part")
	exportCmd.Flags().String("out", "questions.xlsx", "Output workbook")
	rootCmd.AddCommand(exportCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pritectl",
	Short: "Find and merge duplicate PRITE study questions",
	Long: `pritectl compares a batch of new study questions against an existing
corpus, lets you review each duplicate cluster and writes or commits the
merged result.

The corpus comes from a JSON file (--corpus) or from Postgres (--dsn, or
DB_DSN). Thresholds come from --config (YAML) and DEDUP_* variables.`,
}

func init() {
	rootCmd.PersistentFlags().String("dsn", "", "Postgres DSN (defaults to DB_DSN)")
	rootCmd.PersistentFlags().String("config", "", "Dedup config YAML (defaults to DEDUP_CONFIG_FILE)")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

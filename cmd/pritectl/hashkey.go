package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pritecards/internal/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Generate an API key for a creator",
	Long: `hash-key prints a new API key and the API_KEYS entry that accepts it.
Only the entry is stored on the server; hand the key to the creator.`,
	Run: func(cmd *cobra.Command, args []string) {
		creator, _ := cmd.Flags().GetString("creator")
		cost, _ := cmd.Flags().GetInt("cost")

		key, hash, err := auth.GenerateKey(creator, cost)
		if err != nil {
			fail("%v", err)
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s\n", cyan("key:"), key)
		fmt.Printf("%s %s:%s\n", cyan("API_KEYS entry:"), creator, hash)
	},
}

func init() {
	hashKeyCmd.Flags().String("creator", "", "Creator the key belongs to")
	hashKeyCmd.Flags().Int("cost", 0, "bcrypt cost (0 uses the default)")
	rootCmd.AddCommand(hashKeyCmd)
}

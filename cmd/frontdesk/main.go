package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "frontdesk",
	Short: "frontdesk — knowledge base and human-escalation backend for voice agents",
	Long: `frontdesk answers caller questions from a local knowledge base and
escalates anything it cannot answer to a human supervisor. Supervisor
answers are folded back into the knowledge base so the next caller gets
an immediate answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

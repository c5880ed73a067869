// Package cli implements the suzent admin command line: inspecting and
// repairing the memory tiers, searching, and session management.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	userID     string
	chatID     string
)

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:   "suzent",
	Short: "Long-term memory engine for conversational agents",
	Long: `Suzent maintains a dual-tier memory for conversational agents: a plain-text
source of truth (daily logs plus a curated summary) and a disposable hybrid
search index derived from it. This CLI is the operator surface: search,
reindex, log inspection, and session management.`,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "default", "User ID scope")
	RootCmd.PersistentFlags().StringVar(&chatID, "chat", "", "Chat ID scope (empty = user level)")

	RootCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(reindexCmd)
	RootCmd.AddCommand(logsCmd)
	RootCmd.AddCommand(summaryCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(rmCmd)
	RootCmd.AddCommand(indexTranscriptCmd)
	RootCmd.AddCommand(sessionsCmd)
}

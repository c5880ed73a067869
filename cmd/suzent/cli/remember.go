package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyzus/suzent-sub001/core"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Run text through the full memory pipeline: extract, dedup, dual-write",
	Long: `Feeds the text through the same pipeline a live conversation turn takes:
fact extraction, embedding, dedup against the search index, and the dual
write to index and daily log. Uses the Claude extractor when
ANTHROPIC_API_KEY is set, otherwise a heuristic pattern matcher.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()
		mgr := e.newManager()

		result, err := mgr.ProcessTurn(context.Background(),
			core.Exchange{UserMessage: args[0]}, e.scope(), "")
		if err != nil {
			fatalf("Processing failed: %v", err)
		}

		fmt.Printf("Extracted: %d  Created: %d  Merged: %d\n",
			len(result.ExtractedFacts), len(result.Created), len(result.Updated))
		for _, f := range result.Created {
			fmt.Printf("  + %s\n", f.FormatLine())
		}
		if result.SourceWriteFailed {
			fmt.Println("WARNING: facts are searchable but the daily-log append failed; run reindex after fixing storage.")
		}
	},
}

func init() {
	RootCmd.AddCommand(rememberCmd)
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/indexer"
	"github.com/cyzus/suzent-sub001/session"
)

var (
	searchLimit int
	logDays     int
	clearIndex  bool
	deleteAll   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid-search the memory index",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()
		ctx := context.Background()

		emb, err := e.embedder.Embed(ctx, args[0])
		if err != nil {
			fatalf("Failed to embed query: %v", err)
		}

		facts, err := e.search.HybridSearch(ctx, memory.SearchQuery{
			Embedding:       emb,
			Text:            args[0],
			Scope:           e.scope(),
			Limit:           searchLimit,
			Weights:         e.cfg.SearchWeights(),
			RecencyHalfLife: e.cfg.RecencyHalfLife(),
		})
		if err != nil {
			fatalf("Search failed: %v", err)
		}

		if len(facts) == 0 {
			fmt.Println("No memories found.")
			return
		}
		for _, f := range facts {
			fmt.Printf("%s  %.2f  [%s] %s\n", f.ID, f.Importance, f.Category, f.Content)
		}
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the source-of-truth logs",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()

		ix := indexer.New()
		ix.DedupThreshold = e.cfg.Memory.DedupThreshold
		stats, err := ix.ReindexFromSource(context.Background(), e.source, e.search, e.embedder, userID, clearIndex)
		if err != nil {
			fatalf("Reindex failed: %v", err)
		}
		fmt.Printf("Files: %d  Facts: %d  Indexed: %d  Skipped: %d  Errors: %d\n",
			stats.TotalFiles, stats.TotalFacts, stats.Indexed, stats.Skipped, stats.Errors)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [date]",
	Short: "Show daily memory logs (YYYY-MM-DD, or the last N days)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()
		ctx := context.Background()

		if len(args) == 1 {
			content, err := e.source.ReadDailyLog(ctx, args[0])
			if err != nil {
				fatalf("Failed to read log %s: %v", args[0], err)
			}
			fmt.Print(content)
			return
		}

		content, err := e.source.ReadRecentLogs(ctx, logDays)
		if err != nil {
			fatalf("Failed to read logs: %v", err)
		}
		if content == "" {
			fmt.Println("No logs found.")
			return
		}
		fmt.Print(content)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the curated long-term memory summary",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()

		content, err := e.source.ReadSummary(context.Background())
		if err == memory.ErrNotFound {
			fmt.Println("No summary yet.")
			return
		}
		if err != nil {
			fatalf("Failed to read summary: %v", err)
		}
		fmt.Print(content)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search-index statistics",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()

		st, err := e.search.Stats(context.Background())
		if err != nil {
			fatalf("Failed to read stats: %v", err)
		}
		fmt.Printf("Facts: %d\nBlocks: %d\nEmbedding dim: %d\n", st.Facts, st.Blocks, st.EmbeddingDim)
		for scope, n := range st.FactsPerScope {
			fmt.Printf("  %s: %d\n", scope, n)
		}
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [fact-id]",
	Short: "Delete a fact by id, or all facts in the scope with --all",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()
		ctx := context.Background()

		if deleteAll {
			n, err := e.search.DeleteAll(ctx, e.scope())
			if err != nil {
				fatalf("Delete failed: %v", err)
			}
			fmt.Printf("Deleted %d facts from scope %s.\n", n, e.scope().Key())
			fmt.Println("Source-of-truth logs are untouched; run 'suzent reindex' to restore.")
			return
		}

		if len(args) != 1 {
			fatalf("Provide a fact id or --all")
		}
		if err := e.search.DeleteMemory(ctx, args[0]); err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted %s from the index.\n", args[0])
	},
}

var indexTranscriptCmd = &cobra.Command{
	Use:   "index-transcript <session-id>",
	Short: "Chunk and index a session transcript for cross-session search",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()
		ctx := context.Background()

		if !e.cfg.Memory.TranscriptIndexing {
			fatalf("Transcript indexing is disabled; set memory.transcript_indexing: true to enable it")
		}

		store, err := session.NewStore(e.cfg.SessionDir())
		if err != nil {
			fatalf("Failed to open session store: %v", err)
		}
		turns, err := store.ReadTranscript(ctx, args[0], 0)
		if err != nil {
			fatalf("Failed to read transcript: %v", err)
		}
		if len(turns) == 0 {
			fmt.Println("Transcript is empty or missing.")
			return
		}

		ti := indexer.NewTranscriptIndexer()
		ti.ChunkSize = e.cfg.Memory.ChunkSize
		ti.ChunkOverlap = e.cfg.Memory.ChunkOverlap
		stats, err := ti.IndexTranscript(ctx, turns, args[0], e.search, e.embedder, userID)
		if err != nil {
			fatalf("Transcript indexing failed: %v", err)
		}
		fmt.Printf("Turns: %d  Chunks: %d  Indexed: %d  Errors: %d\n",
			stats.TotalTurns, stats.TotalChunks, stats.Indexed, stats.Errors)
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <session-id>",
	Short: "Show session metadata and its reset decision under the configured policy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		defer e.close()

		store, err := session.NewStore(e.cfg.SessionDir())
		if err != nil {
			fatalf("Failed to open session store: %v", err)
		}
		meta, err := store.LoadMetadata(args[0])
		if err != nil {
			fatalf("Failed to load session metadata: %v", err)
		}

		lc := session.NewLifecycle(session.Policy{
			DailyResetHour: e.cfg.Session.DailyResetHour,
			IdleTimeout:    e.cfg.IdleTimeout(),
			MaxTurns:       e.cfg.Session.MaxTurns,
		})
		reset, reason := lc.ShouldReset(meta.CreatedAt, meta.LastActiveAt, meta.TurnCount)

		fmt.Printf("Session:     %s\n", meta.SessionID)
		fmt.Printf("Created:     %s\n", meta.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Last active: %s\n", meta.LastActiveAt.Format(time.RFC3339))
		fmt.Printf("Turns:       %d\n", meta.TurnCount)
		if reset {
			fmt.Printf("Reset due:   yes (%s)\n", reason)
		} else {
			fmt.Println("Reset due:   no")
		}
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum results")
	logsCmd.Flags().IntVar(&logDays, "days", 7, "How many recent days to show")
	reindexCmd.Flags().BoolVar(&clearIndex, "clear", false, "Delete existing rows before reindexing")
	rmCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every fact in the scope")
}

package cli

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cyzus/suzent-sub001/config"
	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/embedder/mock"
	"github.com/cyzus/suzent-sub001/memory/embedder/ollama"
	"github.com/cyzus/suzent-sub001/memory/embedder/openai"
	"github.com/cyzus/suzent-sub001/memory/extract"
	"github.com/cyzus/suzent-sub001/memory/source"
	"github.com/cyzus/suzent-sub001/memory/store/sqlite"
)

// env is the fully wired memory stack for one CLI invocation.
type env struct {
	cfg      *config.Config
	search   memory.SearchStore
	source   memory.SourceStore
	embedder memory.Embedder
}

func openEnv() *env {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("Config error: %v", err)
	}

	emb := newEmbedder(cfg)

	search, err := sqlite.New(cfg.IndexPath(), emb.Dimensions())
	if err != nil {
		fatalf("Failed to open search index: %v", err)
	}

	src, err := source.New(cfg.SourceDir())
	if err != nil {
		search.Close()
		fatalf("Failed to open source store: %v", err)
	}

	return &env{cfg: cfg, search: search, source: src, embedder: emb}
}

func (e *env) close() {
	e.search.Close()
}

func (e *env) scope() memory.Scope {
	return memory.Scope{UserID: userID, ChatID: chatID}
}

func newEmbedder(cfg *config.Config) memory.Embedder {
	m := cfg.Memory
	switch m.EmbeddingProvider {
	case "openai":
		return openai.New(m.EmbeddingBaseURL, os.Getenv("OPENAI_API_KEY"), m.EmbeddingModel, m.EmbeddingDim)
	case "ollama":
		return ollama.New(m.EmbeddingModel, m.EmbeddingDim)
	default:
		return mock.New(m.EmbeddingDim)
	}
}

// newExtractor returns the Claude-backed extractor when an API key is
// available, otherwise the heuristic fallback.
func newExtractor(cfg *config.Config) (memory.Extractor, memory.Summarizer) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return extract.NewHeuristic(), nil
	}
	client := anthropic.NewClient()
	c := extract.NewClient(&client, extract.WithModel(cfg.Extraction.Model))
	return c, c
}

// newManager builds the full pipeline from the CLI environment.
func (e *env) newManager() *memory.Manager {
	extractor, summarizer := newExtractor(e.cfg)

	mc := memory.DefaultManagerConfig()
	mc.DedupThreshold = e.cfg.Memory.DedupThreshold
	mc.ImportantThreshold = e.cfg.Memory.ImportantThreshold
	mc.RetrieveLimit = e.cfg.Memory.RetrieveLimit
	mc.SummaryTopN = e.cfg.Memory.SummaryTopN
	mc.Weights = e.cfg.SearchWeights()
	mc.RecencyHalfLife = e.cfg.RecencyHalfLife()
	mc.MaxRetries = e.cfg.Extraction.MaxRetries
	mc.ExtractionTimeout = e.cfg.ExtractionTimeout()

	mgr, err := memory.NewManager(e.search, e.source, e.embedder, extractor, summarizer, mc)
	if err != nil {
		fatalf("Failed to build memory manager: %v", err)
	}
	return mgr
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

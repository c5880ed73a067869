// Package memory implements long-term memory for a conversational agent.
//
// Facts extracted from conversation turns are written to two independent
// persistence tiers:
//   - SearchStore: a derived search index (vector + full-text) used for
//     hybrid retrieval. Disposable; it can be rebuilt at any time.
//   - SourceStore: append-only human-readable daily logs plus a curated
//     summary document. This is the ground truth.
//
// Architecture:
//   - Manager: orchestrates extraction, dedup, dual-write and retrieval
//   - SearchStore: scoped CRUD and hybrid ranking (memory/store/sqlite)
//   - SourceStore: markdown daily logs + MEMORY.md (memory/source)
//   - Embedder: text-to-vector conversion (memory/embedder/*)
//   - Extractor / Summarizer: LLM collaborators (memory/extract)
//   - Indexer: rebuilds the SearchStore from the SourceStore and chunks
//     session transcripts for cross-session search (memory/indexer)
//   - Flusher: extracts facts from agent steps right before a context
//     compression pass discards them
//
// Retrieval never surfaces errors into a conversation: on embedding or
// search failure the Manager logs and returns empty context.
package memory

package memory

import (
	"fmt"
	"sort"
	"strings"
)

// FormatCoreMemorySection renders resolved core memory blocks as the
// always-visible memory section of an agent prompt. Labels are ordered
// conventionally (persona, user, facts, context) with any extras after,
// alphabetically, so the section is stable across calls.
func FormatCoreMemorySection(blocks map[string]string) string {
	var b strings.Builder
	b.WriteString("## Memory System\n\n")
	b.WriteString("### Core Memory (Always Visible)\n")

	if len(blocks) == 0 {
		b.WriteString("\nNo core memory blocks configured.\n")
	} else {
		for _, label := range orderedLabels(blocks) {
			content := blocks[label]
			if content == "" {
				content = "Not set"
			}
			fmt.Fprintf(&b, "\n**%s**:\n%s\n", capitalize(label), content)
		}
	}

	b.WriteString("\n### Archival Memory (Search When Needed)\n")
	b.WriteString("Long-term memory is stored and searched automatically; relevant entries appear in a <memory> section when they match the conversation.\n")
	return b.String()
}

// FormatRetrievedMemories renders search results for prompt injection. Kept
// lean, one line per memory so the agent can scan quickly. Empty input
// yields an empty string, not an empty tag pair.
func FormatRetrievedMemories(facts []*Fact) string {
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<memory>\n")
	for _, f := range facts {
		b.WriteString(f.FormatLine())
		b.WriteString("\n")
	}
	b.WriteString("</memory>\n")
	return b.String()
}

var conventionalOrder = map[string]int{
	BlockPersona: 0,
	BlockUser:    1,
	BlockFacts:   2,
	BlockContext: 3,
}

func orderedLabels(blocks map[string]string) []string {
	labels := make([]string, 0, len(blocks))
	for l := range blocks {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		ri, iok := conventionalOrder[labels[i]]
		rj, jok := conventionalOrder[labels[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		}
		return labels[i] < labels[j]
	})
	return labels
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

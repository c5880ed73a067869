package extract

import (
	"fmt"
	"strings"

	"github.com/cyzus/suzent-sub001/memory"
)

const extractionSystemPrompt = `You are a memory extraction system. Write concise notes, not essays.

## What to Extract
- Personal info: name, location, profession, relationships
- Preferences: likes, dislikes, workflow habits
- Goals & projects: what they're working on, deadlines
- Technical context: stack, tools, skills
- Key decisions or outcomes

## Output Format

For each fact:
- "content": One concise sentence. State the fact directly, no narration, no "User mentioned that..."
- "category": One of [personal, preference, goal, context, technical, other]
- "importance": 0.0-1.0 (0.8+ = critical, 0.5-0.8 = useful, <0.5 = minor)
- "tags": 2-4 keywords

## Examples

Good:
{"content": "Building a React fintech dashboard; needs virtualization for 1000+ data points", "category": "technical", "importance": 0.8, "tags": ["react", "dashboard", "fintech"]}
{"content": "Prefers dark mode for long coding sessions", "category": "preference", "importance": 0.6, "tags": ["dark-mode", "coding"]}

Bad (too wordy):
{"content": "User is building a React dashboard for their fintech company and asked about performance optimization. They mentioned the app loads slowly with 1000+ data points.", ...}

## Rules
- One sentence per fact. No filler words.
- State facts directly: "Prefers X" not "User mentioned they prefer X"
- Skip greetings, ephemeral debugging, small talk
- Fewer high-quality facts beat many low-quality ones`

func extractionUserPrompt(content string) string {
	return fmt.Sprintf(`Extract memorable facts from this conversation turn. One concise sentence per fact.

---
%s
---

Return valid JSON with a "facts" array. Return {"facts": []} if nothing is worth remembering.`, content)
}

func summarizationPrompt(facts []*memory.Fact) string {
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s (importance: %.2f)\n", f.Category, f.Content, f.Importance)
	}
	return fmt.Sprintf(`Condense these facts into a brief, scannable summary. Bullet points only. No prose.

%s
Group into sections (omit if empty): **Profile**, **Preferences**, **Stack**, **Constraints**.
Max 200 words. Respond with the summary only.`, b.String())
}

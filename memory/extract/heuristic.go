package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/cyzus/suzent-sub001/memory"
)

// Heuristic is a pattern-based extractor used when no API client is
// configured. It only catches first-person statements with obvious memory
// value; everything subtler needs the model-backed extractor.
type Heuristic struct{}

// NewHeuristic creates the fallback extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type pattern struct {
	re         *regexp.Regexp
	category   memory.Category
	importance float64
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)\bmy name is ([^.,!?\n]+)`), memory.CategoryPersonal, 0.9},
	{regexp.MustCompile(`(?i)\bi (?:live|work) in ([^.,!?\n]+)`), memory.CategoryPersonal, 0.8},
	{regexp.MustCompile(`(?i)\bi(?: really)? (?:prefer|like|love|enjoy) ([^.,!?\n]+)`), memory.CategoryPreference, 0.6},
	{regexp.MustCompile(`(?i)\bi (?:dislike|hate|can't stand) ([^.,!?\n]+)`), memory.CategoryPreference, 0.6},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) (?:working on|building) ([^.,!?\n]+)`), memory.CategoryGoal, 0.7},
	{regexp.MustCompile(`(?i)\bmy goal is to ([^.,!?\n]+)`), memory.CategoryGoal, 0.8},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) using ([^.,!?\n]+)`), memory.CategoryTechnical, 0.5},
	{regexp.MustCompile(`(?i)\bwe (?:use|deploy with) ([^.,!?\n]+)`), memory.CategoryTechnical, 0.5},
}

// Extract scans the text for first-person statements worth remembering.
func (h *Heuristic) Extract(ctx context.Context, turnText string) ([]memory.Candidate, error) {
	var out []memory.Candidate
	seen := make(map[string]bool)

	for _, line := range strings.Split(turnText, "\n") {
		for _, p := range patterns {
			m := p.re.FindString(line)
			if m == "" {
				continue
			}
			m = strings.TrimSpace(m)
			key := strings.ToLower(m)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, memory.Candidate{
				Content:    m,
				Category:   string(p.category),
				Importance: p.importance,
				Tags:       keywords(m),
			})
		}
	}
	return out, nil
}

var stopwords = map[string]bool{
	"i": true, "my": true, "am": true, "is": true, "the": true, "a": true,
	"an": true, "to": true, "in": true, "on": true, "we": true, "im": true,
	"really": true, "name": true, "with": true, "for": true, "and": true,
}

// keywords picks up to three non-stopword terms as tags.
func keywords(s string) []string {
	var tags []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?'\"")
		if w == "" || stopwords[w] {
			continue
		}
		tags = append(tags, w)
		if len(tags) == 3 {
			break
		}
	}
	return tags
}

package source

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cyzus/suzent-sub001/memory"
)

var (
	sectionPattern = regexp.MustCompile(`^## (\d{2}:\d{2}) - Chat: (\S+)`)
	factPattern    = regexp.MustCompile("^- \\[(\\w+)\\] (.+?)(?: \\(importance: ([0-9.]+)\\))?(?: `([^`]*)`)?$")
)

// ParsedFact is one daily-log line restored to structured form. Embeddings
// are never persisted in the source tier, so the caller regenerates them.
type ParsedFact struct {
	Content    string
	Category   memory.Category
	Importance float64
	Tags       []string

	ChatID string // from the section header
	Time   string // HH:MM, from the section header
	Line   int    // 1-based line number in the file
}

// ParseDailyLog parses a daily-log file back into facts. Malformed fact
// lines are returned in badLines (1-based) and skipped; headers, blanks and
// non-fact lines are ignored. The union of all daily logs must reconstruct
// the full fact set, so this is the inverse of the append format.
func ParseDailyLog(content string) (facts []ParsedFact, badLines []int) {
	var chatID, sectionTime string

	for i, line := range strings.Split(content, "\n") {
		lineNum := i + 1
		trimmed := strings.TrimRight(line, " \t")

		if m := sectionPattern.FindStringSubmatch(trimmed); m != nil {
			sectionTime = m[1]
			chatID = m[2]
			continue
		}

		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}

		m := factPattern.FindStringSubmatch(trimmed)
		if m == nil {
			badLines = append(badLines, lineNum)
			continue
		}

		importance := memory.DefaultImportance
		if m[3] != "" {
			v, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				badLines = append(badLines, lineNum)
				continue
			}
			importance = v
		}

		var tags []string
		if m[4] != "" {
			tags = strings.Fields(m[4])
		}

		facts = append(facts, ParsedFact{
			Content:    strings.TrimSpace(m[2]),
			Category:   memory.ParseCategory(m[1]),
			Importance: importance,
			Tags:       tags,
			ChatID:     chatID,
			Time:       sectionTime,
			Line:       lineNum,
		})
	}

	return facts, badLines
}

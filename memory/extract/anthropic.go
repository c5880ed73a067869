// Package extract turns conversation turns into memory candidates.
//
// The primary extractor calls Claude with a structured-output prompt; a
// heuristic fallback covers runs without API access.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cyzus/suzent-sub001/memory"
)

const (
	defaultModel     = string(anthropic.ModelClaude3_5HaikuLatest)
	defaultMaxTokens = 1024
)

// Client extracts facts and writes summaries through the Anthropic API. It
// implements both memory.Extractor and memory.Summarizer.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the extraction model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClient creates an extractor backed by the given Anthropic client.
func NewClient(client *anthropic.Client, opts ...Option) *Client {
	c := &Client{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract asks the model for memorable facts in the turn text. An empty
// candidate list with a nil error means the turn held nothing worth keeping.
func (c *Client) Extract(ctx context.Context, turnText string) ([]memory.Candidate, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(extractionUserPrompt(turnText))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction API call: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, nil
	}
	return ParseFactsJSON(text)
}

// Summarize condenses facts into a core-memory summary of at most ~200 words.
func (c *Client) Summarize(ctx context.Context, facts []*memory.Fact) (string, error) {
	if len(facts) == 0 {
		return "", nil
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(summarizationPrompt(facts))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarization API call: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func responseText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

type factsEnvelope struct {
	Facts []memory.Candidate `json:"facts"`
}

// ParseFactsJSON decodes an extraction response. It tolerates markdown code
// fences around the JSON and accepts either a {"facts": [...]} envelope or a
// bare array. Candidates with empty content are dropped; unknown categories
// fall back to "other".
func ParseFactsJSON(text string) ([]memory.Candidate, error) {
	text = stripFences(text)
	if text == "" {
		return nil, nil
	}

	var env factsEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		var bare []memory.Candidate
		if err2 := json.Unmarshal([]byte(text), &bare); err2 != nil {
			return nil, fmt.Errorf("parse extraction response: %w", err)
		}
		env.Facts = bare
	}

	out := make([]memory.Candidate, 0, len(env.Facts))
	for _, c := range env.Facts {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}
		c.Category = string(memory.ParseCategory(c.Category))
		if c.Importance <= 0 {
			c.Importance = memory.DefaultImportance
		}
		out = append(out, c)
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

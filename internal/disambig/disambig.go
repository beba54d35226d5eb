package disambig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tamihq/tami-graph/internal/models"
	"github.com/tamihq/tami-graph/pkg/xmlutil"
)

// disambiguatorMaxTokens is the maximum number of tokens Claude can use for
// the identity judgement response.
const disambiguatorMaxTokens = 512

// disambigPromptTemplate asks Claude whether two entity records refer to the
// same real-world thing. All user-supplied content is injected via
// xmlutil.Escape to prevent prompt injection.
const disambigPromptTemplate = `You are an entity resolution judge for a meeting knowledge graph.

Determine whether the two entity records below refer to the same real-world entity.
Consider names, aliases, category, and description. Abbreviations, nicknames, and
spelling variants of the same thing count as the same entity. Distinct people or
organizations that merely share a similar name are NOT the same entity.

Return ONLY a JSON object with this exact schema:
{"same": <bool>, "reason": "<brief explanation>"}

<entity_a>
%s</entity_a>

<entity_b>
%s</entity_b>`

// disambigResponse is the JSON schema Claude returns for identity judgements.
type disambigResponse struct {
	Same   bool   `json:"same"`
	Reason string `json:"reason"`
}

// Judge decides whether two candidate entities refer to the same real-world
// entity. Implementations must be safe for concurrent use.
type Judge interface {
	SameEntity(ctx context.Context, a, b models.Entity) (bool, string, error)
}

// ClaudeJudge uses Claude to resolve ambiguous entity pairs. On any API error
// or JSON parse failure it degrades gracefully and returns (false, "", nil)
// so that an ambiguous candidate is conservatively kept apart rather than
// merged on a failed call.
type ClaudeJudge struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeJudge creates a Judge backed by the Anthropic Claude API.
func NewClaudeJudge(apiKey, model string, logger *slog.Logger) *ClaudeJudge {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeJudge{
		client: &c,
		model:  model,
		logger: logger,
	}
}

// SameEntity returns (true, reason, nil) when Claude judges a and b to be the
// same real-world entity. On any API error or parse failure it logs a warning
// and returns (false, "", nil); the safe default is to keep entities separate.
func (j *ClaudeJudge) SameEntity(ctx context.Context, a, b models.Entity) (bool, string, error) {
	prompt := fmt.Sprintf(disambigPromptTemplate, describeEntity(a), describeEntity(b))

	resp, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(j.model),
		MaxTokens: disambiguatorMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise entity resolution system. Output only valid JSON."},
		},
	})
	if err != nil {
		j.logger.Warn("disambig: Claude API call failed, keeping entities separate", "error", err)
		return false, "", nil
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = strings.TrimSpace(resp.Content[i].Text)
			break
		}
	}
	if responseText == "" {
		j.logger.Warn("disambig: empty response from Claude, keeping entities separate")
		return false, "", nil
	}

	j.logger.Debug("disambig: Claude response", "response", responseText)

	var result disambigResponse
	if parseErr := json.Unmarshal([]byte(responseText), &result); parseErr != nil {
		j.logger.Warn("disambig: could not parse Claude response, keeping entities separate",
			"response", responseText, "error", parseErr)
		return false, "", nil
	}

	return result.Same, result.Reason, nil
}

// describeEntity renders an entity as escaped XML-ish lines for the prompt.
func describeEntity(e models.Entity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "name: %s\n", xmlutil.Escape(e.DisplayValue))
	fmt.Fprintf(&sb, "category: %s\n", xmlutil.Escape(string(e.Category)))
	if len(e.Aliases) > 0 {
		fmt.Fprintf(&sb, "aliases: %s\n", xmlutil.Escape(strings.Join(e.Aliases, ", ")))
	}
	if e.Description != "" {
		fmt.Fprintf(&sb, "description: %s\n", xmlutil.Escape(e.Description))
	}
	fmt.Fprintf(&sb, "mentions: %d\n", e.MentionCount)
	return sb.String()
}

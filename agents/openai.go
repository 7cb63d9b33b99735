// ABOUTME: OpenAI Chat Completions backed extraction and generation agents.
// ABOUTME: All agents in one run share a single read-only client handle.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig configures the shared OpenAI client handle.
type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// NewClient creates the shared client handle. One handle serves every agent
// in a pipeline run; it is never mutated after construction.
func NewClient(cfg ClientConfig) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

// OpenAIExtractor extracts structured fields for one section via chat
// completion, asking for a single JSON object and unmarshalling it.
type OpenAIExtractor struct {
	Client  openai.Client
	Model   string
	Section string
	// Fields lists the field names the section schema expects. They are
	// included in the prompt so the model returns a stable shape.
	Fields []string
}

// Extract implements Extractor.
func (a *OpenAIExtractor) Extract(ctx context.Context, in ExtractInput) (map[string]any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Extract the %q facts for a %s investment memo.\n", a.Section, in.MemoType)
	if len(a.Fields) > 0 {
		fmt.Fprintf(&sb, "Return a JSON object with exactly these keys: %s.\n", strings.Join(a.Fields, ", "))
	} else {
		sb.WriteString("Return a JSON object of field name to extracted value.\n")
	}
	sb.WriteString("Use null for fields the documents do not support. Respond with the JSON object only.\n")
	if in.Context != "" {
		fmt.Fprintf(&sb, "\nRelevant excerpts:\n%s\n", in.Context)
	}
	fmt.Fprintf(&sb, "\nDocuments:\n%s", in.Text)

	resp, err := a.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You extract structured facts from financial documents. You respond with a single JSON object and nothing else."),
			openai.UserMessage(sb.String()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call for %q: %w", a.Section, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction call for %q returned no choices", a.Section)
	}

	fields, err := parseJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("extraction result for %q: %w", a.Section, err)
	}
	return fields, nil
}

// OpenAIGenerator writes prose for one memo section from facts and context.
type OpenAIGenerator struct {
	Client      openai.Client
	Model       string
	Title       string
	Temperature float64
	// Instructions is the section-specific prompt body supplied by the
	// memo type configuration.
	Instructions string
}

// Generate implements Generator.
func (a *OpenAIGenerator) Generate(ctx context.Context, in GenerateInput) (string, error) {
	factsJSON, err := json.MarshalIndent(in.Facts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal facts: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the %q section of an investment memo.\n", a.Title)
	if a.Instructions != "" {
		sb.WriteString(a.Instructions)
		sb.WriteString("\n")
	}
	sb.WriteString("Write at least two paragraphs separated by a blank line. Use only the facts and excerpts provided.\n")
	fmt.Fprintf(&sb, "\nFacts:\n%s\n", factsJSON)
	if in.Context != "" {
		fmt.Fprintf(&sb, "\nRelevant excerpts:\n%s\n", in.Context)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You write precise, factual investment memorandum sections."),
			openai.UserMessage(sb.String()),
		},
	}
	if a.Temperature > 0 {
		params.Temperature = openai.Float(a.Temperature)
	}

	resp, err := a.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generation call for %q: %w", a.Title, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation call for %q returned no choices", a.Title)
	}
	return resp.Choices[0].Message.Content, nil
}

// parseJSONObject unmarshals a model response into a map, tolerating a
// markdown code fence around the object.
func parseJSONObject(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	return fields, nil
}

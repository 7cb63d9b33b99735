// ABOUTME: Agent collaborator interfaces for structured extraction and prose generation.
// ABOUTME: One agent is bound per section; implementations may share one LLM client handle.
package agents

import (
	"context"
)

// ExtractInput carries everything an extraction agent needs for one section.
type ExtractInput struct {
	// Text is the combined source document text.
	Text string
	// MemoType is the memo type ID the extraction serves.
	MemoType string
	// Context is retrieved context for the section; may be empty.
	Context string
}

// Extractor produces structured fields for one section from source text.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (map[string]any, error)
}

// GenerateInput carries everything a generation agent needs for one section.
type GenerateInput struct {
	// Facts is the filtered fact map for the memo.
	Facts map[string]map[string]any
	// Context is retrieved context for the section; may be empty.
	Context string
}

// Generator produces prose for one memo section.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, in ExtractInput) (map[string]any, error)

func (f ExtractorFunc) Extract(ctx context.Context, in ExtractInput) (map[string]any, error) {
	return f(ctx, in)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, in GenerateInput) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, in GenerateInput) (string, error) {
	return f(ctx, in)
}

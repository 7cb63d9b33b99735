// ABOUTME: Engine wiring one memo run end to end: index, extract, filter, generate.
// ABOUTME: Agents come from a factory so the HTTP surface and tests can swap model backends.
package server

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/spectra-research/memoforge/agents"
	"github.com/spectra-research/memoforge/config"
	"github.com/spectra-research/memoforge/extract"
	"github.com/spectra-research/memoforge/memogen"
	"github.com/spectra-research/memoforge/memotype"
	"github.com/spectra-research/memoforge/retrieval"
	"github.com/spectra-research/memoforge/workflow"
)

// AgentFactory builds the agents for a memo type's sections. One extractor
// per fact section, one generator per prose section title.
type AgentFactory interface {
	Extractor(memoType string, sec memotype.Section) agents.Extractor
	Generator(memoType, title string) agents.Generator
}

// DocumentIndex is a retrieval port the engine can also feed documents into.
type DocumentIndex interface {
	retrieval.Port
	IndexText(namespace, text string)
}

// RunRequest describes one memo run.
type RunRequest struct {
	MemoType  string `json:"memo_type"`
	Text      string `json:"text"`
	Namespace string `json:"namespace,omitempty"`
}

// RunOutput is the outcome of a completed run.
type RunOutput struct {
	MemoType   string                    `json:"memo_type"`
	Facts      map[string]map[string]any `json:"facts"`
	Order      []string                  `json:"order"`
	Sections   map[string][]string       `json:"sections"`
	Incomplete []string                  `json:"incomplete,omitempty"`
	Attempts   map[string]int            `json:"attempts,omitempty"`
}

// Engine runs the full pipeline for a memo type: extraction over the raw
// text, fact filtering for the memo type, then sequential generation.
type Engine struct {
	registry *memotype.Registry
	factory  AgentFactory
	index    DocumentIndex
	cfg      *config.Config
}

// NewEngine builds an Engine. index may be nil, in which case runs proceed
// without retrieval context.
func NewEngine(registry *memotype.Registry, factory AgentFactory, index DocumentIndex, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{registry: registry, factory: factory, index: index, cfg: cfg}
}

// Run executes one memo run. events may be nil.
func (e *Engine) Run(ctx context.Context, req RunRequest, events workflow.EventHandler) (*RunOutput, error) {
	spec, err := e.registry.Resolve(req.MemoType)
	if err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, fmt.Errorf("run: empty document text")
	}

	var port retrieval.Port
	if e.index != nil && req.Namespace != "" {
		e.index.IndexText(req.Namespace, req.Text)
		port = e.index
	}

	extractors := make(map[string]agents.Extractor, len(spec.Sections))
	for _, sec := range spec.Sections {
		extractors[sec.ID] = e.factory.Extractor(spec.ID, sec)
	}
	coord, err := extract.NewCoordinator(extract.Config{
		Spec:       spec,
		Extractors: extractors,
		Retriever:  port,
		MaxRetries: e.cfg.Extraction.MaxRetries,
		TopK:       e.cfg.Extraction.TopK,
		Events:     events,
	})
	if err != nil {
		return nil, err
	}
	extracted, err := coord.Extract(ctx, req.Text, req.Namespace)
	if err != nil {
		return nil, err
	}

	facts := memotype.FilterFacts(spec.ID, extracted.Facts)

	structure := make([]memogen.SectionAgent, len(spec.Structure))
	for i, title := range spec.Structure {
		structure[i] = memogen.SectionAgent{
			Title: title,
			Agent: e.factory.Generator(spec.ID, title),
		}
	}
	pipe, err := memogen.NewPipeline(memogen.Config{
		Structure:     structure,
		Retriever:     port,
		MaxRetries:    e.cfg.Generation.MaxRetries,
		MinChars:      e.cfg.Generation.MinChars,
		MinParagraphs: e.cfg.Generation.MinParagraphs,
		TopK:          e.cfg.Generation.TopK,
		Events:        events,
	})
	if err != nil {
		return nil, err
	}
	memo, err := pipe.Generate(ctx, facts, req.Namespace)
	if err != nil {
		return nil, err
	}

	incomplete := append([]string{}, extracted.Incomplete...)
	incomplete = append(incomplete, memo.Incomplete...)

	return &RunOutput{
		MemoType:   spec.ID,
		Facts:      facts,
		Order:      memo.Order,
		Sections:   memo.Sections,
		Incomplete: incomplete,
		Attempts:   extracted.Attempts,
	}, nil
}

// OpenAIFactory builds Chat Completions backed agents from the configured
// client handle.
type OpenAIFactory struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIFactory creates the factory from the OpenAI configuration.
func NewOpenAIFactory(cfg config.OpenAIConfig) *OpenAIFactory {
	return &OpenAIFactory{
		client: agents.NewClient(agents.ClientConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (f *OpenAIFactory) Extractor(memoType string, sec memotype.Section) agents.Extractor {
	return &agents.OpenAIExtractor{
		Client:  f.client,
		Model:   f.model,
		Section: sec.ID,
		Fields:  memotype.SectionFields(memoType, sec.ID),
	}
}

func (f *OpenAIFactory) Generator(memoType, title string) agents.Generator {
	return &agents.OpenAIGenerator{
		Client:      f.client,
		Model:       f.model,
		Title:       title,
		Temperature: f.temperature,
	}
}

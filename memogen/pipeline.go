// ABOUTME: Sequential generation pipeline: one retrieve/generate/validate/retry state machine per section.
// ABOUTME: Sections run strictly in configured order; output preserves that order for export consumers.
package memogen

import (
	"context"
	"fmt"
	"strings"

	"github.com/spectra-research/memoforge/agents"
	"github.com/spectra-research/memoforge/retrieval"
	"github.com/spectra-research/memoforge/workflow"
)

// ErrorMarker prefixes text produced when a generation agent fails. The
// validator rejects any output still containing it, which routes the
// section through the retry path.
const ErrorMarker = "(section generation error"

// Validation error codes.
const (
	CodeEmpty            = "empty"
	CodeTooShort         = "too_short"
	CodeErrorMarker      = "error_marker"
	CodeTooFewParagraphs = "too_few_paragraphs"
)

// State keys used by the per-section graph.
const (
	keyRAGContext = "rag_context"
	keyGenerated  = "generated_text"
	keyErrors     = "validation_errors"
	keyAttempts   = "attempt_count"
	keyParagraphs = "paragraphs"
)

// SectionAgent binds one generation agent to one memo section title.
// The binding table is closed at pipeline construction; nothing is
// resolved per call.
type SectionAgent struct {
	Title string
	Agent agents.Generator
	// Query is the retrieval query for the section. Empty means the
	// lowercased title is used.
	Query string
}

// Config configures a Pipeline.
type Config struct {
	// Structure is the fixed, ordered list of sections to generate.
	Structure []SectionAgent
	// Retriever is optional; without it (or without a namespace per run)
	// generation proceeds with empty context.
	Retriever retrieval.Port
	// MaxRetries bounds per-section regeneration attempts. Default 2.
	MaxRetries int
	// MinChars is the minimum accepted text length after trimming,
	// counted in runes. Default 100.
	MinChars int
	// MinParagraphs is the minimum accepted paragraph count. Default 2.
	MinParagraphs int
	// TopK is the retrieval depth. Default 10.
	TopK int
	// Events receives workflow lifecycle events. Optional.
	Events workflow.EventHandler
}

// Memo is the generated document: section titles in configured order and
// the ordered paragraphs of each. Incomplete lists sections whose final
// text still failed validation after the retry budget.
type Memo struct {
	Order      []string
	Sections   map[string][]string
	Incomplete []string
}

// Pipeline generates prose for a fixed ordered list of sections.
type Pipeline struct {
	structure     []SectionAgent
	retriever     retrieval.Port
	maxRetries    int
	minChars      int
	minParagraphs int
	topK          int
	executor      *workflow.Executor
}

// NewPipeline validates the configuration and builds a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if len(cfg.Structure) == 0 {
		return nil, fmt.Errorf("memogen: structure has no sections")
	}
	seen := make(map[string]bool, len(cfg.Structure))
	for _, sa := range cfg.Structure {
		if sa.Title == "" {
			return nil, fmt.Errorf("memogen: section with empty title")
		}
		if sa.Agent == nil {
			return nil, fmt.Errorf("memogen: section %q has no agent", sa.Title)
		}
		if seen[sa.Title] {
			return nil, fmt.Errorf("memogen: duplicate section title %q", sa.Title)
		}
		seen[sa.Title] = true
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 100
	}
	if cfg.MinParagraphs <= 0 {
		cfg.MinParagraphs = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Pipeline{
		structure:     cfg.Structure,
		retriever:     cfg.Retriever,
		maxRetries:    cfg.MaxRetries,
		minChars:      cfg.MinChars,
		minParagraphs: cfg.MinParagraphs,
		topK:          cfg.TopK,
		executor:      workflow.NewExecutor(cfg.Events),
	}, nil
}

// Generate produces the full memo, running each section's state machine in
// configured order. facts should already be filtered for the memo type.
// A section whose graph fails outright still yields a placeholder entry;
// only the per-section machines decide retries.
func (p *Pipeline) Generate(ctx context.Context, facts map[string]map[string]any, namespace string) (*Memo, error) {
	memo := &Memo{
		Order:    make([]string, 0, len(p.structure)),
		Sections: make(map[string][]string, len(p.structure)),
	}

	for _, sa := range p.structure {
		memo.Order = append(memo.Order, sa.Title)

		final, err := p.runSection(ctx, sa, facts, namespace)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			memo.Sections[sa.Title] = []string{fmt.Sprintf("%s: %v)", ErrorMarker, err)}
			memo.Incomplete = append(memo.Incomplete, sa.Title)
			continue
		}

		memo.Sections[sa.Title] = final.paragraphs
		if final.incomplete {
			memo.Incomplete = append(memo.Incomplete, sa.Title)
		}
	}

	return memo, nil
}

// sectionOutcome is the finalized output of one section machine.
type sectionOutcome struct {
	paragraphs []string
	incomplete bool
}

// runSection drives the prepare -> generate -> validate -> (retry|finalize)
// machine for one section with its own private state.
func (p *Pipeline) runSection(ctx context.Context, sa SectionAgent, facts map[string]map[string]any, namespace string) (*sectionOutcome, error) {
	g := workflow.NewGraph().
		AddStep("prepare_section", p.prepareStep(sa, namespace)).
		AddStep("generate_with_agent", p.generateStep(sa, facts)).
		AddStep("validate_output", p.validateStep()).
		AddStep("retry_section", p.retryStep()).
		AddStep("finalize", p.finalizeStep()).
		AddEdge("prepare_section", "generate_with_agent").
		AddEdge("generate_with_agent", "validate_output").
		AddConditionalEdges("validate_output", p.routeAfterValidate, map[string]string{
			"retry":    "retry_section",
			"finalize": "finalize",
		}).
		AddEdge("retry_section", "generate_with_agent").
		AddEdge("finalize", workflow.End).
		SetEntry("prepare_section")

	st := workflow.NewStateFrom(map[string]any{keyAttempts: 0})
	final, err := p.executor.Run(ctx, g, st)
	if err != nil {
		return nil, err
	}

	return &sectionOutcome{
		paragraphs: final.GetStrings(keyParagraphs),
		incomplete: len(final.GetStrings(keyErrors)) > 0,
	}, nil
}

// prepareStep fetches section context. Absence of a namespace or retriever
// is not an error; retrieval failures degrade to empty context.
func (p *Pipeline) prepareStep(sa SectionAgent, namespace string) workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (map[string]any, error) {
		if p.retriever == nil || namespace == "" {
			return map[string]any{keyRAGContext: ""}, nil
		}
		query := sa.Query
		if query == "" {
			query = strings.ToLower(sa.Title)
		}
		snippets, err := p.retriever.Query(ctx, retrieval.Query{
			Namespace: namespace,
			Text:      query,
			TopK:      p.topK,
		})
		if err != nil {
			st.AppendLog(fmt.Sprintf("retrieval failed for %q: %v", sa.Title, err))
			return map[string]any{keyRAGContext: ""}, nil
		}
		parts := make([]string, len(snippets))
		for i, s := range snippets {
			parts[i] = s.Text
		}
		return map[string]any{keyRAGContext: strings.Join(parts, "\n\n")}, nil
	}
}

// generateStep invokes the section agent. Agent failures are captured as an
// error-marker string so validation can classify and retry them uniformly.
func (p *Pipeline) generateStep(sa SectionAgent, facts map[string]map[string]any) workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (map[string]any, error) {
		text, err := invokeGenerator(ctx, sa.Agent, agents.GenerateInput{
			Facts:   facts,
			Context: st.GetString(keyRAGContext, ""),
		})
		if err != nil {
			return map[string]any{
				keyGenerated: fmt.Sprintf("%s: %v)", ErrorMarker, err),
			}, nil
		}
		return map[string]any{keyGenerated: text}, nil
	}
}

// invokeGenerator calls the agent with panic capture, so a misbehaving agent
// is handled the same way as one returning an error.
func invokeGenerator(ctx context.Context, g agents.Generator, in agents.GenerateInput) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return g.Generate(ctx, in)
}

// validateStep classifies the generated text against the fixed rules.
// A fresh error list is computed on every pass.
func (p *Pipeline) validateStep() workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (map[string]any, error) {
		text := st.GetString(keyGenerated, "")
		return map[string]any{keyErrors: p.classify(text)}, nil
	}
}

// classify returns one error code per failed validation rule.
func (p *Pipeline) classify(text string) []string {
	errs := []string{}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		errs = append(errs, CodeEmpty)
	}
	if len([]rune(trimmed)) < p.minChars {
		errs = append(errs, CodeTooShort)
	}
	if strings.Contains(text, ErrorMarker) {
		errs = append(errs, CodeErrorMarker)
	}
	if len(SplitParagraphs(text)) < p.minParagraphs {
		errs = append(errs, CodeTooFewParagraphs)
	}
	return errs
}

// routeAfterValidate retries while errors remain and the budget allows;
// otherwise it finalizes, accepting best-effort output.
func (p *Pipeline) routeAfterValidate(st *workflow.State) string {
	if len(st.GetStrings(keyErrors)) == 0 {
		return "finalize"
	}
	if st.GetInt(keyAttempts, 0) < p.maxRetries {
		return "retry"
	}
	return "finalize"
}

// retryStep increments the attempt counter and clears prior errors before
// routing back to generation.
func (p *Pipeline) retryStep() workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (map[string]any, error) {
		return map[string]any{
			keyAttempts: st.GetInt(keyAttempts, 0) + 1,
			keyErrors:   []string{},
		}, nil
	}
}

// finalizeStep splits the accepted (or exhausted) text into normalized
// paragraphs. Validation errors in state are left as-is so the caller can
// see whether this section fell back.
func (p *Pipeline) finalizeStep() workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (map[string]any, error) {
		paragraphs := SplitParagraphs(st.GetString(keyGenerated, ""))
		for i, para := range paragraphs {
			paragraphs[i] = NormalizeValues(para)
		}
		return map[string]any{keyParagraphs: paragraphs}, nil
	}
}

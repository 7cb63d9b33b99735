// ABOUTME: Parallel extraction coordinator: fans out one task per section, validates, and retries only failures.
// ABOUTME: Built on the workflow executor; merge order is deterministic regardless of completion order.
package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spectra-research/memoforge/agents"
	"github.com/spectra-research/memoforge/memotype"
	"github.com/spectra-research/memoforge/retrieval"
	"github.com/spectra-research/memoforge/workflow"
)

// IncompleteKey marks a section whose extraction still failed after the
// retry budget was exhausted. The partial data is kept alongside it.
const IncompleteKey = "_incomplete"

// State keys used by the coordinator graph.
const (
	keyText      = "document_text"
	keyNamespace = "namespace"
	keyFailed    = "failed_sections"
	keyRounds    = "retry_rounds"
	keyErrors    = "validation_errors"
)

// Config configures a Coordinator.
type Config struct {
	// Spec is the memo type being extracted. Required.
	Spec *memotype.Spec
	// Extractors maps each section ID to its extraction agent. Every
	// section in Spec must have an entry.
	Extractors map[string]agents.Extractor
	// Retriever is optional; when set (and a namespace is provided per
	// run) each task fetches section-specific context before extracting.
	Retriever retrieval.Port
	// MaxRetries bounds the number of additional retry rounds. Default 2.
	MaxRetries int
	// TopK is the retrieval depth per section query. Default 10.
	TopK int
	// Events receives workflow lifecycle events. Optional.
	Events workflow.EventHandler
}

// Result is the merged outcome of one extraction run.
type Result struct {
	// Facts maps every configured section ID to its extracted fields.
	// No key is ever missing, even for sections that failed every retry.
	Facts map[string]map[string]any
	// Sections is the configured section order.
	Sections []string
	// Incomplete lists sections that exhausted the retry budget.
	Incomplete []string
	// Attempts records how many times each section's agent was invoked.
	Attempts map[string]int
	// Errors holds the validation error codes from the final round.
	Errors []string
}

// Coordinator extracts structured facts for every section of a memo type
// concurrently, with retry isolated to failing sections. A Coordinator is
// safe for concurrent Extract calls; all per-run state lives in the run.
type Coordinator struct {
	spec       *memotype.Spec
	extractors map[string]agents.Extractor
	retriever  retrieval.Port
	maxRetries int
	topK       int
	executor   *workflow.Executor
}

// NewCoordinator validates the configuration and builds a Coordinator.
// A missing extractor for a configured section is a configuration error.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Spec == nil {
		return nil, fmt.Errorf("extract: spec is required")
	}
	for _, sec := range cfg.Spec.Sections {
		if _, ok := cfg.Extractors[sec.ID]; !ok {
			return nil, fmt.Errorf("extract: no extractor for section %q", sec.ID)
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Coordinator{
		spec:       cfg.Spec,
		extractors: cfg.Extractors,
		retriever:  cfg.Retriever,
		maxRetries: cfg.MaxRetries,
		topK:       cfg.TopK,
		executor:   workflow.NewExecutor(cfg.Events),
	}, nil
}

// run holds the mutable fan-in state of one Extract call.
type run struct {
	c        *Coordinator
	mu       sync.Mutex
	results  map[string]map[string]any
	taskErrs map[string]string
	attempts map[string]int
}

// Extract runs the extraction graph over the given document text.
// namespace may be empty, in which case no retrieval is performed.
func (c *Coordinator) Extract(ctx context.Context, text, namespace string) (*Result, error) {
	r := &run{
		c:        c,
		results:  make(map[string]map[string]any, len(c.spec.Sections)),
		taskErrs: make(map[string]string),
		attempts: make(map[string]int, len(c.spec.Sections)),
	}

	g := workflow.NewGraph().
		AddStep("extract_all", r.stepExtractAll).
		AddStep("validate", r.stepValidate).
		AddStep("retry_failed", r.stepRetryFailed).
		AddStep("finalize", r.stepFinalize).
		AddEdge("extract_all", "validate").
		AddConditionalEdges("validate", r.routeAfterValidate, map[string]string{
			"retry":    "retry_failed",
			"finalize": "finalize",
		}).
		AddEdge("retry_failed", "validate").
		AddEdge("finalize", workflow.End).
		SetEntry("extract_all")

	st := workflow.NewStateFrom(map[string]any{
		keyText:      text,
		keyNamespace: namespace,
		keyRounds:    0,
	})

	final, err := c.executor.Run(ctx, g, st)
	if err != nil {
		return nil, err
	}

	result, _ := final.Get("result").(*Result)
	if result == nil {
		return nil, fmt.Errorf("extract: finalize produced no result")
	}
	return result, nil
}

// stepExtractAll fans out one task per configured section.
func (r *run) stepExtractAll(ctx context.Context, st *workflow.State) (map[string]any, error) {
	r.runSections(ctx, st, r.c.spec.SectionIDs())
	return nil, nil
}

// stepRetryFailed re-runs only the sections that failed validation.
func (r *run) stepRetryFailed(ctx context.Context, st *workflow.State) (map[string]any, error) {
	r.runSections(ctx, st, st.GetStrings(keyFailed))
	return map[string]any{keyRounds: st.GetInt(keyRounds, 0) + 1}, nil
}

// taskResult is the fan-in record for one section task.
type taskResult struct {
	section string
	fields  map[string]any
	err     error
}

// runSections executes extraction tasks for the given sections concurrently.
// Each task gets value copies of its inputs; results land in an indexed
// slice and are merged single-threaded after all tasks complete, so no task
// ever observes another's state. One task's failure never cancels siblings.
func (r *run) runSections(ctx context.Context, st *workflow.State, sectionIDs []string) {
	if len(sectionIDs) == 0 {
		return
	}

	text := st.GetString(keyText, "")
	namespace := st.GetString(keyNamespace, "")

	results := make([]taskResult, len(sectionIDs))
	var wg sync.WaitGroup
	for i, id := range sectionIDs {
		wg.Add(1)
		go func(idx int, sectionID string) {
			defer wg.Done()
			fields, err := r.extractOne(ctx, sectionID, text, namespace)
			results[idx] = taskResult{section: sectionID, fields: fields, err: err}
		}(i, id)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		r.attempts[res.section]++
		if res.err != nil {
			r.taskErrs[res.section] = res.err.Error()
			if _, ok := r.results[res.section]; !ok {
				r.results[res.section] = map[string]any{}
			}
			continue
		}
		delete(r.taskErrs, res.section)
		r.results[res.section] = res.fields
	}
}

// extractOne runs a single section task: optional retrieval, then the agent.
// A retrieval failure degrades to empty context rather than failing the task.
func (r *run) extractOne(ctx context.Context, sectionID, text, namespace string) (fields map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			fields = nil
			err = fmt.Errorf("extractor panic in section %q: %v", sectionID, rec)
		}
	}()

	var ragContext string
	if r.c.retriever != nil && namespace != "" {
		if sec := r.c.spec.FindSection(sectionID); sec != nil {
			snippets, qerr := r.c.retriever.Query(ctx, retrieval.Query{
				Namespace: namespace,
				Text:      sec.Query,
				TopK:      r.c.topK,
			})
			if qerr == nil {
				parts := make([]string, len(snippets))
				for i, s := range snippets {
					parts[i] = s.Text
				}
				ragContext = strings.Join(parts, "\n\n")
			}
		}
	}

	return r.c.extractors[sectionID].Extract(ctx, agents.ExtractInput{
		Text:     text,
		MemoType: r.c.spec.ID,
		Context:  ragContext,
	})
}

// stepValidate recomputes the failing section set from the current results.
func (r *run) stepValidate(ctx context.Context, st *workflow.State) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []string
	var errs []string
	for _, sec := range r.c.spec.Sections {
		if msg, ok := r.taskErrs[sec.ID]; ok {
			failed = append(failed, sec.ID)
			errs = append(errs, fmt.Sprintf("%s: agent error: %s", sec.ID, msg))
			continue
		}
		if code := validateSection(sec, r.results[sec.ID]); code != "" {
			failed = append(failed, sec.ID)
			errs = append(errs, fmt.Sprintf("%s: %s", sec.ID, code))
		}
	}

	return map[string]any{keyFailed: failed, keyErrors: errs}, nil
}

// validateSection checks structural validity of one section's fields.
// Returns an error code, or "" when valid.
func validateSection(sec memotype.Section, fields map[string]any) string {
	if fields == nil {
		return "missing result"
	}
	for _, field := range sec.Required {
		if !isPopulated(fields[field]) {
			return fmt.Sprintf("required field %q empty", field)
		}
	}
	if len(sec.RequiredAny) > 0 {
		found := false
		for _, field := range sec.RequiredAny {
			if isPopulated(fields[field]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("none of %v populated", sec.RequiredAny)
		}
	}
	return ""
}

// isPopulated reports whether an extracted value carries data.
func isPopulated(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		trimmed := strings.TrimSpace(val)
		return trimmed != "" && trimmed != "null"
	default:
		return true
	}
}

// routeAfterValidate decides between another retry round and finalizing.
// The round counter bounds the loop regardless of validation outcome.
func (r *run) routeAfterValidate(st *workflow.State) string {
	failed := st.GetStrings(keyFailed)
	if len(failed) > 0 && st.GetInt(keyRounds, 0) < r.c.maxRetries {
		return "retry"
	}
	return "finalize"
}

// stepFinalize merges section results in configured order, marking sections
// that never produced a valid result.
func (r *run) stepFinalize(ctx context.Context, st *workflow.State) (map[string]any, error) {
	stillFailed := make(map[string]bool)
	for _, id := range st.GetStrings(keyFailed) {
		stillFailed[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	facts := make(map[string]map[string]any, len(r.c.spec.Sections))
	var incomplete []string
	for _, sec := range r.c.spec.Sections {
		fields := r.results[sec.ID]
		if fields == nil {
			fields = map[string]any{}
		}
		if stillFailed[sec.ID] {
			// Copy before marking so retained task output is not mutated.
			marked := make(map[string]any, len(fields)+1)
			for k, v := range fields {
				marked[k] = v
			}
			marked[IncompleteKey] = true
			fields = marked
			incomplete = append(incomplete, sec.ID)
		}
		facts[sec.ID] = fields
	}

	attempts := make(map[string]int, len(r.attempts))
	for k, v := range r.attempts {
		attempts[k] = v
	}

	return map[string]any{"result": &Result{
		Facts:      facts,
		Sections:   r.c.spec.SectionIDs(),
		Incomplete: incomplete,
		Attempts:   attempts,
		Errors:     st.GetStrings(keyErrors),
	}}, nil
}

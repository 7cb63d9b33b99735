// ABOUTME: Tests for the per-section generation state machine and memo assembly.
// ABOUTME: Uses scripted fake agents with call counters to pin down retry behavior.
package memogen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spectra-research/memoforge/agents"
	"github.com/spectra-research/memoforge/retrieval"
)

// fakeGenerator returns scripted outputs per attempt and counts calls.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	outputs []string
	errs    []error
	lastIn  agents.GenerateInput
}

func (f *fakeGenerator) Generate(ctx context.Context, in agents.GenerateInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastIn = in
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.outputs) {
		return f.outputs[i], nil
	}
	if len(f.outputs) > 0 {
		return f.outputs[len(f.outputs)-1], nil
	}
	return "", errors.New("no scripted output")
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// goodText builds a two-paragraph body comfortably above the length floor.
func goodText(label string) string {
	para := strings.Repeat(label+" discusses the opportunity in detail. ", 3)
	return para + "\n\n" + para
}

func TestGenerateHappyPath(t *testing.T) {
	gen := &fakeGenerator{outputs: []string{goodText("Overview")}}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "Overview", Agent: gen}},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.callCount() != 1 {
		t.Errorf("agent calls = %d, want 1", gen.callCount())
	}
	if len(memo.Incomplete) != 0 {
		t.Errorf("incomplete = %v, want none", memo.Incomplete)
	}
	if len(memo.Sections["Overview"]) != 2 {
		t.Errorf("paragraphs = %d, want 2", len(memo.Sections["Overview"]))
	}
}

func TestFailingAgentInvokedExactlyRetryBudgetPlusOne(t *testing.T) {
	gen := &fakeGenerator{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	p, err := NewPipeline(Config{
		Structure:  []SectionAgent{{Title: "Returns", Agent: gen}},
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.callCount() != 3 {
		t.Errorf("agent calls = %d, want exactly 3 (1 initial + 2 retries)", gen.callCount())
	}
	if len(memo.Incomplete) != 1 || memo.Incomplete[0] != "Returns" {
		t.Errorf("incomplete = %v, want [Returns]", memo.Incomplete)
	}
	paras := memo.Sections["Returns"]
	if len(paras) == 0 || !strings.Contains(paras[0], ErrorMarker) {
		t.Errorf("exhausted section should keep marked best-effort text, got %v", paras)
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{errors.New("transient")},
		outputs: []string{"", goodText("Financials")},
	}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "Financials", Agent: gen}},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.callCount() != 2 {
		t.Errorf("agent calls = %d, want 2", gen.callCount())
	}
	if len(memo.Incomplete) != 0 {
		t.Errorf("incomplete = %v, want none", memo.Incomplete)
	}
}

func TestValidationBoundaries(t *testing.T) {
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "x", Agent: &fakeGenerator{}}},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	short := strings.Repeat("a", 99)
	errs := p.classify(short)
	if len(errs) != 2 {
		t.Fatalf("99-char single block: errors = %v, want too_short and too_few_paragraphs", errs)
	}
	wantCodes := map[string]bool{CodeTooShort: true, CodeTooFewParagraphs: true}
	for _, c := range errs {
		if !wantCodes[c] {
			t.Errorf("unexpected code %q", c)
		}
	}

	ok := strings.Repeat("b", 75) + "\n\n" + strings.Repeat("c", 75)
	if errs := p.classify(ok); len(errs) != 0 {
		t.Errorf("150-char two-paragraph text: errors = %v, want none", errs)
	}

	if errs := p.classify(""); len(errs) != 3 {
		t.Errorf("empty text: errors = %v, want empty, too_short, too_few_paragraphs", errs)
	}

	marked := goodText("fine") + " " + ErrorMarker + ": upstream)"
	found := false
	for _, c := range p.classify(marked) {
		if c == CodeErrorMarker {
			found = true
		}
	}
	if !found {
		t.Errorf("text containing the error marker must be rejected")
	}
}

func TestSectionOrderIsPreserved(t *testing.T) {
	titles := []string{"Identification", "Transaction", "Financials", "Returns", "Opinions"}
	structure := make([]SectionAgent, len(titles))
	for i, title := range titles {
		var gen *fakeGenerator
		if title == "Financials" {
			gen = &fakeGenerator{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
		} else {
			gen = &fakeGenerator{outputs: []string{goodText(title)}}
		}
		structure[i] = SectionAgent{Title: title, Agent: gen}
	}
	p, err := NewPipeline(Config{Structure: structure})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(memo.Order) != len(titles) {
		t.Fatalf("order has %d entries, want %d", len(memo.Order), len(titles))
	}
	for i, title := range titles {
		if memo.Order[i] != title {
			t.Errorf("order[%d] = %q, want %q", i, memo.Order[i], title)
		}
		if _, ok := memo.Sections[title]; !ok {
			t.Errorf("section %q missing from output", title)
		}
	}
	if len(memo.Incomplete) != 1 || memo.Incomplete[0] != "Financials" {
		t.Errorf("incomplete = %v, want [Financials]", memo.Incomplete)
	}
}

func TestRetrievalContextReachesAgent(t *testing.T) {
	store := retrieval.NewMemoryStore()
	store.Index("deal-7", []retrieval.Chunk{
		{Text: "EBITDA margin expanded to 31% in the latest fiscal year."},
	}...)
	gen := &fakeGenerator{outputs: []string{goodText("Financials")}}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "Financials", Agent: gen, Query: "EBITDA margin"}},
		Retriever: store,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Generate(context.Background(), nil, "deal-7"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	gen.mu.Lock()
	got := gen.lastIn.Context
	gen.mu.Unlock()
	if !strings.Contains(got, "EBITDA margin") {
		t.Errorf("agent context = %q, want retrieved snippet", got)
	}
}

type failingPort struct{}

func (failingPort) Query(ctx context.Context, q retrieval.Query) ([]retrieval.Snippet, error) {
	return nil, errors.New("index offline")
}

func TestRetrievalFailureDegradesToEmptyContext(t *testing.T) {
	gen := &fakeGenerator{outputs: []string{goodText("Exit")}}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "Exit", Agent: gen}},
		Retriever: failingPort{},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "deal-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(memo.Incomplete) != 0 {
		t.Errorf("retrieval failure must not fail the section, incomplete = %v", memo.Incomplete)
	}
	gen.mu.Lock()
	got := gen.lastIn.Context
	gen.mu.Unlock()
	if got != "" {
		t.Errorf("agent context = %q, want empty on retrieval failure", got)
	}
}

type panickyGenerator struct{ calls int }

func (p *panickyGenerator) Generate(ctx context.Context, in agents.GenerateInput) (string, error) {
	p.calls++
	panic("agent bug")
}

func TestPanickingAgentHandledLikeError(t *testing.T) {
	gen := &panickyGenerator{}
	p, err := NewPipeline(Config{
		Structure:  []SectionAgent{{Title: "Opinions", Agent: gen}},
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	memo, err := p.Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("agent calls = %d, want 2 (1 initial + 1 retry)", gen.calls)
	}
	if len(memo.Incomplete) != 1 {
		t.Errorf("panicking agent should leave section incomplete")
	}
}

func TestFactsArePassedThrough(t *testing.T) {
	gen := &fakeGenerator{outputs: []string{goodText("Transaction")}}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "Transaction", Agent: gen}},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	facts := map[string]map[string]any{
		"transaction": {"ev_mm": 120.0},
	}
	if _, err := p.Generate(context.Background(), facts, ""); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	gen.mu.Lock()
	got := gen.lastIn.Facts
	gen.mu.Unlock()
	if got["transaction"]["ev_mm"] != 120.0 {
		t.Errorf("facts not delivered to agent: %v", got)
	}
}

func TestNewPipelineRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty structure", Config{}},
		{"missing agent", Config{Structure: []SectionAgent{{Title: "x"}}}},
		{"empty title", Config{Structure: []SectionAgent{{Agent: &fakeGenerator{}}}}},
		{"duplicate title", Config{Structure: []SectionAgent{
			{Title: "x", Agent: &fakeGenerator{}},
			{Title: "x", Agent: &fakeGenerator{}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPipeline(tc.cfg); err == nil {
				t.Errorf("NewPipeline accepted invalid config")
			}
		})
	}
}

func TestGenerateStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{outputs: []string{goodText("x")}}
	p, err := NewPipeline(Config{
		Structure: []SectionAgent{{Title: "x", Agent: gen}},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Generate(ctx, nil, ""); err == nil {
		t.Errorf("Generate with cancelled context should fail")
	}
}

func TestSplitParagraphs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"A.\n\nB.\n\nC.", []string{"A.", "B.", "C."}},
		{"single block", []string{"single block"}},
		{"lead\n\n\n\ntrail\n\n", []string{"lead", "trail"}},
		{"  \n\n  ", nil},
		{"a\n \nb", []string{"a", "b"}},
	}
	for _, tc := range cases {
		got := SplitParagraphs(tc.in)
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("SplitParagraphs(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeValues(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"acquired for BRL 450 million", "acquired for R$ 450 million"},
		{"EV of USD 1.2 billion", "EV of US$ 1.2 billion"},
		{"priced in EUR 80mm", "priced in € 80mm"},
		{"double  spaced   text", "double spaced text"},
		{"BRLX 450 stays", "BRLX 450 stays"},
	}
	for _, tc := range cases {
		if got := NormalizeValues(tc.in); got != tc.want {
			t.Errorf("NormalizeValues(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ABOUTME: Executor that drives a workflow graph from its entry step to a terminal label.
// ABOUTME: Steps run to completion with panic recovery; failures surface with the accumulated state.
package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// maxIterations guards against routers that never reach End. Retry loops are
// expected; unbounded ones are a bug in the router, not the executor.
const maxIterations = 10000

// StepError reports a step failure together with the state accumulated up to
// the point of failure, so callers can inspect partial progress.
type StepError struct {
	Step  string
	State *State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Executor runs workflow graphs.
type Executor struct {
	eventHandler EventHandler
}

// NewExecutor creates an Executor. handler may be nil.
func NewExecutor(handler EventHandler) *Executor {
	return &Executor{eventHandler: handler}
}

// Run executes the graph from its entry step until a terminal label is
// reached, returning the final State. Each step executes to completion
// before its outgoing edge is evaluated; updates returned by a step are
// merged into the state before any router sees it. On step failure the
// returned error is a *StepError carrying the state so far.
func (e *Executor) Run(ctx context.Context, g *Graph, st *State) (*State, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if st == nil {
		st = NewState()
	}

	e.emit(Event{Type: EventRunStarted, Step: g.entry})

	current := g.entry
	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations {
			err := fmt.Errorf("execution exceeded %d iterations, possible unbounded loop", maxIterations)
			e.emit(Event{Type: EventRunFailed, Step: current, Data: map[string]any{"error": err.Error()}})
			return st, &StepError{Step: current, State: st, Err: err}
		}

		select {
		case <-ctx.Done():
			e.emit(Event{Type: EventRunFailed, Step: current, Data: map[string]any{"error": ctx.Err().Error()}})
			return st, &StepError{Step: current, State: st, Err: ctx.Err()}
		default:
		}

		fn := g.steps[current]
		e.emit(Event{Type: EventStepStarted, Step: current})

		updates, err := safeRun(ctx, current, fn, st)
		if err != nil {
			e.emit(Event{Type: EventStepFailed, Step: current, Data: map[string]any{"error": err.Error()}})
			e.emit(Event{Type: EventRunFailed, Step: current})
			return st, &StepError{Step: current, State: st, Err: err}
		}
		if updates != nil {
			st.ApplyUpdates(updates)
		}
		e.emit(Event{Type: EventStepCompleted, Step: current})

		next, err := g.next(current, st)
		if err != nil {
			e.emit(Event{Type: EventRunFailed, Step: current, Data: map[string]any{"error": err.Error()}})
			return st, &StepError{Step: current, State: st, Err: err}
		}
		if next == End {
			break
		}
		current = next
	}

	e.emit(Event{Type: EventRunCompleted})
	return st, nil
}

// safeRun invokes a step with panic recovery, converting panics into errors.
// A misbehaving step must not take down the whole run.
func safeRun(ctx context.Context, name string, fn StepFunc, st *State) (updates map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic in step %q: %v\n%s", name, r, stack)
			updates = nil
		}
	}()
	return fn(ctx, st)
}

// emit sends an event to the configured handler, stamping the time.
func (e *Executor) emit(evt Event) {
	if e.eventHandler == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.eventHandler(evt)
}

// ABOUTME: Graph definition for the workflow executor: named steps, edges, and routers.
// ABOUTME: Provides a builder API with validation before execution.
package workflow

import (
	"context"
	"fmt"
)

// End is the terminal label. An edge or router pointing at End stops the run.
const End = "__end__"

// StepFunc is a named unit of work. It reads the current State and returns a
// set of updates the executor merges back in after the step completes.
// Steps must not depend on ordering side effects outside the graph.
type StepFunc func(ctx context.Context, st *State) (map[string]any, error)

// Router decides the next step label after a step completes. It is evaluated
// strictly after its source step, using only the State that step produced.
// Routers must be pure functions of the State.
type Router func(st *State) string

// conditionalEdge pairs a router with its label-to-step table.
type conditionalEdge struct {
	router Router
	routes map[string]string
}

// Graph is a directed graph of named steps with unconditional and
// conditional edges. Cycles are permitted; bounding a retry loop is the
// responsibility of the router plus a counter in State.
type Graph struct {
	steps       map[string]StepFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entry       string
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		steps:       make(map[string]StepFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge),
	}
}

// AddStep registers a named step. Re-registering a name replaces the step.
func (g *Graph) AddStep(name string, fn StepFunc) *Graph {
	g.steps[name] = fn
	return g
}

// AddEdge adds an unconditional edge from one step to another (or to End).
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// AddConditionalEdges attaches a router to a step. After the step completes,
// the router's label is resolved through routes to the next step name.
// A label may map directly to End.
func (g *Graph) AddConditionalEdges(from string, router Router, routes map[string]string) *Graph {
	g.conditional[from] = conditionalEdge{router: router, routes: routes}
	return g
}

// SetEntry marks the step execution starts from.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// Validate checks the graph for structural problems: missing entry, edges
// referencing unknown steps, or a step carrying both an unconditional edge
// and a conditional edge.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph has no entry step")
	}
	if _, ok := g.steps[g.entry]; !ok {
		return fmt.Errorf("entry step %q is not registered", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.steps[from]; !ok {
			return fmt.Errorf("edge from unknown step %q", from)
		}
		if to != End {
			if _, ok := g.steps[to]; !ok {
				return fmt.Errorf("edge from %q points to unknown step %q", from, to)
			}
		}
		if _, ok := g.conditional[from]; ok {
			return fmt.Errorf("step %q has both an unconditional and a conditional edge", from)
		}
	}
	for from, ce := range g.conditional {
		if _, ok := g.steps[from]; !ok {
			return fmt.Errorf("conditional edge from unknown step %q", from)
		}
		if ce.router == nil {
			return fmt.Errorf("conditional edge from %q has no router", from)
		}
		if len(ce.routes) == 0 {
			return fmt.Errorf("conditional edge from %q has no routes", from)
		}
		for label, to := range ce.routes {
			if to == End {
				continue
			}
			if _, ok := g.steps[to]; !ok {
				return fmt.Errorf("route %q from %q points to unknown step %q", label, from, to)
			}
		}
	}
	return nil
}

// next resolves the step following from, given the current state.
// Returns End when the step has no outgoing edge.
func (g *Graph) next(from string, st *State) (string, error) {
	if ce, ok := g.conditional[from]; ok {
		label := ce.router(st)
		if label == End {
			return End, nil
		}
		to, ok := ce.routes[label]
		if !ok {
			return "", fmt.Errorf("router at %q returned unknown label %q", from, label)
		}
		return to, nil
	}
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	return End, nil
}

// ABOUTME: Memo type registry: which sections each memo type extracts and in what order.
// ABOUTME: Resolved once at pipeline construction; unknown types are a fatal configuration error.
package memotype

import (
	"errors"
	"fmt"
)

// ErrUnknownMemoType is returned when a memo type is not registered.
// This is a configuration error and is never retried.
var ErrUnknownMemoType = errors.New("unknown memo type")

// Section describes one extractable unit of structured facts.
type Section struct {
	// ID is the stable section identifier used as the key in fact maps.
	ID string
	// Query is the retrieval query used to fetch context for this section.
	Query string
	// Required lists fields that must all be populated for the extraction
	// to be considered structurally valid.
	Required []string
	// RequiredAny lists fields of which at least one must be populated.
	RequiredAny []string
}

// Spec is the full configuration of one memo type: the ordered, deduplicated
// set of extraction sections and the ordered titles of the generated memo.
type Spec struct {
	ID       string
	Name     string
	Sections []Section
	// Structure is the fixed, ordered list of generated section titles.
	Structure []string
}

// SectionIDs returns the ordered section identifiers.
func (s *Spec) SectionIDs() []string {
	ids := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		ids[i] = sec.ID
	}
	return ids
}

// FindSection returns the section with the given ID, or nil.
func (s *Spec) FindSection(id string) *Section {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i]
		}
	}
	return nil
}

// Registry maps memo type IDs to their specs.
type Registry struct {
	specs map[string]*Spec
	order []string
}

// NewRegistry creates a registry containing the given specs. Duplicate
// section IDs within a spec are dropped, keeping the first occurrence.
func NewRegistry(specs ...*Spec) *Registry {
	r := &Registry{specs: make(map[string]*Spec, len(specs))}
	for _, spec := range specs {
		spec.Sections = dedupeSections(spec.Sections)
		r.specs[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}
	return r
}

// Resolve returns the spec for a memo type ID.
func (r *Registry) Resolve(id string) (*Spec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMemoType, id)
	}
	return spec, nil
}

// Types returns the registered memo type IDs in registration order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func dedupeSections(sections []Section) []Section {
	seen := make(map[string]bool, len(sections))
	out := sections[:0]
	for _, sec := range sections {
		if seen[sec.ID] {
			continue
		}
		seen[sec.ID] = true
		out = append(out, sec)
	}
	return out
}

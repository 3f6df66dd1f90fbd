// Package resource defines the immutable descriptors that flow along the
// edges of a workflow DAG: files, file packs, database URLs, and the
// filter stacks attached to them.
package resource

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Kind identifies the shape of data a Resource points at.
type Kind string

const (
	KindFile          Kind = "file"
	KindFilePack      Kind = "file_pack"
	KindDatabase      Kind = "database"
	KindTransientFile Kind = "transient_file"
)

// FilterDescriptor is one element of a FilterStack: a single filter
// (scenario, tool, ...) applied to a database URL.
type FilterDescriptor struct {
	// Type groups filters that are mutually exclusive axes of the same
	// Cartesian expansion (e.g. "scenario", "tool").
	Type string `json:"type"`
	// ID is the stable identifier for this filter within its Type.
	ID string `json:"id"`
	// Name is a human-readable label; it does not participate in equality.
	Name string `json:"-"`
}

// FilterStack is an ordered sequence of filters applied, in order, to a
// database resource. Two stacks are equal iff their descriptor sequences
// are equal; an empty stack means the resource is unfiltered.
type FilterStack []FilterDescriptor

// Equal reports whether two stacks have identical descriptor sequences.
func (s FilterStack) Equal(other FilterStack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Type != other[i].Type || s[i].ID != other[i].ID {
			return false
		}
	}
	return true
}

// ID returns the deterministic hash of the stack: the hex-encoded xxhash64
// digest of its canonical JSON encoding. encoding/json sorts map keys
// during marshalling, and FilterDescriptor's fields marshal in declaration
// order, so the same stack always yields the same id regardless of how it
// was built — the invariant computing filter_id(s) twice yields the same
// value holds across process restarts.
//
// An empty stack has id "" (unfiltered resources carry no filter id).
func (s FilterStack) ID() string {
	if len(s) == 0 {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		// FilterStack only contains strings; Marshal cannot fail.
		panic(fmt.Sprintf("resource: filter stack marshal: %v", err))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// JoinFilterIDs derives the composite filter id for a sub-execution from
// the per-predecessor filter ids that contributed to it. The exact
// separator is engine-internal (spec.md leaves the composition rule
// unspecified beyond "join"); empty ids are skipped so an unfiltered
// predecessor does not widen the composite id with a stray separator.
func JoinFilterIDs(ids ...string) string {
	composite := ""
	for _, id := range ids {
		if id == "" {
			continue
		}
		if composite != "" {
			composite += "|"
		}
		composite += id
	}
	return composite
}

// Resource is an immutable descriptor of a file, file pack, or database
// URL flowing along a connection. Equality and hashing are defined over
// (Provider, Kind, Label, URL, FilterStack); a file_pack resource is never
// equal to a non-pack resource carrying the same label.
type Resource struct {
	Provider    string
	Kind        Kind
	Label       string
	URL         string
	FilterStack FilterStack
	Metadata    map[string]any
}

// New constructs a Resource. Transient files with no caller-supplied label
// get a generated one so concurrent sub-executions never collide on an
// empty label.
func New(provider string, kind Kind, label, url string) Resource {
	if kind == KindTransientFile && label == "" {
		label = "transient-" + uuid.Must(uuid.NewV7()).String()
	}
	return Resource{
		Provider: provider,
		Kind:     kind,
		Label:    label,
		URL:      url,
		Metadata: make(map[string]any),
	}
}

// FilterID is the stable hash of this resource's filter stack.
func (r Resource) FilterID() string {
	return r.FilterStack.ID()
}

// WithFilterStack returns a clone of r carrying the given filter stack.
// Used by the fan-out expander to produce one clone per filter
// combination.
func (r Resource) WithFilterStack(stack FilterStack) Resource {
	clone := r
	clone.FilterStack = append(FilterStack(nil), stack...)
	clone.Metadata = maps.Clone(r.Metadata)
	return clone
}

// Equal reports whether r and other refer to the same logical resource,
// per the spec's (provider, kind, label, url, filter_stack) equality.
func (r Resource) Equal(other Resource) bool {
	return r.Provider == other.Provider &&
		r.Kind == other.Kind &&
		r.Label == other.Label &&
		r.URL == other.URL &&
		r.FilterStack.Equal(other.FilterStack)
}

// Key returns a comparable, hashable string suitable for use as a map key,
// combining identity and filter id.
func (r Resource) Key() string {
	return r.Provider + "\x1f" + string(r.Kind) + "\x1f" + r.Label + "\x1f" + r.URL + "\x1f" + r.FilterID()
}

// IsPack reports whether this resource is a file pack.
func (r Resource) IsPack() bool {
	return r.Kind == KindFilePack
}

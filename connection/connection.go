// Package connection implements the directed edges between workflow items:
// resource conversion, per-resource filter activation, and the
// Cartesian-product enumeration of active filter combinations that drives
// the engine's fan-out.
package connection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowkernel/engine/resource"
)

// Options holds per-connection behavioural flags.
type Options struct {
	// UseDatapackage, when true, makes ConvertResources replace a CSV file
	// pack with a single datapackage file resource.
	UseDatapackage bool
}

// FilterCandidate is one filter a database resource could be sliced by
// (e.g. a scenario or tool row in the target's schema), along with its
// human-readable display name.
type FilterCandidate struct {
	ID          string
	DisplayName string
}

// SchemaProvider queries a database resource's schema for the filters it
// can be sliced by. Concrete item implementations supply this; the core
// only consumes the interface (spec.md §1: concrete items are external).
type SchemaProvider interface {
	FilterCandidates(ctx context.Context, url string) (map[string][]FilterCandidate, error)
}

// Connection is a directed edge from Source to Destination carrying
// resource conversion rules and per-resource filter activation.
type Connection struct {
	Source      string
	Destination string

	// SourceAnchor/DestinationAnchor are opaque positioning hints carried
	// through from the workbench; the engine never inspects them.
	SourceAnchor      [2]float64
	DestinationAnchor [2]float64

	Options Options

	mu sync.RWMutex
	// incoming holds the most recent resources received from Source,
	// keyed by label.
	incoming map[string]resource.Resource
	// candidates[label][filterType] lists the known filters for that
	// label/type, discovered via FetchDatabaseItems.
	candidates map[string]map[string][]FilterCandidate
	// activation[label][filterType][filterID] is the online/offline flag.
	activation map[string]map[string]map[string]bool
}

// New creates an empty Connection between two item names.
func New(source, destination string, opts Options) *Connection {
	return &Connection{
		Source:      source,
		Destination: destination,
		Options:     opts,
		incoming:    make(map[string]resource.Resource),
		candidates:  make(map[string]map[string][]FilterCandidate),
		activation:  make(map[string]map[string]map[string]bool),
	}
}

// ReceiveResourcesFromSource records (and re-indexes) the resources
// arriving from Source, replacing any prior set.
func (c *Connection) ReceiveResourcesFromSource(resources []resource.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.incoming = make(map[string]resource.Resource, len(resources))
	for _, r := range resources {
		c.incoming[r.Label] = r
	}
}

// ReplaceResourceFromSource atomically substitutes a previously received
// resource with a new one. The two must carry the same label.
func (c *Connection) ReplaceResourceFromSource(old, replacement resource.Resource) error {
	if old.Label != replacement.Label {
		return fmt.Errorf("connection: cannot replace resource %q with %q: labels differ", old.Label, replacement.Label)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, exists := c.incoming[old.Label]
	if !exists || !current.Equal(old) {
		return fmt.Errorf("connection: resource %q not found among incoming resources", old.Label)
	}
	c.incoming[old.Label] = replacement
	return nil
}

// FetchDatabaseItems queries the schema of every incoming database
// resource via provider, populating the filter-id -> display-name maps
// used by FilterStacks. Activation flags for filters seen for the first
// time default to offline (false); flags for filters that were already
// known are preserved.
func (c *Connection) FetchDatabaseItems(ctx context.Context, provider SchemaProvider) error {
	c.mu.Lock()
	incoming := make([]resource.Resource, 0, len(c.incoming))
	for _, r := range c.incoming {
		if r.Kind == resource.KindDatabase {
			incoming = append(incoming, r)
		}
	}
	c.mu.Unlock()

	for _, r := range incoming {
		found, err := provider.FilterCandidates(ctx, r.URL)
		if err != nil {
			return fmt.Errorf("connection: fetch database items for %q: %w", r.Label, err)
		}

		c.mu.Lock()
		if c.candidates[r.Label] == nil {
			c.candidates[r.Label] = make(map[string][]FilterCandidate)
		}
		if c.activation[r.Label] == nil {
			c.activation[r.Label] = make(map[string]map[string]bool)
		}
		for filterType, list := range found {
			c.candidates[r.Label][filterType] = list
			if c.activation[r.Label][filterType] == nil {
				c.activation[r.Label][filterType] = make(map[string]bool)
			}
			for _, cand := range list {
				if _, known := c.activation[r.Label][filterType][cand.ID]; !known {
					c.activation[r.Label][filterType][cand.ID] = false
				}
			}
		}
		c.mu.Unlock()
	}

	return nil
}

// SetOnline flips the activation flags of the given filter ids within
// filterType for label.
func (c *Connection) SetOnline(label, filterType string, flags map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activation[label] == nil {
		c.activation[label] = make(map[string]map[string]bool)
	}
	if c.activation[label][filterType] == nil {
		c.activation[label][filterType] = make(map[string]bool)
	}
	for id, on := range flags {
		c.activation[label][filterType][id] = on
	}
}

// HasFilters reports whether any filter, on any label, is currently
// online.
func (c *Connection) HasFilters() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, byType := range c.activation {
		if anyOnline(byType) {
			return true
		}
	}
	return false
}

func anyOnline(byType map[string]map[string]bool) bool {
	for _, byID := range byType {
		for _, on := range byID {
			if on {
				return true
			}
		}
	}
	return false
}

// ConvertResources applies this connection's forward-only resource
// transform. With UseDatapackage set, a file pack labelled with a CSV
// payload (Metadata["csv_files"] non-empty) is replaced by a single file
// resource with the pack's provider, label and URL, whose
// Metadata["datapackage_of"] names the pack; otherwise resources pass
// through unchanged.
func (c *Connection) ConvertResources(resources []resource.Resource) []resource.Resource {
	if !c.Options.UseDatapackage {
		return resources
	}

	out := make([]resource.Resource, 0, len(resources))
	for _, r := range resources {
		if r.IsPack() {
			if files, ok := r.Metadata["csv_files"].([]string); ok && len(files) > 0 {
				dp := resource.New(r.Provider, resource.KindFile, r.Label, r.URL)
				dp.Metadata["datapackage_of"] = r.Label
				out = append(out, dp)
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// FilterStacks enumerates the Cartesian product of active filter
// descriptors for label, one axis per filter type known for that label.
// A type with no active filter contributes a single empty slot to the
// product rather than dropping out of it. If no filter is active at all
// for label, the result is nil: no expansion is requested.
func (c *Connection) FilterStacks(label string) []resource.FilterStack {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byType := c.activation[label]
	if !anyOnline(byType) {
		return nil
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	type axisEntry struct {
		descriptor resource.FilterDescriptor
		present    bool
	}

	axes := make([][]axisEntry, 0, len(types))
	for _, t := range types {
		ids := make([]string, 0, len(byType[t]))
		for id, on := range byType[t] {
			if on {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		if len(ids) == 0 {
			axes = append(axes, []axisEntry{{present: false}})
			continue
		}

		axis := make([]axisEntry, 0, len(ids))
		for _, id := range ids {
			axis = append(axis, axisEntry{
				descriptor: resource.FilterDescriptor{Type: t, ID: id, Name: c.displayNameLocked(label, t, id)},
				present:    true,
			})
		}
		axes = append(axes, axis)
	}

	var combos [][]axisEntry
	combos = append(combos, nil)
	for _, axis := range axes {
		var next [][]axisEntry
		for _, combo := range combos {
			for _, entry := range axis {
				row := append(append([]axisEntry(nil), combo...), entry)
				next = append(next, row)
			}
		}
		combos = next
	}

	stacks := make([]resource.FilterStack, 0, len(combos))
	for _, combo := range combos {
		var stack resource.FilterStack
		for _, entry := range combo {
			if entry.present {
				stack = append(stack, entry.descriptor)
			}
		}
		stacks = append(stacks, stack)
	}
	return stacks
}

func (c *Connection) displayNameLocked(label, filterType, id string) string {
	for _, cand := range c.candidates[label][filterType] {
		if cand.ID == id {
			return cand.DisplayName
		}
	}
	return id
}

// Snapshot serialises the connection to a plain map, suitable for
// round-tripping through FromSnapshot. Fetched database items
// (candidates) are intentionally excluded: callers re-fetch them after
// restoring a connection, per spec.md's round-trip law.
func (c *Connection) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	activation := make(map[string]map[string]map[string]bool, len(c.activation))
	for label, byType := range c.activation {
		activation[label] = make(map[string]map[string]bool, len(byType))
		for t, byID := range byType {
			activation[label][t] = make(map[string]bool, len(byID))
			for id, on := range byID {
				activation[label][t][id] = on
			}
		}
	}

	return map[string]any{
		"source":             c.Source,
		"destination":        c.Destination,
		"source_anchor":      c.SourceAnchor,
		"destination_anchor": c.DestinationAnchor,
		"use_datapackage":    c.Options.UseDatapackage,
		"activation":         activation,
	}
}

// FromSnapshot reconstructs a Connection from Snapshot's output.
func FromSnapshot(data map[string]any) (*Connection, error) {
	source, _ := data["source"].(string)
	destination, _ := data["destination"].(string)
	if source == "" || destination == "" {
		return nil, fmt.Errorf("connection: snapshot missing source/destination")
	}

	useDatapackage, _ := data["use_datapackage"].(bool)
	c := New(source, destination, Options{UseDatapackage: useDatapackage})

	if anchor, ok := data["source_anchor"].([2]float64); ok {
		c.SourceAnchor = anchor
	}
	if anchor, ok := data["destination_anchor"].([2]float64); ok {
		c.DestinationAnchor = anchor
	}

	if activation, ok := data["activation"].(map[string]map[string]map[string]bool); ok {
		for label, byType := range activation {
			for t, byID := range byType {
				c.SetOnline(label, t, byID)
			}
		}
	}

	return c, nil
}

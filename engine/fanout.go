package engine

import (
	"github.com/flowkernel/engine/connection"
	"github.com/flowkernel/engine/resource"
)

// predecessorVariant is one alternative a single predecessor can
// contribute to a fan-out combination: the resources it contributes, and
// the filter id that alternative carries (empty if the predecessor's
// stack was not expanded).
type predecessorVariant struct {
	resources []resource.Resource
	filterID  string
}

// combination is one forward sub-execution's resolved inputs: the
// concatenation of every predecessor's chosen variant, plus the
// composite filter id joining their individual ids.
type combination struct {
	resources []resource.Resource
	filterID  string
}

// expandPredecessor applies a connection's resource conversion to a
// predecessor's forwarded resource tuple, then expands it into its
// filter-combination variants per the fan-out algorithm: a
// single-resource stack with ≥1 associated filter stacks is cloned once
// per filter stack; any other stack (empty, multi-resource, or with no
// active filters) passes through as its own single, unfiltered variant.
func expandPredecessor(conn *connection.Connection, stack []resource.Resource) []predecessorVariant {
	converted := conn.ConvertResources(stack)

	if len(converted) == 1 {
		stacks := conn.FilterStacks(converted[0].Label)
		if len(stacks) > 0 {
			variants := make([]predecessorVariant, 0, len(stacks))
			for _, fs := range stacks {
				variants = append(variants, predecessorVariant{
					resources: []resource.Resource{converted[0].WithFilterStack(fs)},
					filterID:  fs.ID(),
				})
			}
			return variants
		}
	}

	return []predecessorVariant{{resources: converted, filterID: ""}}
}

// fanOut computes the Cartesian product of every predecessor's variants,
// producing one combination per sub-execution. predecessorStacks and
// connections are parallel, ordered the same way.
func fanOut(predecessorStacks [][]resource.Resource, connections []*connection.Connection) []combination {
	if len(predecessorStacks) == 0 {
		return []combination{{resources: nil, filterID: ""}}
	}

	variantSets := make([][]predecessorVariant, len(predecessorStacks))
	for i, stack := range predecessorStacks {
		variantSets[i] = expandPredecessor(connections[i], stack)
	}

	combos := []combination{{resources: nil, filterID: ""}}
	for _, variants := range variantSets {
		next := make([]combination, 0, len(combos)*len(variants))
		for _, c := range combos {
			for _, v := range variants {
				next = append(next, combination{
					resources: append(append([]resource.Resource(nil), c.resources...), v.resources...),
					filterID:  resource.JoinFilterIDs(c.filterID, v.filterID),
				})
			}
		}
		combos = next
	}
	return combos
}

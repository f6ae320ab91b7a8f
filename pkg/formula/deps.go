package formula

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridbase/gridbase/pkg/schema"
)

// color represents the state of a node during DFS cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // in current DFS path (cycle if revisited)
	black              // fully processed
)

// SortDependencies topologically orders formula fields so every formula
// follows the fields it references. deps maps a formula field name to the
// field names it references; referenced fields that are not formulas
// themselves (plain columns, system fields) need no entry.
//
// A cycle is fatal: mutually referencing formulas can never be evaluated,
// so compilation aborts with ErrCircularDependency naming the cycle.
func SortDependencies(deps map[string][]string) ([]string, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic order for equal-rank fields

	colors := make(map[string]color, len(deps))
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: %s", schema.ErrCircularDependency, formatCycle(path, name))
		}
		colors[name] = gray
		path = append(path, name)
		for _, ref := range deps[name] {
			if _, isFormula := deps[ref]; !isFormula {
				continue // plain column or system field, never cyclic
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		colors[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// formatCycle renders the cycle portion of the DFS path ending at repeat.
func formatCycle(path []string, repeat string) string {
	start := 0
	for i, name := range path {
		if name == repeat {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), repeat)
	return strings.Join(cycle, " -> ")
}

package server

import (
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
)

// color marks a workload's state during dependency-cycle DFS.
type color int

const (
	white color = iota
	gray
	black
)

// ValidateDesiredState rejects a candidate desired state that references an
// unknown runtime tag, is missing required fields, or contains a circular
// dependency graph. knownRuntimes may be nil, in which case runtime tags are
// not checked (useful in tests that don't register a runtime registry).
func ValidateDesiredState(ds *ankaios.DesiredState, knownRuntimes map[string]bool) error {
	if ds == nil {
		return nil
	}
	for name, w := range ds.Workloads {
		if name == "" {
			return fmt.Errorf("workload has empty name")
		}
		if w.Agent == "" {
			return fmt.Errorf("workload %q: agent is required", name)
		}
		if w.Runtime == "" {
			return fmt.Errorf("workload %q: runtime is required", name)
		}
		if knownRuntimes != nil && !knownRuntimes[w.Runtime] {
			return fmt.Errorf("workload %q: unknown runtime tag %q", name, w.Runtime)
		}
		for dep := range w.Dependencies {
			if _, ok := ds.Workloads[dep]; !ok {
				return fmt.Errorf("workload %q: depends on unknown workload %q", name, dep)
			}
		}
	}
	return detectDependencyCycle(ds)
}

// detectDependencyCycle runs DFS colouring over the dependency graph
// (spec.md §9: "reject at validation rather than risk deadlock at runtime").
// A gray node reachable from itself indicates a cycle.
func detectDependencyCycle(ds *ankaios.DesiredState) error {
	colors := make(map[string]color, len(ds.Workloads))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch colors[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("circular dependency: %v", append(path, name))
		}
		colors[name] = gray
		w := ds.Workloads[name]
		for dep := range w.Dependencies {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		colors[name] = black
		return nil
	}
	for name := range ds.Workloads {
		if colors[name] == white {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

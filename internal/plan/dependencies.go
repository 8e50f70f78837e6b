package plan

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

const dependencyCycleErrorTemplateConstant = "migration dependencies form a cycle among: %s"

// Dependencies maps a unit name to the names of the units that must run before it.
type Dependencies map[string][]string

// DependencyCycleError reports units whose declared prerequisites cannot be satisfied.
type DependencyCycleError struct {
	Units []string
}

// Error lists the units involved in the cycle.
func (failure *DependencyCycleError) Error() string {
	return fmt.Sprintf(dependencyCycleErrorTemplateConstant, strings.Join(failure.Units, ", "))
}

// FromPriorityList declares every list entry as depending on all entries listed before it,
// so the relative order survives when intermediate entries were not discovered.
func FromPriorityList(priority []string) Dependencies {
	dependencies := make(Dependencies, len(priority))
	seen := make(map[string]struct{}, len(priority))
	var earlier []string
	for _, name := range priority {
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		dependencies[name] = append([]string{}, earlier...)
		earlier = append(earlier, name)
	}
	return dependencies
}

// Merge returns a copy of dependencies with additional prerequisites appended per unit.
func (dependencies Dependencies) Merge(additional Dependencies) Dependencies {
	merged := make(Dependencies, len(dependencies)+len(additional))
	for name, prerequisites := range dependencies {
		merged[name] = append([]string{}, prerequisites...)
	}
	for name, prerequisites := range additional {
		merged[name] = append(merged[name], prerequisites...)
	}
	return merged
}

// BuildDependencyPlan orders the discovered units named in dependencies, as a key or as a
// prerequisite, topologically with lexicographic tie-breaking, then appends the undeclared
// units in lexicographic order. Prerequisites that were not discovered are ignored.
func BuildDependencyPlan(discovered []string, dependencies Dependencies) ([]string, error) {
	discoveredSet := make(map[string]struct{}, len(discovered))
	for _, name := range discovered {
		discoveredSet[name] = struct{}{}
	}

	declared := make(map[string]struct{})
	successors := make(map[string][]string)
	inDegree := make(map[string]int)
	for name, prerequisites := range dependencies {
		if _, present := discoveredSet[name]; !present {
			continue
		}
		declared[name] = struct{}{}
		seenPrerequisites := make(map[string]struct{}, len(prerequisites))
		for _, prerequisite := range prerequisites {
			if _, present := discoveredSet[prerequisite]; !present {
				continue
			}
			if _, duplicate := seenPrerequisites[prerequisite]; duplicate {
				continue
			}
			seenPrerequisites[prerequisite] = struct{}{}
			declared[prerequisite] = struct{}{}
			successors[prerequisite] = append(successors[prerequisite], name)
			inDegree[name]++
		}
	}

	ready := &nameHeap{}
	for name := range declared {
		if inDegree[name] == 0 {
			heap.Push(ready, name)
		}
	}

	executionPlan := make([]string, 0, len(discoveredSet))
	for ready.Len() > 0 {
		name := heap.Pop(ready).(string)
		executionPlan = append(executionPlan, name)
		for _, successor := range successors[name] {
			inDegree[successor]--
			if inDegree[successor] == 0 {
				heap.Push(ready, successor)
			}
		}
	}

	if len(executionPlan) < len(declared) {
		var blocked []string
		for name := range declared {
			if inDegree[name] > 0 {
				blocked = append(blocked, name)
			}
		}
		sort.Strings(blocked)
		return nil, &DependencyCycleError{Units: blocked}
	}

	undeclared := make(map[string]struct{}, len(discoveredSet)-len(declared))
	for name := range discoveredSet {
		if _, isDeclared := declared[name]; !isDeclared {
			undeclared[name] = struct{}{}
		}
	}

	return append(executionPlan, sortedNames(undeclared)...), nil
}

// nameHeap is a min-heap of unit names.
type nameHeap []string

func (names nameHeap) Len() int           { return len(names) }
func (names nameHeap) Less(i, j int) bool { return names[i] < names[j] }
func (names nameHeap) Swap(i, j int)      { names[i], names[j] = names[j], names[i] }

func (names *nameHeap) Push(value any) {
	*names = append(*names, value.(string))
}

func (names *nameHeap) Pop() any {
	previous := *names
	last := previous[len(previous)-1]
	*names = previous[:len(previous)-1]
	return last
}

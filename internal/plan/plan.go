package plan

import "sort"

// BuildExecutionPlan returns the priority-list entries present in discovered, in list order,
// followed by the remaining discovered names sorted lexicographically. Each discovered name
// appears exactly once; list entries that were not discovered are skipped.
func BuildExecutionPlan(discovered []string, priority []string) []string {
	remaining := make(map[string]struct{}, len(discovered))
	for _, name := range discovered {
		remaining[name] = struct{}{}
	}

	executionPlan := make([]string, 0, len(remaining))
	for _, name := range priority {
		if _, present := remaining[name]; !present {
			continue
		}
		executionPlan = append(executionPlan, name)
		delete(remaining, name)
	}

	return append(executionPlan, sortedNames(remaining)...)
}

func sortedNames(names map[string]struct{}) []string {
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return sorted
}

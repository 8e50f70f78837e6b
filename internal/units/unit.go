package units

// Unit describes one discovered migration unit.
type Unit struct {
	Name         string
	IsPriority   bool
	PriorityRank int
}

// Describe annotates unit names with their position in the priority list. PriorityRank is
// zero-based and only meaningful when IsPriority is true.
func Describe(names []string, priority []string) []Unit {
	ranks := make(map[string]int, len(priority))
	for rank, name := range priority {
		if _, seen := ranks[name]; !seen {
			ranks[name] = rank
		}
	}

	described := make([]Unit, 0, len(names))
	for _, name := range names {
		rank, isPriority := ranks[name]
		if !isPriority {
			rank = 0
		}
		described = append(described, Unit{Name: name, IsPriority: isPriority, PriorityRank: rank})
	}
	return described
}

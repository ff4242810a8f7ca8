package reconcile

import "sort"

// TaskIndex maps display names to every task carrying that name, in
// snapshot order. Lookups follow a first-match policy; the remaining
// candidates stay visible through Candidates and Duplicates.
type TaskIndex struct {
	byName map[string][]Task
}

func NewTaskIndex(tasks []Task) *TaskIndex {
	idx := &TaskIndex{byName: make(map[string][]Task, len(tasks))}
	for _, t := range tasks {
		idx.byName[t.Name] = append(idx.byName[t.Name], t)
	}
	return idx
}

// Lookup returns the first task whose name equals name byte for byte.
func (idx *TaskIndex) Lookup(name string) (Task, bool) {
	candidates := idx.byName[name]
	if len(candidates) == 0 {
		return Task{}, false
	}
	return candidates[0], true
}

func (idx *TaskIndex) Candidates(name string) []Task {
	return idx.byName[name]
}

// Duplicates lists, sorted, every name shared by more than one task.
func (idx *TaskIndex) Duplicates() []string {
	var out []string
	for name, tasks := range idx.byName {
		if len(tasks) > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (idx *TaskIndex) Len() int {
	n := 0
	for _, tasks := range idx.byName {
		n += len(tasks)
	}
	return n
}

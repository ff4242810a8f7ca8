package reconcile

// Snapshot is everything one cycle reads: the remote items and the
// destination lists with their open tasks keyed by list id.
type Snapshot struct {
	Issues         []Issue
	AwaitingReview []MergeRequest
	Reviewed       []MergeRequest
	Lists          []List
	Tasks          map[string][]Task
}

type Options struct {
	IssuesList  string
	ReviewsList string
	User        string
}

type Plan struct {
	Actions []Action
	// Skipped holds the categories whose destination list could not be resolved.
	Skipped []Category
	// Duplicates holds, per category, display names shared by several tasks.
	Duplicates map[Category][]string
}

type Counts struct {
	Creates int
	Updates int
	Closes  int
}

func (p Plan) Counts() Counts {
	var c Counts
	for _, a := range p.Actions {
		switch a.Kind {
		case ActionCreate:
			c.Creates++
		case ActionUpdate:
			c.Updates++
		case ActionClose:
			c.Closes++
		}
	}
	return c
}

// ResolveList returns the first list named exactly name.
func ResolveList(lists []List, name string) (List, bool) {
	if name == "" {
		return List{}, false
	}
	for _, l := range lists {
		if l.Name == name {
			return l, true
		}
	}
	return List{}, false
}

// BuildPlan runs every category against the snapshot. A category whose list
// cannot be resolved is skipped, not failed.
func BuildPlan(snap Snapshot, opts Options) Plan {
	plan := Plan{Duplicates: map[Category][]string{}}

	if list, ok := ResolveList(snap.Lists, opts.IssuesList); ok {
		idx := NewTaskIndex(snap.Tasks[list.ID])
		plan.Actions = append(plan.Actions, ReconcileIssues(snap.Issues, idx, list.ID)...)
		if dups := idx.Duplicates(); len(dups) > 0 {
			plan.Duplicates[CategoryIssues] = dups
		}
	} else {
		plan.Skipped = append(plan.Skipped, CategoryIssues)
	}

	if list, ok := ResolveList(snap.Lists, opts.ReviewsList); ok {
		idx := NewTaskIndex(snap.Tasks[list.ID])
		reviews := ReconcileAwaitingReviews(snap.AwaitingReview, idx, list.ID, opts.User)
		reviews = append(reviews, ReconcileReviewed(snap.Reviewed, idx)...)
		plan.Actions = append(plan.Actions, collapseCloses(reviews)...)
		if dups := idx.Duplicates(); len(dups) > 0 {
			plan.Duplicates[CategoryReviews] = dups
		}
	} else {
		plan.Skipped = append(plan.Skipped, CategoryReviews)
	}

	return plan
}

// collapseCloses drops repeated close intents for the same task, keeping the first.
func collapseCloses(actions []Action) []Action {
	closed := map[string]bool{}
	out := actions[:0:0]
	for _, a := range actions {
		if a.Kind == ActionClose {
			if closed[a.TaskID] {
				continue
			}
			closed[a.TaskID] = true
		}
		out = append(out, a)
	}
	return out
}

package reconcile

// ReconcileIssues emits one create or update per issue, in input order.
func ReconcileIssues(issues []Issue, tasks *TaskIndex, listID string) []Action {
	actions := make([]Action, 0, len(issues))
	for _, issue := range issues {
		name := IssueDisplayName(issue)
		if existing, ok := tasks.Lookup(name); ok {
			actions = append(actions, UpdateTask(CategoryIssues, existing.ID, name, issue.Description))
			continue
		}
		actions = append(actions, CreateTask(CategoryIssues, name, issue.Description, listID))
	}
	return actions
}

// ReconcileAwaitingReviews handles merge requests the user is asked to review.
// An approval by the user closes an existing task; an approved merge request
// without a task produces nothing.
func ReconcileAwaitingReviews(mrs []MergeRequest, tasks *TaskIndex, listID, user string) []Action {
	actions := make([]Action, 0, len(mrs))
	for _, mr := range mrs {
		name := ReviewDisplayName(mr)
		existing, found := tasks.Lookup(name)
		approved := IsApprovedBy(mr, user)

		switch {
		case !found && !approved:
			actions = append(actions, CreateTask(CategoryReviews, name, mr.URL, listID))
		case found && !approved:
			actions = append(actions, UpdateTask(CategoryReviews, existing.ID, name, mr.URL))
		case found && approved:
			actions = append(actions, CloseTask(CategoryReviews, existing.ID, name))
		}
	}
	return actions
}

// ReconcileReviewed closes the task of every merge request the user already
// reviewed. Unmatched merge requests produce nothing.
func ReconcileReviewed(mrs []MergeRequest, tasks *TaskIndex) []Action {
	var actions []Action
	for _, mr := range mrs {
		name := ReviewDisplayName(mr)
		if existing, ok := tasks.Lookup(name); ok {
			actions = append(actions, CloseTask(CategoryReviews, existing.ID, name))
		}
	}
	return actions
}

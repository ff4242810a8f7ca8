// Package reconcile decides, per remote item, whether a destination task has
// to be created, updated or closed. Everything in this package is pure: it
// reads snapshots and returns intents, it never talks to a remote service.
package reconcile

// Issue is an item assigned to the user in the issue tracker.
// Issues reaching this package are already filtered to active states.
type Issue struct {
	Identifier  string
	Title       string
	Description string
	State       string
}

// MergeRequest is a change awaiting or having received the user's review.
// Nil Reviewers or Approvers are treated as empty sets.
type MergeRequest struct {
	Title     string
	URL       string
	Reviewers []string
	Approvers []string
}

// Task is an entry in a destination list.
type Task struct {
	ID          string
	Name        string
	Description string
	ListID      string
	Completed   bool
}

// List is a named bucket of destination tasks.
type List struct {
	ID   string
	Name string
}

// Category groups actions by the kind of remote item that produced them.
type Category string

const (
	CategoryIssues  Category = "issues"
	CategoryReviews Category = "reviews"
)

type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionClose  ActionKind = "close"
)

// Action is an intent for the executor. Which fields are set depends on Kind:
// create uses Name, Description and ListID; update uses TaskID, Name and
// Description; close uses TaskID. Name is always filled for logging.
type Action struct {
	Kind        ActionKind
	Category    Category
	TaskID      string
	Name        string
	Description string
	ListID      string
}

func CreateTask(category Category, name, description, listID string) Action {
	return Action{Kind: ActionCreate, Category: category, Name: name, Description: description, ListID: listID}
}

func UpdateTask(category Category, taskID, name, description string) Action {
	return Action{Kind: ActionUpdate, Category: category, TaskID: taskID, Name: name, Description: description}
}

func CloseTask(category Category, taskID, name string) Action {
	return Action{Kind: ActionClose, Category: category, TaskID: taskID, Name: name}
}

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const me = "jdoe"

func TestDisplayNames(t *testing.T) {
	issue := Issue{Identifier: "ENG-123", Title: "Fix retry loop"}
	assert.Equal(t, "[ENG-123] Fix retry loop", IssueDisplayName(issue))
	assert.Equal(t, IssueDisplayName(issue), IssueDisplayName(issue))

	mr := MergeRequest{Title: "Fix retry loop"}
	assert.Equal(t, "CR: Fix retry loop", ReviewDisplayName(mr))
	assert.Equal(t, ReviewDisplayName(mr), ReviewDisplayName(MergeRequest{Title: "Fix retry loop", URL: "other"}))
}

func TestReconcileIssues(t *testing.T) {
	issues := []Issue{
		{Identifier: "ENG-1", Title: "New one", Description: "desc 1"},
		{Identifier: "ENG-2", Title: "Known", Description: "desc 2"},
	}
	idx := NewTaskIndex([]Task{{ID: "t-2", Name: "[ENG-2] Known", Description: "stale"}})

	actions := ReconcileIssues(issues, idx, "list-issues")

	require.Len(t, actions, 2)
	assert.Equal(t, CreateTask(CategoryIssues, "[ENG-1] New one", "desc 1", "list-issues"), actions[0])
	assert.Equal(t, UpdateTask(CategoryIssues, "t-2", "[ENG-2] Known", "desc 2"), actions[1])
}

func TestReconcileIssuesIsIdempotent(t *testing.T) {
	issues := []Issue{
		{Identifier: "ENG-1", Title: "One", Description: "a"},
		{Identifier: "ENG-2", Title: "Two", Description: "b"},
	}

	first := ReconcileIssues(issues, NewTaskIndex(nil), "L")
	var tasks []Task
	for i, a := range first {
		require.Equal(t, ActionCreate, a.Kind)
		tasks = append(tasks, Task{ID: string(rune('a' + i)), Name: a.Name, Description: a.Description, ListID: a.ListID})
	}

	second := ReconcileIssues(issues, NewTaskIndex(tasks), "L")
	require.Len(t, second, 2)
	for _, a := range second {
		assert.Equal(t, ActionUpdate, a.Kind)
	}
}

func TestReconcileAwaitingReviews(t *testing.T) {
	const url = "https://gitlab.example.com/g/p/-/merge_requests/7"
	tests := []struct {
		name      string
		tasks     []Task
		approvers []string
		want      []Action
	}{
		{
			name:  "no task, not approved",
			tasks: nil,
			want:  []Action{CreateTask(CategoryReviews, "CR: Fix retry loop", url, "list-reviews")},
		},
		{
			name:  "task, not approved",
			tasks: []Task{{ID: "42", Name: "CR: Fix retry loop"}},
			want:  []Action{UpdateTask(CategoryReviews, "42", "CR: Fix retry loop", url)},
		},
		{
			name:      "task, approved",
			tasks:     []Task{{ID: "42", Name: "CR: Fix retry loop"}},
			approvers: []string{"someone", me},
			want:      []Action{CloseTask(CategoryReviews, "42", "CR: Fix retry loop")},
		},
		{
			name:      "no task, approved",
			approvers: []string{me},
			want:      []Action{},
		},
		{
			name:      "approved by somebody else only",
			tasks:     []Task{{ID: "42", Name: "CR: Fix retry loop"}},
			approvers: []string{"someone"},
			want:      []Action{UpdateTask(CategoryReviews, "42", "CR: Fix retry loop", url)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := MergeRequest{Title: "Fix retry loop", URL: url, Reviewers: []string{me}, Approvers: tt.approvers}
			got := ReconcileAwaitingReviews([]MergeRequest{mr}, NewTaskIndex(tt.tasks), "list-reviews", me)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcileReviewed(t *testing.T) {
	idx := NewTaskIndex([]Task{{ID: "42", Name: "CR: Done"}})
	mrs := []MergeRequest{{Title: "Done"}, {Title: "Never tracked"}}

	got := ReconcileReviewed(mrs, idx)

	assert.Equal(t, []Action{CloseTask(CategoryReviews, "42", "CR: Done")}, got)
	assert.Empty(t, ReconcileReviewed([]MergeRequest{{Title: "Never tracked"}}, idx))
}

func TestMatchingIsCaseAndWhitespaceExact(t *testing.T) {
	idx := NewTaskIndex([]Task{
		{ID: "1", Name: "cr: Fix retry loop"},
		{ID: "2", Name: "CR:  Fix retry loop"},
		{ID: "3", Name: "CR: Fix retry loop "},
	})
	mr := MergeRequest{Title: "Fix retry loop", URL: "u"}

	got := ReconcileAwaitingReviews([]MergeRequest{mr}, idx, "L", me)

	require.Len(t, got, 1)
	assert.Equal(t, ActionCreate, got[0].Kind)
}

func TestFirstMatchWinsOnDuplicates(t *testing.T) {
	idx := NewTaskIndex([]Task{
		{ID: "first", Name: "[ENG-1] Dup"},
		{ID: "second", Name: "[ENG-1] Dup"},
	})

	got := ReconcileIssues([]Issue{{Identifier: "ENG-1", Title: "Dup"}}, idx, "L")

	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].TaskID)
	assert.Len(t, idx.Candidates("[ENG-1] Dup"), 2)
	assert.Equal(t, []string{"[ENG-1] Dup"}, idx.Duplicates())
}

func TestMembership(t *testing.T) {
	mr := MergeRequest{Reviewers: []string{"a", me}, Approvers: nil}
	assert.True(t, IsReviewer(mr, me))
	assert.False(t, IsApprovedBy(mr, me))
	assert.False(t, IsReviewer(MergeRequest{}, me))

	mrs := []MergeRequest{
		{Title: "mine", Reviewers: []string{me}},
		{Title: "theirs", Reviewers: []string{"other"}},
		{Title: "none"},
	}
	got := AwaitingReview(mrs, me)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Title)
}

package reconcile

// IssueDisplayName is the matching key of an issue task: "[ENG-123] Title".
func IssueDisplayName(issue Issue) string {
	return "[" + issue.Identifier + "] " + issue.Title
}

// ReviewDisplayName is the matching key of a review task: "CR: Title".
func ReviewDisplayName(mr MergeRequest) string {
	return "CR: " + mr.Title
}

package reconcile

// ContainsIdentity reports whether id is present in set.
func ContainsIdentity(set []string, id string) bool {
	for _, member := range set {
		if member == id {
			return true
		}
	}
	return false
}

func IsApprovedBy(mr MergeRequest, user string) bool {
	return ContainsIdentity(mr.Approvers, user)
}

func IsReviewer(mr MergeRequest, user string) bool {
	return ContainsIdentity(mr.Reviewers, user)
}

// AwaitingReview keeps the merge requests that list user as a reviewer.
func AwaitingReview(mrs []MergeRequest, user string) []MergeRequest {
	out := make([]MergeRequest, 0, len(mrs))
	for _, mr := range mrs {
		if IsReviewer(mr, user) {
			out = append(out, mr)
		}
	}
	return out
}

package labels

// ReviewState enumerates the review states the projection recognizes
// (§4.4): "approve" is the `/approve` command; "approved" is GitHub's own
// review state; "lgtm" is the `/lgtm` command; the rest mirror GitHub's
// pull_request_review states.
type ReviewState string

const (
	StateApprove           ReviewState = "approve"
	StateApproved          ReviewState = "approved"
	StateLGTM              ReviewState = "lgtm"
	StateChangesRequested  ReviewState = "changes_requested"
	StateCommented         ReviewState = "commented"
)

// Action is whether the projection is adding or removing the review-state
// label, mirroring the add/delete modifier on slash commands.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// Projection is the outcome of ManageReviewedByLabel: which label (if any)
// to mutate, and which paired label (if any) to remove alongside it.
type Projection struct {
	Skip        bool
	TargetLabel string // "" when Skip
	PairToRemove string // "" when there's nothing to remove
}

// ManageReviewedByLabel implements §4.4's review-state-to-label decision:
// given the review state, the requested action, the reviewing user, and
// whether that user is an approver (including root approver) and whether
// they are the PR author, it decides which label the caller should
// add/remove and which paired label should be cleared.
//
// The caller is responsible for actually invoking Engine.Add/Engine.Remove
// with the returned label names — this function is pure so it's testable
// without a label mutator.
func ManageReviewedByLabel(state ReviewState, action Action, user string, isApprover, isAuthor bool) Projection {
	switch state {
	case StateApprove:
		if !isApprover {
			return Projection{Skip: true}
		}
		return build(PrefixApprovedBy, PrefixChangesRequestedBy, user, action)

	case StateApproved, StateLGTM:
		if isAuthor {
			return Projection{Skip: true}
		}
		return build(PrefixLGTMBy, PrefixChangesRequestedBy, user, action)

	case StateChangesRequested:
		return build(PrefixChangesRequestedBy, PrefixLGTMBy, user, action)

	case StateCommented:
		return buildNoPair(PrefixCommentedBy, user, action)

	default:
		return Projection{Skip: true}
	}
}

func build(targetPrefix, pairPrefix, user string, action Action) Projection {
	p := Projection{TargetLabel: targetPrefix + user}
	if action == ActionAdd {
		p.PairToRemove = pairPrefix + user
	}
	return p
}

func buildNoPair(targetPrefix, user string, action Action) Projection {
	return Projection{TargetLabel: targetPrefix + user}
}

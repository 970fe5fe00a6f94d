package prstate

import (
	"context"

	"github.com/gh-fleet/webhook-server/internal/labels"
)

// ApplyReviewProjection drives §4.4's review-state-to-label projection for
// one reviewing user, then re-evaluates can-be-merged since a review-state
// label is one of the predicate's inputs. Used by both the review handler
// (§4.6, action=add) and the issue-comment handler's approve/lgtm commands
// (§4.5, add or "cancel").
func (e *Engine) ApplyReviewProjection(ctx context.Context, state labels.ReviewState, action labels.Action, user string) error {
	isApprover := e.isApproverOrReviewerOrRoot(user)
	isAuthor := user == e.View.Author

	proj := labels.ManageReviewedByLabel(state, action, user, isApprover, isAuthor)
	if proj.Skip {
		return nil
	}

	if proj.PairToRemove != "" && e.hasLabel(proj.PairToRemove) {
		if err := e.removeLabel(ctx, proj.PairToRemove); err != nil {
			return err
		}
	}

	switch action {
	case labels.ActionAdd:
		if err := e.addLabel(ctx, proj.TargetLabel); err != nil {
			return err
		}
	case labels.ActionDelete:
		if err := e.removeLabel(ctx, proj.TargetLabel); err != nil {
			return err
		}
	}

	return e.EvaluateCanBeMerged(ctx)
}

package prstate

import (
	"context"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
)

// applyVerifiedResetPolicy implements §4.2.2: on new commits, a
// cherry-picked PR keeps its queued verified check unless auto-verify is
// enabled for cherry-picks; otherwise a trusted auto-merge author gets an
// immediate success, and everyone else goes back to queued.
func (e *Engine) applyVerifiedResetPolicy(ctx context.Context) error {
	if e.hasLabel("cherry-picked") && !e.Resolver.GetBool("auto-verify-cherry-picked-prs", false) {
		return e.Checks.SetQueued(ctx, checkruns.CheckVerified)
	}

	for _, u := range e.Resolver.GetStringSlice("auto-verified-and-merged-users", nil) {
		if u == e.View.Author {
			if err := e.addLabel(ctx, "verified"); err != nil {
				return err
			}
			return e.Checks.SetSuccess(ctx, checkruns.CheckVerified, nil)
		}
	}

	if e.hasLabel("verified") {
		if err := e.removeLabel(ctx, "verified"); err != nil {
			return err
		}
	}
	return e.Checks.SetQueued(ctx, checkruns.CheckVerified)
}

package prstate

import (
	"context"
	"fmt"

	"github.com/gh-fleet/webhook-server/internal/procrun"
)

// reconcileOpenPRMergeState implements §4.2's post-merge side effect: 30
// seconds after a merge, re-evaluate has-conflicts/needs-rebase on every
// other open PR in the repo, since merging can change their mergeability
// without GitHub sending them a fresh event.
func (e *Engine) reconcileOpenPRMergeState(ctx context.Context) error {
	prs, err := e.GH.ListOpenPullRequestNumbers(ctx, e.Owner, e.Repo)
	if err != nil {
		return fmt.Errorf("reconcile merge state: list open PRs: %w", err)
	}
	for _, pr := range prs {
		if pr.Number == e.View.Number {
			continue
		}
		view, err := e.GH.FetchPRView(ctx, e.Owner, e.Repo, pr.Number)
		if err != nil {
			continue
		}
		sub := &Engine{
			GH:       e.GH,
			Checks:   e.Checks,
			Labels:   e.Labels,
			Resolver: e.Resolver,
			Owners:   e.Owners,
			DC:       e.DC,
			Secrets:  e.Secrets,
			Owner:    e.Owner,
			Repo:     e.Repo,
			View:     view,
		}
		_ = sub.updateMergeStateLabels(ctx)
	}
	return nil
}

// deletePRContainerTag implements §4.9's cleanup of the per-PR container
// image tag on an unmerged close, shelling out to regctl in the teacher's
// subprocess-runner idiom rather than pulling in a registry SDK for one
// call.
func (e *Engine) deletePRContainerTag(ctx context.Context) error {
	cfg := e.Resolver.GetContainerConfig()
	if cfg == nil || cfg.Repository == "" {
		return nil
	}
	tag := fmt.Sprintf("%s:pr-%d", cfg.Repository, e.View.Number)
	_, err := procrun.Run(ctx, "regctl", []string{"manifest", "rm", tag, "--force-tag-dereference"}, procrun.Options{
		Redact: e.Secrets,
	})
	if err != nil {
		return fmt.Errorf("delete container tag %s: %w", tag, err)
	}
	return nil
}

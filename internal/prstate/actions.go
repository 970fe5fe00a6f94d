package prstate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/labels"
)

const welcomeMarker = "Welcome!"

// postWelcomeIfMissing implements the "Post welcome comment (unless
// already present)" step of §4.2. Idempotency is achieved by scanning
// existing comments for the marker substring rather than tracking state
// elsewhere, matching §8's "replaying opened N times produces exactly one
// welcome comment" invariant.
func (e *Engine) postWelcomeIfMissing(ctx context.Context) error {
	comments, err := e.GH.ListComments(ctx, e.Owner, e.Repo, e.View.Number)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if strings.Contains(c.Body, welcomeMarker) {
			return nil
		}
	}
	_, err = e.GH.CreateComment(ctx, e.Owner, e.Repo, e.View.Number, welcomeBody(e.View.Author))
	return err
}

func welcomeBody(author string) string {
	return fmt.Sprintf("Welcome! Thanks for opening this pull request, @%s.", author)
}

// isAutoMergeAuthor reports whether the PR author is in the
// set-auto-merge-prs trust list: tracking-issue creation and native
// auto-merge both key off this list (§4.2).
func (e *Engine) isAutoMergeAuthor() bool {
	for _, u := range e.Resolver.GetStringSlice("set-auto-merge-prs", nil) {
		if u == e.View.Author {
			return true
		}
	}
	return false
}

func (e *Engine) createTrackingIssueIfMissing(ctx context.Context) error {
	if !e.Resolver.GetBool("create-issue-for-new-pr", false) {
		return nil
	}
	if e.isAutoMergeAuthor() {
		return nil
	}
	existing, err := e.GH.FindTrackingIssue(ctx, e.Owner, e.Repo, e.View.Number)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = e.GH.CreateTrackingIssue(ctx, e.Owner, e.Repo, e.View.Number, e.View.Title)
	return err
}

func (e *Engine) setAutoMergeIfApplicable(ctx context.Context) error {
	if !e.isAutoMergeAuthor() {
		return nil
	}
	return e.GH.EnableAutoMerge(ctx, e.Owner, e.Repo, e.View.Number, "merge")
}

// handleOpened covers both "opened"/"ready_for_review" (welcome=true) and
// "reopened" (welcome=false), per §4.2's "Same as opened but skip welcome".
func (e *Engine) handleOpened(ctx context.Context, welcome bool) error {
	if e.View.Draft {
		return nil
	}
	if welcome {
		if err := e.postWelcomeIfMissing(ctx); err != nil {
			return fmt.Errorf("welcome comment: %w", err)
		}
		if err := e.createTrackingIssueIfMissing(ctx); err != nil {
			return fmt.Errorf("tracking issue: %w", err)
		}
	}
	if err := e.runSetupCI(ctx); err != nil {
		return err
	}
	return e.setAutoMergeIfApplicable(ctx)
}

// handleEdited implements §4.2's "edited" row: re-check conventional-title
// (when enabled) on every edited delivery, without checking whether the
// title itself changed, and toggle the wip label based on a "wip:" prefix.
func (e *Engine) handleEdited(ctx context.Context) error {
	if e.Resolver.GetBool("conventional-title", false) {
		if err := e.Runners.RunConventionalTitle(ctx, e.job(), nil); err != nil {
			return err
		}
	}
	isWIP := strings.HasPrefix(strings.ToLower(e.View.Title), "wip:")
	if isWIP && !e.hasLabel("wip") {
		return e.addLabel(ctx, "wip")
	}
	if !isWIP && e.hasLabel("wip") {
		return e.removeLabel(ctx, "wip")
	}
	return nil
}

// handleSynchronize implements §4.2's "synchronize" row: re-run setup+CI,
// drop every review-state label (a new commit invalidates prior reviews),
// and re-queue the verified check.
func (e *Engine) handleSynchronize(ctx context.Context) error {
	var stale []string
	for _, l := range e.View.Labels {
		for _, prefix := range []string{labels.PrefixApprovedBy, labels.PrefixLGTMBy, labels.PrefixChangesRequestedBy, labels.PrefixCommentedBy} {
			if strings.HasPrefix(l, prefix) {
				stale = append(stale, l)
				break
			}
		}
	}
	for _, l := range stale {
		if err := e.removeLabel(ctx, l); err != nil {
			return err
		}
	}
	if err := e.Checks.SetQueued(ctx, checkruns.CheckVerified); err != nil {
		return err
	}
	return e.runSetupCI(ctx)
}

// handleClosedMerged implements §4.2's "closed merged=true" row. The
// 30-second re-evaluation of every open PR's merge-state labels is
// launched as a background task rather than blocking the delivery.
func (e *Engine) handleClosedMerged(ctx context.Context) error {
	if err := e.GH.CloseTrackingIssue(ctx, e.Owner, e.Repo, e.View.Number); err != nil {
		return fmt.Errorf("close tracking issue: %w", err)
	}

	var targets []string
	for _, l := range e.View.Labels {
		if t, ok := strings.CutPrefix(l, "cherry-pick/"); ok {
			targets = append(targets, t)
		}
	}
	for _, target := range targets {
		go func(target string) {
			defer func() { recover() }()
			_, _ = e.Runners.RunCherryPick(context.Background(), e.job(), target)
		}(target)
	}

	cfg := e.Resolver.GetContainerConfig()
	if cfg != nil && cfg.Release {
		go func(cfg config.ContainerConfig) {
			defer func() { recover() }()
			_ = e.Runners.RunBuildContainer(context.Background(), e.job(), cfg, true)
		}(*cfg)
	}

	bgDelay := 30 * time.Second
	go func() {
		defer func() { recover() }()
		select {
		case <-time.After(bgDelay):
		case <-ctx.Done():
			return
		}
		_ = e.reconcileOpenPRMergeState(context.Background())
	}()
	return nil
}

func (e *Engine) handleClosedUnmerged(ctx context.Context) error {
	if err := e.GH.CloseTrackingIssue(ctx, e.Owner, e.Repo, e.View.Number); err != nil {
		return fmt.Errorf("close tracking issue: %w", err)
	}
	return e.deletePRContainerTag(ctx)
}

// handleLabelEvent implements §4.2's "labeled"/"unlabeled" row. e.Label
// carries the label name from the webhook payload; action is "labeled" or
// "unlabeled".
func (e *Engine) handleLabelEvent(ctx context.Context, action string) error {
	label := e.Label
	if label == checkruns.CheckCanBeMerged {
		return nil
	}

	switch {
	case strings.HasPrefix(label, labels.PrefixApprovedBy),
		strings.HasPrefix(label, labels.PrefixLGTMBy),
		strings.HasPrefix(label, labels.PrefixChangesRequestedBy):
		user := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(label,
			labels.PrefixApprovedBy), labels.PrefixLGTMBy), labels.PrefixChangesRequestedBy)
		if e.isApproverOrReviewerOrRoot(user) {
			return e.EvaluateCanBeMerged(ctx)
		}
		return nil
	case label == "verified":
		if action == "labeled" {
			if err := e.Checks.SetSuccess(ctx, checkruns.CheckVerified, nil); err != nil {
				return err
			}
		} else {
			if err := e.Checks.SetQueued(ctx, checkruns.CheckVerified); err != nil {
				return err
			}
		}
		return e.EvaluateCanBeMerged(ctx)
	case label == "wip", label == "hold", label == "automerge":
		return e.EvaluateCanBeMerged(ctx)
	}
	return nil
}

func (e *Engine) isApproverOrReviewerOrRoot(user string) bool {
	changed, _ := e.GH.ChangedFiles(context.Background(), e.Owner, e.Repo, e.View.Number)
	for _, a := range e.Owners.ApproversForChangedFiles(changed) {
		if a == user {
			return true
		}
	}
	for _, r := range e.Owners.ReviewersForChangedFiles(changed) {
		if r == user {
			return true
		}
	}
	root := e.Owners.RootEntry()
	for _, a := range append(append([]string{}, root.Approvers...), root.Reviewers...) {
		if a == user {
			return true
		}
	}
	return false
}

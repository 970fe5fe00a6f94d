package prstate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/labels"
)

// EvaluateCanBeMerged implements §4.2.3: the multi-reason can-be-merged
// predicate, evaluated on check-run completion, label changes touching
// review/block labels, and the /check-can-merge command.
func (e *Engine) EvaluateCanBeMerged(ctx context.Context) error {
	if e.View.Merged {
		return nil
	}

	if err := e.Checks.SetInProgress(ctx, checkruns.CheckCanBeMerged); err != nil {
		return err
	}

	var reasons []string

	if e.View.Mergeable == githubclient.MergeableFalse {
		reasons = append(reasons, "PR is not mergeable")
	}

	required := e.requiredChecks(ctx)
	crObs, stObs, err := e.GH.FetchCheckObservations(ctx, e.Owner, e.Repo, e.View.HeadSHA)
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("failed to fetch check status: %v", err))
	}
	resolved := checkruns.Resolve(crObs, stObs)
	inProgress, failedOrMissing, _ := checkruns.EvaluateRequired(required, resolved)

	if len(inProgress) > 0 {
		reasons = append(reasons, "Some required check runs in progress: "+strings.Join(inProgress, ", "))
	}

	if e.hasLabel("hold") {
		reasons = append(reasons, "Hold label exists.")
	}
	if e.hasLabel("wip") {
		reasons = append(reasons, "WIP label exists.")
	}

	if len(failedOrMissing) > 0 {
		var failed, missing []string
		for _, name := range failedOrMissing {
			if _, ok := resolved[name]; ok {
				failed = append(failed, name)
			} else {
				missing = append(missing, name)
			}
		}
		if len(failed) > 0 {
			reasons = append(reasons, "Some check runs failed: "+strings.Join(failed, ", "))
		}
		if len(missing) > 0 {
			reasons = append(reasons, "Some check runs not started: "+strings.Join(missing, ", "))
		}
	}

	for _, want := range e.Resolver.GetStringSlice("can-be-merged-required-labels", nil) {
		if !e.hasLabel(want) {
			reasons = append(reasons, "Missing required labels: "+want)
		}
	}

	changedFiles, _ := e.GH.ChangedFiles(ctx, e.Owner, e.Repo, e.View.Number)
	approvers := e.Owners.ApproversForChangedFiles(changedFiles)
	reviewers := e.Owners.ReviewersForChangedFiles(changedFiles)

	approverSet := toSet(approvers)
	for _, l := range e.View.Labels {
		suffix, ok := strings.CutPrefix(l, labels.PrefixChangesRequestedBy)
		if !ok {
			continue
		}
		if _, isApprover := approverSet[suffix]; isApprover {
			reasons = append(reasons, "PR has changed requests from approvers")
		}
	}

	missingApprovers, lgtmCount, minLGTM, eligibleCount := e.computeApproval(approvers, reviewers)
	if len(missingApprovers) > 0 {
		reasons = append(reasons, "Missing approved from approvers: "+strings.Join(missingApprovers, ", "))
	}
	// A PR whose entire eligible-reviewer pool has already lgtm'd it clears
	// the check even if minimum-lgtm asks for more reviewers than exist —
	// small teams can't outgrow their own roster.
	if lgtmCount < minLGTM && lgtmCount != eligibleCount {
		reasons = append(reasons, fmt.Sprintf(
			"Missing lgtm from reviewers. Minimum %d required, (%d given). Reviewers: %s",
			minLGTM, lgtmCount, strings.Join(reviewers, ", ")))
	}

	if len(reasons) == 0 {
		if err := e.addLabel(ctx, checkruns.CheckCanBeMerged); err != nil {
			return err
		}
		return e.Checks.SetSuccess(ctx, checkruns.CheckCanBeMerged, nil)
	}

	if err := e.removeLabel(ctx, checkruns.CheckCanBeMerged); err != nil {
		return err
	}
	out := checkruns.SanitizeOutput("can-be-merged failed", strings.Join(reasons, "\n"), "", e.Secrets)
	return e.Checks.SetFailure(ctx, checkruns.CheckCanBeMerged, &out)
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

// computeApproval implements §4.2.3's approval computation: missing
// approvers shrinks from approved-by-* labels (a root-approver approval
// clears it entirely); lgtm_count counts lgtm-by-* labels from the
// eligible reviewer pool, excluding the author.
func (e *Engine) computeApproval(approvers, reviewers []string) (missingApprovers []string, lgtmCount, minLGTM, eligibleCount int) {
	missing := toSet(approvers)
	root := e.Owners.RootEntry()
	rootApprovers := toSet(root.Approvers)
	rootReviewers := toSet(root.Reviewers)

	var approvedBy []string
	for _, l := range e.View.Labels {
		if u, ok := strings.CutPrefix(l, labels.PrefixApprovedBy); ok {
			approvedBy = append(approvedBy, u)
		}
	}

	for _, u := range approvedBy {
		if _, ok := rootApprovers[u]; ok {
			missing = map[string]struct{}{}
			break
		}
	}
	if len(missing) > 0 {
		approvedSet := toSet(approvedBy)
		for dir, entry := range e.Owners.ByDir {
			if dir == "." {
				continue
			}
			intersects := false
			for _, a := range entry.Approvers {
				if _, ok := approvedSet[a]; ok {
					intersects = true
					break
				}
			}
			if !intersects {
				continue
			}
			for _, a := range entry.Approvers {
				delete(missing, a)
			}
		}
	}

	eligible := toSet(reviewers)
	for u := range rootApprovers {
		eligible[u] = struct{}{}
	}
	for u := range rootReviewers {
		eligible[u] = struct{}{}
	}
	delete(eligible, e.View.Author)

	lgtmUsers := make(map[string]struct{})
	for _, l := range e.View.Labels {
		u, ok := strings.CutPrefix(l, labels.PrefixLGTMBy)
		if !ok {
			continue
		}
		if u == e.View.Author {
			continue
		}
		if _, ok := eligible[u]; !ok {
			continue
		}
		lgtmUsers[u] = struct{}{}
	}

	out := make([]string, 0, len(missing))
	for u := range missing {
		out = append(out, u)
	}
	return sortedStrings(out), len(lgtmUsers), e.Resolver.GetInt("minimum-lgtm", 0), len(eligible)
}

func sortedStrings(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}

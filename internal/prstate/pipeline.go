package prstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/redact"
)

// collectErrors runs fns concurrently and returns every non-nil error,
// implementing §4.2.1/§5's "collect-all, log-failures" join semantics: one
// task's failure never cancels its siblings.
func collectErrors(fns ...func() error) []error {
	var wg sync.WaitGroup
	errs := make([]error, len(fns))
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func() error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	var out []error
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// runSetupCI executes the two-stage pipeline of §4.2.1: stage 1 (setup)
// runs to completion before stage 2 (CI) begins; both stages use
// collect-all-log-failures semantics internally.
func (e *Engine) runSetupCI(ctx context.Context) error {
	e.DC.StartStep("pr_workflow_setup")
	setupErrs := collectErrors(
		func() error { return e.assignReviewers(ctx) },
		func() error { return e.addLabel(ctx, labels.PrefixBranch+e.View.BaseRef) },
		func() error { return e.updateMergeStateLabels(ctx) },
		func() error { return e.queueAllRequiredChecks(ctx) },
		func() error { return e.applyVerifiedResetPolicy(ctx) },
		func() error { return e.applySizeLabel(ctx) },
		func() error { return e.assignAuthorOrRootApprover(ctx) },
	)
	for _, err := range setupErrs {
		e.DC.FailStep("pr_workflow_setup", delivery.ErrorRecord{Type: "setup_task_error", Message: redact.SafeErr(err)})
	}
	e.DC.CompleteStep("pr_workflow_setup", map[string]any{"task_errors": len(setupErrs)})

	e.DC.StartStep("pr_cicd_execution")
	job := e.job()
	ciErrs := collectErrors(
		func() error {
			if !e.Resolver.GetBool("tox", false) {
				return nil
			}
			return e.Runners.RunTox(ctx, job, e.Resolver.GetString("tox-python-version", ""))
		},
		func() error {
			if !e.Resolver.GetBool("pre-commit", false) {
				return nil
			}
			return e.Runners.RunPreCommit(ctx, job)
		},
		func() error {
			if !e.Resolver.GetBool("python-module-install", false) {
				return nil
			}
			return e.Runners.RunPythonModuleInstall(ctx, job)
		},
		func() error {
			cfg := e.Resolver.GetContainerConfig()
			if cfg == nil {
				return nil
			}
			return e.Runners.RunBuildContainer(ctx, job, *cfg, false)
		},
		func() error {
			if !e.Resolver.GetBool("conventional-title", false) {
				return nil
			}
			return e.Runners.RunConventionalTitle(ctx, job, nil)
		},
	)
	for _, err := range ciErrs {
		e.DC.FailStep("pr_cicd_execution", delivery.ErrorRecord{Type: "ci_task_error", Message: redact.SafeErr(err)})
	}
	e.DC.CompleteStep("pr_cicd_execution", map[string]any{"task_errors": len(ciErrs)})
	return nil
}

func (e *Engine) job() Job {
	return Job{
		Owner:       e.Owner,
		Repo:        e.Repo,
		Number:      e.View.Number,
		Title:       e.View.Title,
		HeadSHA:     e.View.HeadSHA,
		HeadRef:     e.View.HeadRef,
		BaseRef:     e.View.BaseRef,
		MergeCommit: e.View.MergeCommitSHA,
		Token:       e.Token,
		GitName:     e.GitName,
		GitEmail:    e.GitEmail,
	}
}

// assignReviewers implements §4.3's reviewer-assignment step: collect
// owners.ReviewersForChangedFiles, exclude the author, batch-request. On
// failure it posts a single sanitized comment rather than leaking the
// GitHub error, per §4.3/§7.
func (e *Engine) assignReviewers(ctx context.Context) error {
	changed, err := e.GH.ChangedFiles(ctx, e.Owner, e.Repo, e.View.Number)
	if err != nil {
		return fmt.Errorf("assign reviewers: list changed files: %w", err)
	}
	reviewers := e.Owners.ReviewersForChangedFiles(changed)
	var target []string
	for _, r := range reviewers {
		if r != e.View.Author {
			target = append(target, r)
		}
	}
	if len(target) == 0 {
		return nil
	}
	if err := e.GH.RequestReviewers(ctx, e.Owner, e.Repo, e.View.Number, target); err != nil {
		comment := fmt.Sprintf("failed to assign reviewers %v: %T", target, err)
		_, _ = e.GH.CreateComment(ctx, e.Owner, e.Repo, e.View.Number, comment)
		return nil
	}
	return nil
}

// updateMergeStateLabels implements §9's documented precedence: the
// mergeable tri-state decides has-conflicts; needs-rebase is only
// evaluated when has-conflicts does NOT apply (not documented intent, just
// preserved source behavior).
func (e *Engine) updateMergeStateLabels(ctx context.Context) error {
	if e.View.Mergeable == githubclient.MergeableFalse {
		if !e.hasLabel("has-conflicts") {
			return e.addLabel(ctx, "has-conflicts")
		}
		return nil
	}
	if e.hasLabel("has-conflicts") {
		if err := e.removeLabel(ctx, "has-conflicts"); err != nil {
			return err
		}
	}
	needsRebase, err := e.GH.CompareNeedsRebase(ctx, e.Owner, e.Repo, e.View.BaseRef, e.View.HeadRef)
	if err != nil {
		return fmt.Errorf("compare needs-rebase: %w", err)
	}
	if needsRebase {
		if !e.hasLabel("needs-rebase") {
			return e.addLabel(ctx, "needs-rebase")
		}
		return nil
	}
	if e.hasLabel("needs-rebase") {
		return e.removeLabel(ctx, "needs-rebase")
	}
	return nil
}

func (e *Engine) queueAllRequiredChecks(ctx context.Context) error {
	for _, name := range e.requiredChecks(ctx) {
		if err := e.Checks.SetQueued(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applySizeLabel(ctx context.Context) error {
	overrides := sizeRulesFromConfig(e.Resolver.GetPRSizeThresholds())
	rule := labels.SizeFor(e.View.Additions, e.View.Deletions, overrides)
	want := labels.SizeLabelName(rule)

	for _, l := range e.View.Labels {
		if class, ok := labels.ParseSizeLabel(l); ok && labels.PrefixSize+class != want {
			if err := e.removeLabel(ctx, l); err != nil {
				return err
			}
		}
	}
	return e.addLabel(ctx, want)
}

// sizeRulesFromConfig validates a per-repo pr-size-thresholds override,
// dropping entries whose threshold isn't positive or whose color is blank
// (§4.4: "invalid entries are dropped with warning").
func sizeRulesFromConfig(m map[string]config.SizeRule) []labels.SizeRule {
	var out []labels.SizeRule
	for name, r := range m {
		if r.Threshold <= 0 || r.Color == "" {
			continue
		}
		out = append(out, labels.SizeRule{Name: name, Threshold: r.Threshold, Color: r.Color})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// assignAuthorOrRootApprover implements §4.2.1's "add PR author as
// assignee (fall back to first root-approver if author cannot be
// assigned)".
func (e *Engine) assignAuthorOrRootApprover(ctx context.Context) error {
	if err := e.GH.AssignIssue(ctx, e.Owner, e.Repo, e.View.Number, []string{e.View.Author}); err == nil {
		return nil
	}
	root := e.Owners.RootEntry()
	if len(root.Approvers) == 0 {
		return nil
	}
	return e.GH.AssignIssue(ctx, e.Owner, e.Repo, e.View.Number, []string{root.Approvers[0]})
}

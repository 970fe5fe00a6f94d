package prstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
)

const cherryPickLabelPrefix = "cherry-pick/"

// Reprocess runs the "new PR" pipeline on demand (§4.5's `/reprocess`
// command): welcome-if-missing, tracking-issue-if-missing, setup+CI,
// auto-merge. Skipped if the PR is already merged.
func (e *Engine) Reprocess(ctx context.Context) error {
	if e.View.Merged {
		return nil
	}
	return e.handleOpened(ctx, true)
}

// retestable is the set of check names §4.5's `/retest` command may
// target, keyed to whether the corresponding feature is configured.
func (e *Engine) retestable(ctx context.Context) map[string]func(context.Context) error {
	job := e.job()
	out := map[string]func(context.Context) error{}
	if e.Resolver.GetBool("tox", false) {
		out[checkruns.CheckTox] = func(ctx context.Context) error {
			return e.Runners.RunTox(ctx, job, e.Resolver.GetString("tox-python-version", ""))
		}
	}
	if e.Resolver.GetBool("pre-commit", false) {
		out[checkruns.CheckPreCommit] = func(ctx context.Context) error { return e.Runners.RunPreCommit(ctx, job) }
	}
	if e.Resolver.GetBool("python-module-install", false) {
		out[checkruns.CheckPythonModuleInstall] = func(ctx context.Context) error {
			return e.Runners.RunPythonModuleInstall(ctx, job)
		}
	}
	if cfg := e.Resolver.GetContainerConfig(); cfg != nil {
		out[checkruns.CheckBuildContainer] = func(ctx context.Context) error {
			return e.Runners.RunBuildContainer(ctx, job, *cfg, false)
		}
	}
	if e.Resolver.GetBool("conventional-title", false) {
		out[checkruns.CheckConventionalTitle] = func(ctx context.Context) error {
			return e.Runners.RunConventionalTitle(ctx, job, nil)
		}
	}
	out[checkruns.CheckCanBeMerged] = e.EvaluateCanBeMerged
	return out
}

// Retest implements §4.5's `/retest <target>... | all` command: re-runs
// each named, configured check concurrently; "all" expands to every
// configured check. Unknown names are returned so the caller can post a
// comment naming them.
func (e *Engine) Retest(ctx context.Context, targets []string) (unknown []string, err error) {
	runnable := e.retestable(ctx)

	if len(targets) == 1 && targets[0] == "all" {
		var fns []func() error
		for _, fn := range runnable {
			fn := fn
			fns = append(fns, func() error { return fn(ctx) })
		}
		errs := collectErrors(fns...)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, nil
	}

	var fns []func() error
	for _, t := range targets {
		fn, ok := runnable[t]
		if !ok {
			unknown = append(unknown, t)
			continue
		}
		fn := fn
		fns = append(fns, func() error { return fn(ctx) })
	}
	errs := collectErrors(fns...)
	if len(errs) > 0 {
		return unknown, errs[0]
	}
	return unknown, nil
}

// AssignReviewers re-runs §4.3's reviewer assignment on demand
// (`/assign-reviewers`).
func (e *Engine) AssignReviewers(ctx context.Context) error {
	return e.assignReviewers(ctx)
}

// AssignReviewer implements `/assign-reviewer @user`: requests a single
// review from user, who must be a repository contributor.
func (e *Engine) AssignReviewer(ctx context.Context, user string) error {
	valid := e.Auth.ValidUsers()
	if _, ok := valid[user]; !ok {
		return fmt.Errorf("prstate: %s is not a repository contributor", user)
	}
	return e.GH.RequestReviewers(ctx, e.Owner, e.Repo, e.View.Number, []string{user})
}

// BuildAndPushContainer implements `/build-and-push-container`: builds and
// pushes the PR's container image, with optional extra build args merged
// onto the configured ones.
func (e *Engine) BuildAndPushContainer(ctx context.Context, extraArgs []string) error {
	cfg := e.Resolver.GetContainerConfig()
	if cfg == nil {
		return fmt.Errorf("prstate: no container configuration for %s", e.slug())
	}
	merged := *cfg
	merged.Args = append(append([]string{}, cfg.Args...), extraArgs...)
	return e.Runners.RunBuildContainer(ctx, e.job(), merged, true)
}

// CherryPickCommand implements `/cherry-pick <branch>`: labels the PR for
// auto-cherry-pick to branch, or (if the PR is already merged) triggers
// the cherry-pick immediately.
func (e *Engine) CherryPickCommand(ctx context.Context, branch string) error {
	if err := e.addLabel(ctx, cherryPickLabelPrefix+branch); err != nil {
		return err
	}
	if !e.View.Merged {
		return nil
	}
	_, err := e.Runners.RunCherryPick(ctx, e.job(), branch)
	return err
}

// ToggleWIP implements `/wip [cancel]`: toggles the wip label and the
// `WIP:` title prefix in lockstep (idempotent, case-insensitive).
func (e *Engine) ToggleWIP(ctx context.Context, remove bool) error {
	upper := strings.ToUpper(e.View.Title)
	if remove {
		if err := e.removeLabel(ctx, "wip"); err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(upper, "WIP: "):
			return e.retitle(ctx, e.View.Title[5:])
		case strings.HasPrefix(upper, "WIP:"):
			return e.retitle(ctx, e.View.Title[4:])
		}
		return nil
	}
	if err := e.addLabel(ctx, "wip"); err != nil {
		return err
	}
	if !strings.HasPrefix(upper, "WIP:") {
		return e.retitle(ctx, "WIP: "+e.View.Title)
	}
	return nil
}

func (e *Engine) retitle(ctx context.Context, title string) error {
	if err := e.GH.EditTitle(ctx, e.Owner, e.Repo, e.View.Number, title); err != nil {
		return err
	}
	e.View.Title = title
	return nil
}

// ToggleStaticLabel implements the plain add/remove half of `/hold`,
// `/automerge`, and `/verified` (the review-state commands `/lgtm` and
// `/approve` go through ApplyReviewProjection instead).
func (e *Engine) ToggleStaticLabel(ctx context.Context, name string, remove bool) error {
	if remove {
		if !e.hasLabel(name) {
			return nil
		}
		if err := e.removeLabel(ctx, name); err != nil {
			return err
		}
	} else {
		if e.hasLabel(name) {
			return nil
		}
		if err := e.addLabel(ctx, name); err != nil {
			return err
		}
	}
	if name == "verified" {
		if remove {
			if err := e.Checks.SetQueued(ctx, checkruns.CheckVerified); err != nil {
				return err
			}
		} else if err := e.Checks.SetSuccess(ctx, checkruns.CheckVerified, nil); err != nil {
			return err
		}
	}
	return e.EvaluateCanBeMerged(ctx)
}

// RegenerateWelcome implements `/regenerate-welcome`: replaces the welcome
// comment if one exists, else creates it fresh.
func (e *Engine) RegenerateWelcome(ctx context.Context) error {
	comments, err := e.GH.ListComments(ctx, e.Owner, e.Repo, e.View.Number)
	if err != nil {
		return err
	}
	body := welcomeBody(e.View.Author)
	for _, c := range comments {
		if strings.Contains(c.Body, welcomeMarker) {
			return e.GH.EditComment(ctx, e.Owner, e.Repo, c.ID, body)
		}
	}
	_, err = e.GH.CreateComment(ctx, e.Owner, e.Repo, e.View.Number, body)
	return err
}

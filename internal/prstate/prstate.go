// Package prstate implements the pull-request state machine of spec §4.2:
// the decision engine that, on every relevant pull_request/issue_comment/
// pull_request_review/check_run event, recomputes labels, reviewer
// assignments, required-check status, mergeability, and drives auto-merge,
// cherry-pick, and rebuild-on-merge side effects.
//
// Grounded on the teacher's webhook.Server.processMergedPRWith: one struct
// holding the GitHub-facing dependencies plus the delivery's mutable PR
// view, with each action arm a plain method doing the original's
// inject-clients-then-delegate split (a "With" method taking narrow
// interfaces, testable without network). Per §9's tagged-dispatch redesign
// flag, the dispatch itself is a small switch over the webhook action
// string rather than a chain of handler types.
package prstate

import (
	"context"
	"fmt"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/owners"
	"github.com/gh-fleet/webhook-server/internal/redact"
)

// Job is the minimal description of a runner invocation, passed to the
// CIRunners seam so prstate stays decoupled from internal/runners (which
// depends on prstate's types, not the reverse).
type Job struct {
	Owner       string
	Repo        string
	Number      int
	Title       string
	HeadSHA     string
	HeadRef     string
	BaseRef     string
	Token       string
	GitName     string
	GitEmail    string
	MergeCommit string
}

// CIRunners is the seam the setup+CI pipeline and slash commands drive;
// satisfied by internal/runners.Set. Each method owns its own check-run
// transition (queued→in_progress→success/failure); prstate only decides
// *whether* to call a runner, never how it executes.
type CIRunners interface {
	RunTox(ctx context.Context, job Job, pythonVersion string) error
	RunPreCommit(ctx context.Context, job Job) error
	RunPythonModuleInstall(ctx context.Context, job Job) error
	RunBuildContainer(ctx context.Context, job Job, cfg config.ContainerConfig, push bool) error
	RunConventionalTitle(ctx context.Context, job Job, allowedNames []string) error
	RunCherryPick(ctx context.Context, job Job, targetBranch string) (prURL string, err error)
}

// Engine wires together every subsystem the state machine orchestrates for
// a single delivery. One Engine is constructed per delivery; it is not
// safe to reuse across deliveries (the View/Cache fields are delivery
// scoped).
type Engine struct {
	GH       *githubclient.Client
	Checks   *checkruns.Engine
	Labels   *labels.Engine
	Resolver *config.Resolver
	Owners   *owners.Index
	Auth     *owners.Authorizer
	Snapshot *githubclient.RepoSnapshot
	DC       *delivery.Context
	Secrets  *redact.List
	Runners  CIRunners

	Owner string
	Repo  string
	View  *githubclient.PRView
	// Label carries the label name for "labeled"/"unlabeled" deliveries; the
	// caller sets it from the webhook payload before invoking Handle.
	Label string

	// Token, GitName, GitEmail are threaded into every Job this Engine
	// builds for the CIRunners seam (clone authentication, commit identity).
	Token    string
	GitName  string
	GitEmail string

	requiredCache checkruns.Cache
	privateRepo   *bool
}

func (e *Engine) slug() string { return e.Owner + "/" + e.Repo }

// hasLabel reports whether the in-memory view currently carries name.
func (e *Engine) hasLabel(name string) bool { return e.View.HasLabel(name) }

// addLabel drives labels.Engine.Add and refreshes the in-memory view from
// the mutation response, per §4.4/§3 ("Labels list is mutated in place
// after each add/remove mutation using the mutation's own response").
func (e *Engine) addLabel(ctx context.Context, name string) error {
	updated, err := e.Labels.Add(ctx, e.Owner, e.Repo, e.View.Number, e.View.Labels, name)
	e.View.Labels = updated
	if err != nil {
		return fmt.Errorf("prstate: add label %q on %s#%d: %w", name, e.slug(), e.View.Number, err)
	}
	return nil
}

func (e *Engine) removeLabel(ctx context.Context, name string) error {
	updated, err := e.Labels.Remove(ctx, e.Owner, e.Repo, e.View.Number, e.View.Labels, name)
	e.View.Labels = updated
	if err != nil {
		return fmt.Errorf("prstate: remove label %q on %s#%d: %w", name, e.slug(), e.View.Number, err)
	}
	return nil
}

// isPrivateRepo answers the required-check-set's "unless the repo is
// private" branch (§4.2.4), caching the lookup for this Engine's lifetime.
func (e *Engine) isPrivateRepo(ctx context.Context) bool {
	if e.privateRepo != nil {
		return *e.privateRepo
	}
	v, err := e.GH.IsPrivateRepo(ctx, e.Owner, e.Repo)
	if err != nil {
		v = false
	}
	e.privateRepo = &v
	return v
}

// featureFlags builds the checkruns.FeatureFlags the required-check set and
// the setup/CI pipeline both consult, reading every relevant key from the
// three-tier resolver.
func (e *Engine) featureFlags(ctx context.Context) checkruns.FeatureFlags {
	f := checkruns.FeatureFlags{
		Tox:                 e.Resolver.GetBool("tox", false),
		Verified:            e.Resolver.GetBool("verified-job", false),
		BuildContainer:      e.Resolver.GetValue("container", nil) != nil,
		PythonModuleInstall: e.Resolver.GetBool("python-module-install", false),
		ConventionalTitle:   e.Resolver.GetBool("conventional-title", false),
		PreCommit:           e.Resolver.GetBool("pre-commit", false),
		IsPrivateRepo:       e.isPrivateRepo(ctx),
	}
	if !f.IsPrivateRepo {
		contexts, err := e.GH.RequiredStatusCheckContexts(ctx, e.Owner, e.Repo, e.View.BaseRef)
		if err == nil {
			f.BranchProtectionRequiredContexts = contexts
		}
	}
	for _, c := range e.Resolver.GetCustomCheckRuns() {
		if c.Mandatory {
			f.MandatoryCustomChecks = append(f.MandatoryCustomChecks, c.Name)
		}
	}
	return f
}

// requiredChecks returns the delivery-cached required-check set (§4.2.4:
// "computed once per delivery and cached").
func (e *Engine) requiredChecks(ctx context.Context) []string {
	return e.requiredCache.Get(e.featureFlags(ctx))
}

// Handle dispatches on the pull_request webhook action, the tagged-union
// entry point §9 calls for.
func (e *Engine) Handle(ctx context.Context, action string) error {
	e.DC.StartStep("pr_handler")
	var err error
	switch action {
	case "edited":
		err = e.handleEdited(ctx)
	case "opened", "ready_for_review":
		err = e.handleOpened(ctx, true)
	case "reopened":
		err = e.handleOpened(ctx, false)
	case "synchronize":
		err = e.handleSynchronize(ctx)
	case "closed":
		if e.View.Merged {
			err = e.handleClosedMerged(ctx)
		} else {
			err = e.handleClosedUnmerged(ctx)
		}
	case "labeled", "unlabeled":
		err = e.handleLabelEvent(ctx, action)
	}
	if err != nil {
		e.DC.FailStep("pr_handler", delivery.ErrorRecord{Type: "pr_handler_error", Message: redact.SafeErr(err)})
		return err
	}
	e.DC.CompleteStep("pr_handler", nil)
	return nil
}

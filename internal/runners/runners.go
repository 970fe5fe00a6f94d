// Package runners implements the §4.8 runner handler template: each
// runner sets its check in-progress, acquires a scoped workspace, shells
// out via internal/procrun, and maps the subprocess result to a
// success/failure check-run transition. Set satisfies prstate.CIRunners.
package runners

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
	"github.com/gh-fleet/webhook-server/internal/cherry"
	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/notify"
	"github.com/gh-fleet/webhook-server/internal/prstate"
	"github.com/gh-fleet/webhook-server/internal/procrun"
	"github.com/gh-fleet/webhook-server/internal/redact"
	"github.com/gh-fleet/webhook-server/internal/workspace"
)

// Set bundles the dependencies every runner shares: the App-installation
// client (for check-run transitions and PR comments) and the per-delivery
// secret-redaction list.
type Set struct {
	GH              *githubclient.Client
	Secrets         *redact.List
	SlackWebhookURL string
}

func (s *Set) checkEngine(job prstate.Job) *checkruns.Engine {
	return &checkruns.Engine{Creator: s.GH, Owner: job.Owner, Repo: job.Repo, HeadSHA: job.HeadSHA}
}

// acquireForJob opens the "open PR" checkout mode (head merged onto base)
// every CI runner needs: the workspace package's case 8.
func acquireForJob(ctx context.Context, job prstate.Job) (*workspace.Workspace, workspace.Result, error) {
	return workspace.Acquire(ctx, workspace.Options{
		Owner:    job.Owner,
		Repo:     job.Repo,
		Token:    job.Token,
		GitName:  job.GitName,
		GitEmail: job.GitEmail,
		PRNumber: job.Number,
		BaseRef:  job.BaseRef,
	})
}

func (s *Set) failFromWorkspace(ctx context.Context, ce *checkruns.Engine, name string, res workspace.Result, err error) error {
	out := checkruns.SanitizeOutput(name+" workspace setup failed", res.Stdout, res.Stderr, s.Secrets)
	if serr := ce.SetFailure(ctx, name, &out); serr != nil {
		return serr
	}
	return fmt.Errorf("%s: workspace: %w", name, err)
}

func (s *Set) failFromProc(ctx context.Context, ce *checkruns.Engine, name, title string, res procrun.Result, err error) error {
	out := checkruns.SanitizeOutput(title, res.Stdout, res.Stderr, s.Secrets)
	if serr := ce.SetFailure(ctx, name, &out); serr != nil {
		return serr
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunTox shells out to `uvx tox` inside a fresh checkout, optionally pinned
// to a python version via `-e py<version>`.
func (s *Set) RunTox(ctx context.Context, job prstate.Job, pythonVersion string) error {
	ce := s.checkEngine(job)
	if err := ce.SetInProgress(ctx, checkruns.CheckTox); err != nil {
		return err
	}
	ws, wres, err := acquireForJob(ctx, job)
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return s.failFromWorkspace(ctx, ce, checkruns.CheckTox, wres, err)
	}

	args := []string{"tool", "run", "--from", "tox", "tox"}
	if pythonVersion != "" {
		args = append(args, "-e", "py"+strings.ReplaceAll(pythonVersion, ".", ""))
	}
	res, err := procrun.Run(ctx, "uvx", args, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
	if err != nil {
		return s.failFromProc(ctx, ce, checkruns.CheckTox, "tox failed", res, err)
	}
	out := checkruns.SanitizeOutput("tox passed", res.Stdout, "", s.Secrets)
	return ce.SetSuccess(ctx, checkruns.CheckTox, &out)
}

// RunPreCommit runs pre-commit's successor `prek` against the checkout,
// matching §6's "pre-commit (invoked as prek)" subprocess contract.
func (s *Set) RunPreCommit(ctx context.Context, job prstate.Job) error {
	ce := s.checkEngine(job)
	if err := ce.SetInProgress(ctx, checkruns.CheckPreCommit); err != nil {
		return err
	}
	ws, wres, err := acquireForJob(ctx, job)
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return s.failFromWorkspace(ctx, ce, checkruns.CheckPreCommit, wres, err)
	}

	res, err := procrun.Run(ctx, "uvx", []string{"tool", "run", "--from", "pre-commit", "prek", "run", "--all-files"}, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
	if err != nil {
		return s.failFromProc(ctx, ce, checkruns.CheckPreCommit, "pre-commit failed", res, err)
	}
	out := checkruns.SanitizeOutput("pre-commit passed", res.Stdout, "", s.Secrets)
	return ce.SetSuccess(ctx, checkruns.CheckPreCommit, &out)
}

// RunPythonModuleInstall verifies the checked-out tree installs cleanly as
// a python module (`uv pip install .`), the cheapest possible smoke test
// that the package metadata is not broken.
func (s *Set) RunPythonModuleInstall(ctx context.Context, job prstate.Job) error {
	ce := s.checkEngine(job)
	if err := ce.SetInProgress(ctx, checkruns.CheckPythonModuleInstall); err != nil {
		return err
	}
	ws, wres, err := acquireForJob(ctx, job)
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return s.failFromWorkspace(ctx, ce, checkruns.CheckPythonModuleInstall, wres, err)
	}

	res, err := procrun.Run(ctx, "uv", []string{"pip", "install", "."}, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
	if err != nil {
		return s.failFromProc(ctx, ce, checkruns.CheckPythonModuleInstall, "module install failed", res, err)
	}
	out := checkruns.SanitizeOutput("module install succeeded", res.Stdout, "", s.Secrets)
	return ce.SetSuccess(ctx, checkruns.CheckPythonModuleInstall, &out)
}

// registryHost returns the leading host segment of an image repository
// path, e.g. "ghcr.io/org/name" -> "ghcr.io", used as the podman login
// target.
func registryHost(repository string) string {
	if i := strings.Index(repository, "/"); i > 0 {
		return repository[:i]
	}
	return repository
}

// RunBuildContainer builds (and, when push is true, authenticates and
// pushes) the PR's container image via podman, following §4.8's "container
// build runner additionally authenticates to the registry and pushes on
// success when push=true" rule.
func (s *Set) RunBuildContainer(ctx context.Context, job prstate.Job, cfg config.ContainerConfig, push bool) error {
	ce := s.checkEngine(job)
	if err := ce.SetInProgress(ctx, checkruns.CheckBuildContainer); err != nil {
		return err
	}
	ws, wres, err := acquireForJob(ctx, job)
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return s.failFromWorkspace(ctx, ce, checkruns.CheckBuildContainer, wres, err)
	}

	tag := cfg.Tag
	if tag == "" {
		tag = fmt.Sprintf("pr-%d", job.Number)
	}
	image := fmt.Sprintf("%s:%s", cfg.Repository, tag)
	dockerfile := cfg.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildArgs := []string{"build", "-t", image, "-f", dockerfile}
	for _, a := range cfg.BuildArgs {
		buildArgs = append(buildArgs, "--build-arg", a)
	}
	buildArgs = append(buildArgs, cfg.Args...)
	buildArgs = append(buildArgs, ".")

	buildRes, err := procrun.RunPodman(ctx, buildArgs, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
	if err != nil {
		return s.failFromProc(ctx, ce, checkruns.CheckBuildContainer, "container build failed", buildRes, err)
	}

	if !push {
		out := checkruns.SanitizeOutput("container build succeeded", buildRes.Stdout, "", s.Secrets)
		return ce.SetSuccess(ctx, checkruns.CheckBuildContainer, &out)
	}

	if cfg.Username != "" {
		loginRes, err := procrun.RunPodman(ctx, []string{"login", "-u", cfg.Username, "-p", cfg.Password, registryHost(cfg.Repository)}, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
		if err != nil {
			return s.failFromProc(ctx, ce, checkruns.CheckBuildContainer, "registry login failed", loginRes, err)
		}
	}
	pushRes, err := procrun.RunPodman(ctx, []string{"push", image}, procrun.Options{Dir: ws.Dir, Redact: s.Secrets})
	if err != nil {
		return s.failFromProc(ctx, ce, checkruns.CheckBuildContainer, "container push failed", pushRes, err)
	}

	out := checkruns.SanitizeOutput("container pushed", pushRes.Stdout, "", s.Secrets)
	if err := ce.SetSuccess(ctx, checkruns.CheckBuildContainer, &out); err != nil {
		return err
	}

	msg := fmt.Sprintf("New container for %s published", image)
	if s.GH != nil {
		_, _ = s.GH.CreateComment(ctx, job.Owner, job.Repo, job.Number, msg)
	}
	if s.SlackWebhookURL != "" {
		go notify.Slack(context.Background(), s.SlackWebhookURL, msg)
	}
	return nil
}

// conventionalTitlePattern matches "<name>(<scope>):" at the start of a PR
// title, case sensitive on name as configured (§4.8: "regex (allowed-name)(.*):").
func conventionalTitlePattern(allowedNames []string) *regexp.Regexp {
	if len(allowedNames) == 0 {
		allowedNames = []string{"feat", "fix", "chore", "docs", "refactor", "test", "ci", "build", "perf", "revert"}
	}
	return regexp.MustCompile(`^(` + strings.Join(allowedNames, "|") + `)(\(.*\))?:`)
}

// RunConventionalTitle checks the PR title against the conventional-commit
// prefix regex; no workspace is needed since only the title is consulted.
func (s *Set) RunConventionalTitle(ctx context.Context, job prstate.Job, allowedNames []string) error {
	ce := s.checkEngine(job)
	if err := ce.SetInProgress(ctx, checkruns.CheckConventionalTitle); err != nil {
		return err
	}
	re := conventionalTitlePattern(allowedNames)
	if re.MatchString(job.Title) {
		return ce.SetSuccess(ctx, checkruns.CheckConventionalTitle, nil)
	}
	out := checkruns.SanitizeOutput("conventional-title failed",
		fmt.Sprintf("title %q does not match required pattern %s", job.Title, re.String()), "", s.Secrets)
	return ce.SetFailure(ctx, checkruns.CheckConventionalTitle, &out)
}

// manualCherryPickComment builds the reproducing git commands §4.8/§7
// require when an automatic cherry-pick fails.
func manualCherryPickComment(owner, repo, targetBranch, sha string) string {
	return fmt.Sprintf(
		"**Manual cherry-pick is needed**\n\n```\ngit fetch origin %s\ngit checkout -b cherry-pick-%s origin/%s\ngit cherry-pick -x %s\ngit push origin cherry-pick-%s\n```",
		targetBranch, targetBranch, targetBranch, sha, targetBranch,
	)
}

// RunCherryPick adapts the teacher's cherry.DoCherryPick/
// DoCherryPickWithMainline into the CIRunners seam: it pushes the cherry-
// picked work branch, then opens a PR labeled cherry-picked citing the
// source PR. On failure it posts the manual-cherry-pick instructions to
// the source PR instead of propagating the raw git error.
func (s *Set) RunCherryPick(ctx context.Context, job prstate.Job, targetBranch string) (string, error) {
	actor := cherry.GitActor{Name: job.GitName, Email: job.GitEmail}

	sha := job.MergeCommit
	var (
		workBranch string
		err        error
	)
	if sha != "" {
		workBranch, err = cherry.DoCherryPickWithMainline(ctx, job.Owner, job.Repo, job.Token, targetBranch, sha, 1, actor)
	} else {
		workBranch, err = cherry.DoCherryPick(ctx, job.Owner, job.Repo, job.Token, targetBranch, job.HeadSHA, actor)
	}
	if err != nil {
		if s.GH != nil {
			refSHA := sha
			if refSHA == "" {
				refSHA = job.HeadSHA
			}
			_, _ = s.GH.CreateComment(ctx, job.Owner, job.Repo, job.Number,
				manualCherryPickComment(job.Owner, job.Repo, targetBranch, refSHA))
		}
		return "", fmt.Errorf("cherry-pick to %s: %w", targetBranch, err)
	}

	title := fmt.Sprintf("Cherry-pick #%d to %s", job.Number, targetBranch)
	body := fmt.Sprintf("Automated cherry-pick of #%d onto `%s`.", job.Number, targetBranch)
	pr, err := s.GH.OpenPullRequest(ctx, job.Owner, job.Repo, title, body, workBranch, targetBranch)
	if err != nil {
		return "", fmt.Errorf("open cherry-pick PR for %s: %w", targetBranch, err)
	}
	if err := s.GH.FindOrCreateLabel(ctx, job.Owner, job.Repo, "cherry-picked", "5319e7"); err == nil {
		_, _ = s.GH.AddLabel(ctx, job.Owner, job.Repo, pr.GetNumber(), "cherry-picked")
	}
	return pr.GetHTMLURL(), nil
}

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/notify"
	"github.com/gh-fleet/webhook-server/internal/procrun"
	"github.com/gh-fleet/webhook-server/internal/redact"
	"github.com/gh-fleet/webhook-server/internal/workspace"
)

// handlePush implements §4.7: fires only on tag pushes, never fetches the
// repository snapshot (push has no PR context), and drives the PyPI
// publish and release-container build runners directly off config.
func (d *Dispatcher) handlePush(ctx context.Context, dc *delivery.Context, body []byte) Result {
	var v struct {
		Ref  string `json:"ref"`
		Repo struct {
			Name  string `json:"name"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
		} `json:"repository"`
		Installation struct {
			ID int64 `json:"id"`
		} `json:"installation"`
		Sender struct {
			Login string `json:"login"`
		} `json:"sender"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Result{Status: 400, Message: "bad payload"}
	}
	dc.Repository = v.Repo.Name
	dc.RepositoryFullName = v.Repo.Owner.Login + "/" + v.Repo.Name
	dc.Sender = v.Sender.Login
	dc.Action = "push"

	const tagPrefix = "refs/tags/"
	if !strings.HasPrefix(v.Ref, tagPrefix) {
		return Result{Status: 200, Message: "not a tag push"}
	}
	tag := strings.TrimPrefix(v.Ref, tagPrefix)

	clients, token, err := d.buildClients(ctx, v.Installation.ID, d.fleetTokens())
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "client_build_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}

	owner, repo := v.Repo.Owner.Login, v.Repo.Name
	repoFile, _ := clients.token.FetchFile(ctx, owner, repo, ".github-webhook-server.yaml", tag)
	resolver, err := config.NewResolver(d.FleetYAML, owner+"/"+repo, repoFile)
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "config_resolve_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}

	secrets := redact.NewList()
	secrets.Add(token)

	if pypi := resolver.GetPyPIConfig(); pypi != nil && pypi.Token != "" {
		dc.StartStep("push_pypi_publish")
		secrets.Add(pypi.Token)
		if err := d.publishPyPI(ctx, owner, repo, token, pypi.Token, secrets); err != nil {
			dc.FailStep("push_pypi_publish", delivery.ErrorRecord{Type: "pypi_publish_error", Message: redact.SafeErr(err)})
			title := sanitizeIssueTitle(err.Error())
			if _, cerr := clients.token.CreateRedactedFailureIssue(ctx, owner, repo, title, "PyPI publish failed for tag `"+tag+"`."); cerr != nil {
				dc.FailStep("push_pypi_failure_issue", delivery.ErrorRecord{Type: "create_issue_error", Message: redact.SafeErr(cerr)})
			}
		} else {
			dc.CompleteStep("push_pypi_publish", nil)
		}
	}

	if cfg := resolver.GetContainerConfig(); cfg != nil && cfg.Release {
		dc.StartStep("push_release_container")
		if err := d.buildReleaseContainer(ctx, owner, repo, tag, token, *cfg, secrets); err != nil {
			dc.FailStep("push_release_container", delivery.ErrorRecord{Type: "release_container_error", Message: redact.SafeErr(err)})
		} else {
			dc.CompleteStep("push_release_container", nil)
			msg := fmt.Sprintf("New release container for %s:%s published", cfg.Repository, tag)
			if slackURL := resolver.GetString("slack-webhook-url", ""); slackURL != "" {
				go notify.Slack(context.Background(), slackURL, msg)
			}
		}
	}

	return Result{Status: 200, Message: "ok"}
}

// sanitizeIssueTitle implements §4.7's failure-issue title rule: newlines
// collapsed, backticks stripped, truncated to 247 chars plus an ellipsis.
func sanitizeIssueTitle(msg string) string {
	s := strings.ReplaceAll(msg, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "`", "")
	if len(s) > 247 {
		s = s[:247] + "…"
	}
	return s
}

// buildReleaseContainer builds and pushes the tag-named release image
// (§4.7: "container build configured AND release: true: build and push
// the container with the tag name"). Grounded on the same podman sequence
// as internal/runners.RunBuildContainer, but checked out at the pushed
// tag rather than a PR head since a push delivery has no PR context.
func (d *Dispatcher) buildReleaseContainer(ctx context.Context, owner, repo, tag, cloneToken string, cfg config.ContainerConfig, secrets *redact.List) error {
	ws, _, err := workspace.Acquire(ctx, workspace.Options{
		Owner: owner, Repo: repo, Token: cloneToken,
		GitName: d.GitUserName, GitEmail: d.GitUserEmail,
		Tag: tag,
	})
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return fmt.Errorf("release workspace: %w", err)
	}

	dockerfile := cfg.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	image := fmt.Sprintf("%s:%s", cfg.Repository, tag)

	buildArgs := []string{"build", "-t", image, "-f", dockerfile}
	for _, a := range cfg.BuildArgs {
		buildArgs = append(buildArgs, "--build-arg", a)
	}
	buildArgs = append(buildArgs, cfg.Args...)
	buildArgs = append(buildArgs, ".")
	if res, err := procrun.RunPodman(ctx, buildArgs, procrun.Options{Dir: ws.Dir, Redact: secrets}); err != nil {
		return fmt.Errorf("podman build: %w: %s", err, res.Stderr)
	}

	if cfg.Username != "" {
		loginArgs := []string{"login", "-u", cfg.Username, "-p", cfg.Password, registryHostOf(cfg.Repository)}
		if res, err := procrun.RunPodman(ctx, loginArgs, procrun.Options{Dir: ws.Dir, Redact: secrets}); err != nil {
			return fmt.Errorf("podman login: %w: %s", err, res.Stderr)
		}
	}
	if res, err := procrun.RunPodman(ctx, []string{"push", image}, procrun.Options{Dir: ws.Dir, Redact: secrets}); err != nil {
		return fmt.Errorf("podman push: %w: %s", err, res.Stderr)
	}
	return nil
}

// registryHostOf mirrors internal/runners.registryHost: the leading host
// segment of an image repository path.
func registryHostOf(repository string) string {
	if i := strings.Index(repository, "/"); i > 0 {
		return repository[:i]
	}
	return repository
}

func (d *Dispatcher) publishPyPI(ctx context.Context, owner, repo, cloneToken, pypiToken string, secrets *redact.List) error {
	ws, _, err := workspace.Acquire(ctx, workspace.Options{
		Owner: owner, Repo: repo, Token: cloneToken,
		GitName: d.GitUserName, GitEmail: d.GitUserEmail,
		Checkout: "HEAD",
	})
	if ws != nil {
		defer ws.Release()
	}
	if err != nil {
		return fmt.Errorf("pypi workspace: %w", err)
	}

	if res, err := procrun.Run(ctx, "uv", []string{"build", "--sdist"}, procrun.Options{Dir: ws.Dir, Redact: secrets}); err != nil {
		return fmt.Errorf("uv build --sdist: %w: %s", err, res.Stderr)
	}
	if res, err := procrun.Run(ctx, "uvx", []string{"tool", "run", "--from", "twine", "twine", "check", "dist/*"}, procrun.Options{Dir: ws.Dir, Redact: secrets}); err != nil {
		return fmt.Errorf("twine check: %w: %s", err, res.Stderr)
	}
	env := []string{"TWINE_USERNAME=__token__", "TWINE_PASSWORD=" + pypiToken}
	if res, err := procrun.Run(ctx, "uvx", []string{"tool", "run", "--from", "twine", "twine", "upload", "dist/*"}, procrun.Options{Dir: ws.Dir, Env: env, Redact: secrets}); err != nil {
		return fmt.Errorf("twine upload: %w: %s", err, res.Stderr)
	}
	return nil
}

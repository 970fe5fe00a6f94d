package checkruns

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
)

// Creator is satisfied by githubclient.Client: check-run transitions must
// go through the GitHub App installation client, never the rotating
// user-token pool, so commit statuses clearly attribute to the app (§4.2.4).
type Creator interface {
	CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) error
}

// Engine drives the four check-run transitions of §4.2.4 for one PR's
// head commit.
type Engine struct {
	Creator Creator
	Owner   string
	Repo    string
	HeadSHA string
}

func (e *Engine) create(ctx context.Context, name string, status Status, conclusion string, out *Output) error {
	opts := github.CreateCheckRunOptions{
		Name:    name,
		HeadSHA: e.HeadSHA,
	}
	switch status {
	case StatusQueued:
		opts.Status = github.Ptr("queued")
	case StatusInProgress:
		opts.Status = github.Ptr("in_progress")
	default:
		opts.Status = github.Ptr("completed")
		opts.Conclusion = github.Ptr(conclusion)
	}
	if out != nil {
		opts.Output = &github.CheckRunOutput{Title: github.Ptr(out.Title), Summary: github.Ptr(out.Summary)}
	}

	if err := e.Creator.CreateCheckRun(ctx, e.Owner, e.Repo, opts); err != nil {
		// §4.2.4: a failure of the API call itself falls back to creating a
		// check-run with conclusion=failure, so a broken transition never
		// silently leaves a check stuck in_progress/queued forever.
		fallback := github.CreateCheckRunOptions{
			Name:       name,
			HeadSHA:    e.HeadSHA,
			Status:     github.Ptr("completed"),
			Conclusion: github.Ptr("failure"),
			Output: &github.CheckRunOutput{
				Title:   github.Ptr(name + " transition failed"),
				Summary: github.Ptr(fmt.Sprintf("failed to report %s status: %v", status, err)),
			},
		}
		if ferr := e.Creator.CreateCheckRun(ctx, e.Owner, e.Repo, fallback); ferr != nil {
			return fmt.Errorf("checkruns: %s transition and fallback both failed: %w", name, ferr)
		}
	}
	return nil
}

func (e *Engine) SetQueued(ctx context.Context, name string) error {
	return e.create(ctx, name, StatusQueued, "", nil)
}

func (e *Engine) SetInProgress(ctx context.Context, name string) error {
	return e.create(ctx, name, StatusInProgress, "", nil)
}

func (e *Engine) SetSuccess(ctx context.Context, name string, out *Output) error {
	return e.create(ctx, name, StatusSuccess, "success", out)
}

func (e *Engine) SetFailure(ctx context.Context, name string, out *Output) error {
	return e.create(ctx, name, StatusFailure, "failure", out)
}

package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
)

// OpenPullRequest opens a pull request from head onto base, used by the
// cherry-pick runner to open the automated follow-up PR (§4.8: "opens a PR
// ... labeled cherry-picked and a body citing the original PR").
func (c *Client) OpenPullRequest(ctx context.Context, owner, repo, title, body, head, base string) (*github.PullRequest, error) {
	c.CountCall()
	pr, _, err := c.REST.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Body:  github.Ptr(body),
	})
	if err != nil {
		return nil, fmt.Errorf("open pull request %s -> %s on %s/%s: %w", head, base, owner, repo, err)
	}
	return pr, nil
}

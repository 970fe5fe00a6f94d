package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

// RequestReviewers issues one batched "request reviews" mutation for the
// given PR (§4.3: "issue one batched 'request reviews' mutation").
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, logins []string) error {
	if len(logins) == 0 {
		return nil
	}
	c.CountCall()
	_, _, err := c.REST.PullRequests.RequestReviewers(ctx, owner, repo, number, github.ReviewersRequest{
		Reviewers: logins,
	})
	if err != nil {
		return fmt.Errorf("request reviewers %v on %s/%s#%d: %w", logins, owner, repo, number, err)
	}
	return nil
}

// AssignIssue adds an assignee to the PR (used for author-as-assignee and
// the root-approver fallback in §4.2.1).
func (c *Client) AssignIssue(ctx context.Context, owner, repo string, number int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	c.CountCall()
	_, _, err := c.REST.Issues.AddAssignees(ctx, owner, repo, number, assignees)
	if err != nil {
		return fmt.Errorf("assign %v on %s/%s#%d: %w", assignees, owner, repo, number, err)
	}
	return nil
}

// EditTitle renames the PR, used by the wip: prefix toggle (§4.2, §4.5).
func (c *Client) EditTitle(ctx context.Context, owner, repo string, number int, title string) error {
	c.CountCall()
	_, _, err := c.REST.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{Title: github.Ptr(title)})
	if err != nil {
		return fmt.Errorf("edit title on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// EnableAutoMerge turns on GitHub's native auto-merge for the PR via the
// enablePullRequestAutoMerge GraphQL mutation (§4.2 "opened"/"ready_for_review":
// "set auto-merge if applicable").
func (c *Client) EnableAutoMerge(ctx context.Context, owner, repo string, number int, mergeMethod string) error {
	prID, err := c.labelableID(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	var m struct {
		EnablePullRequestAutoMerge struct {
			ClientMutationId githubv4.String
		} `graphql:"enablePullRequestAutoMerge(input: $input)"`
	}
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: prID,
		MergeMethod:   pullRequestMergeMethod(mergeMethod),
	}
	c.CountCall()
	if err := c.GraphQL.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("enable auto-merge on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

func pullRequestMergeMethod(method string) *githubv4.PullRequestMergeMethod {
	var m githubv4.PullRequestMergeMethod
	switch method {
	case "rebase":
		m = githubv4.PullRequestMergeMethodRebase
	case "squash":
		m = githubv4.PullRequestMergeMethodSquash
	default:
		m = githubv4.PullRequestMergeMethodMerge
	}
	return &m
}

package githubclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
)

// trackingIssueMarker appears in the body of every tracking issue this
// service creates, letting CreateTrackingIssue / FindTrackingIssue agree on
// "already exists" without a separate side-channel (§4.2's replay-safety
// requirement: N identical deliveries produce exactly one tracking issue).
const trackingIssueMarker = "[Auto generated]"

// CreateTrackingIssue opens the per-PR tracking issue described by §4.2's
// example scenario: title "<pr title> - <number>", body "[Auto
// generated]\nNumber: [#<number>]".
func (c *Client) CreateTrackingIssue(ctx context.Context, owner, repo string, number int, prTitle string) (*github.Issue, error) {
	title := fmt.Sprintf("%s - %d", prTitle, number)
	body := fmt.Sprintf("%s\nNumber: [#%d]", trackingIssueMarker, number)
	c.CountCall()
	issue, _, err := c.REST.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
	})
	if err != nil {
		return nil, fmt.Errorf("create tracking issue for %s/%s#%d: %w", owner, repo, number, err)
	}
	return issue, nil
}

// FindTrackingIssue searches open issues for the one generated for this PR,
// matching on the "Number: [#<n>]" marker rather than title (titles can be
// edited independently of the PR they track).
func (c *Client) FindTrackingIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	needle := fmt.Sprintf("Number: [#%d]", number)
	c.CountCall()
	issues, _, err := c.REST.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues for %s/%s: %w", owner, repo, err)
	}
	for _, iss := range issues {
		if iss.IsPullRequest() {
			continue
		}
		if strings.Contains(iss.GetBody(), needle) {
			return iss, nil
		}
	}
	return nil, nil
}

// CloseTrackingIssue closes the tracking issue if one is found for the PR;
// a nil return with no error means there was nothing to close.
func (c *Client) CloseTrackingIssue(ctx context.Context, owner, repo string, number int) error {
	issue, err := c.FindTrackingIssue(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if issue == nil {
		return nil
	}
	c.CountCall()
	_, _, err = c.REST.Issues.Edit(ctx, owner, repo, issue.GetNumber(), &github.IssueRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("close tracking issue #%d for %s/%s#%d: %w", issue.GetNumber(), owner, repo, number, err)
	}
	return nil
}

// CreateRedactedFailureIssue opens an issue reporting a pipeline failure
// (§4.7's pypi-publish failure path), with secrets already stripped from
// body by the caller via internal/redact before this is invoked.
func (c *Client) CreateRedactedFailureIssue(ctx context.Context, owner, repo, title, body string) (*github.Issue, error) {
	c.CountCall()
	issue, _, err := c.REST.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
	})
	if err != nil {
		return nil, fmt.Errorf("create failure issue for %s/%s: %w", owner, repo, err)
	}
	return issue, nil
}

package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
)

// Comment is the minimal shape of an issue comment this package exposes,
// consumed by the owners package's authorization comment scan.
type Comment struct {
	AuthorLogin string
	Body        string
	ID          int64
}

// ListComments satisfies owners.CommentLister over the REST issue-comments
// endpoint (pull requests are issues for commenting purposes).
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	c.CountCall()
	cs, _, err := c.REST.Issues.ListComments(ctx, owner, repo, number, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("list comments %s/%s#%d: %w", owner, repo, number, err)
	}
	out := make([]Comment, 0, len(cs))
	for _, cm := range cs {
		if cm == nil {
			continue
		}
		login := ""
		if cm.User != nil {
			login = cm.User.GetLogin()
		}
		out = append(out, Comment{AuthorLogin: login, Body: cm.GetBody(), ID: cm.GetID()})
	}
	return out, nil
}

// CreateComment posts a new issue/PR comment.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error) {
	c.CountCall()
	ic, _, err := c.REST.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return nil, fmt.Errorf("create comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return ic, nil
}

// EditComment replaces an existing comment's body, used by the
// regenerate-welcome command.
func (c *Client) EditComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	c.CountCall()
	_, _, err := c.REST.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return fmt.Errorf("edit comment %d on %s/%s: %w", commentID, owner, repo, err)
	}
	return nil
}

// AddReaction reacts to a comment with 👍, the acknowledgement every
// recognized slash command gets before execution (§4.5).
func (c *Client) AddReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	c.CountCall()
	_, _, err := c.REST.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		return fmt.Errorf("react to comment %d on %s/%s: %w", commentID, owner, repo, err)
	}
	return nil
}

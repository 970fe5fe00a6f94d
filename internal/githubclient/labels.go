package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

// FindOrCreateLabel ensures a repository-level label exists with the given
// color, updating its color if it already exists but differs. Satisfies
// labels.Mutator.
func (c *Client) FindOrCreateLabel(ctx context.Context, owner, repo, name, color string) error {
	c.CountCall()
	existing, resp, err := c.REST.Issues.GetLabel(ctx, owner, repo, name)
	if err != nil {
		if resp == nil || resp.StatusCode != 404 {
			return fmt.Errorf("get label %q: %w", name, err)
		}
		c.CountCall()
		_, _, cerr := c.REST.Issues.CreateLabel(ctx, owner, repo, &github.Label{
			Name:  github.Ptr(name),
			Color: github.Ptr(color),
		})
		if cerr != nil {
			return fmt.Errorf("create label %q: %w", name, cerr)
		}
		return nil
	}
	if existing.GetColor() == color {
		return nil
	}
	c.CountCall()
	_, _, err = c.REST.Issues.EditLabel(ctx, owner, repo, name, &github.Label{
		Name:  github.Ptr(name),
		Color: github.Ptr(color),
	})
	if err != nil {
		return fmt.Errorf("update label %q color: %w", name, err)
	}
	return nil
}

// labelableID resolves a pull request's GraphQL node id, needed by the
// addLabelsToLabelable/removeLabelsFromLabelable mutations §6 specifies.
func (c *Client) labelableID(ctx context.Context, owner, repo string, number int) (githubv4.ID, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				ID githubv4.ID
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}
	c.CountCall()
	if err := c.GraphQL.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("resolve PR node id for %s/%s#%d: %w", owner, repo, number, err)
	}
	return q.Repository.PullRequest.ID, nil
}

func (c *Client) labelID(ctx context.Context, owner, repo, name string) (githubv4.ID, error) {
	var q struct {
		Repository struct {
			Label struct {
				ID githubv4.ID
			} `graphql:"label(name: $name)"`
		} `graphql:"repository(owner: $owner, name: $name2)"`
	}
	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name2": githubv4.String(repo),
		"name":  githubv4.String(name),
	}
	c.CountCall()
	if err := c.GraphQL.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("resolve label id %q: %w", name, err)
	}
	return q.Repository.Label.ID, nil
}

// AddLabel applies the label to the PR via addLabelsToLabelable and
// returns the PR's updated label set from the mutation response, avoiding
// a re-fetch (§4.4, §6).
func (c *Client) AddLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	labelableID, err := c.labelableID(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	lblID, err := c.labelID(ctx, owner, repo, name)
	if err != nil {
		return nil, err
	}

	var m struct {
		AddLabelsToLabelable struct {
			Labelable struct {
				PullRequest struct {
					Labels struct {
						Nodes []struct{ Name githubv4.String }
					} `graphql:"labels(first: 100)"`
				} `graphql:"... on PullRequest"`
			}
		} `graphql:"addLabelsToLabelable(input: $input)"`
	}
	input := githubv4.AddLabelsToLabelableInput{
		LabelableID: labelableID,
		LabelIDs:    []githubv4.ID{lblID},
	}
	c.CountCall()
	if err := c.GraphQL.Mutate(ctx, &m, input, nil); err != nil {
		return nil, fmt.Errorf("add label %q to %s/%s#%d: %w", name, owner, repo, number, err)
	}
	out := make([]string, 0, len(m.AddLabelsToLabelable.Labelable.PullRequest.Labels.Nodes))
	for _, n := range m.AddLabelsToLabelable.Labelable.PullRequest.Labels.Nodes {
		out = append(out, string(n.Name))
	}
	return out, nil
}

// RemoveLabel removes the label from the PR via removeLabelsFromLabelable
// and returns the PR's updated label set from the mutation response.
func (c *Client) RemoveLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	labelableID, err := c.labelableID(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	lblID, err := c.labelID(ctx, owner, repo, name)
	if err != nil {
		return nil, err
	}

	var m struct {
		RemoveLabelsFromLabelable struct {
			Labelable struct {
				PullRequest struct {
					Labels struct {
						Nodes []struct{ Name githubv4.String }
					} `graphql:"labels(first: 100)"`
				} `graphql:"... on PullRequest"`
			}
		} `graphql:"removeLabelsFromLabelable(input: $input)"`
	}
	input := githubv4.RemoveLabelsFromLabelableInput{
		LabelableID: labelableID,
		LabelIDs:    []githubv4.ID{lblID},
	}
	c.CountCall()
	if err := c.GraphQL.Mutate(ctx, &m, input, nil); err != nil {
		return nil, fmt.Errorf("remove label %q from %s/%s#%d: %w", name, owner, repo, number, err)
	}
	out := make([]string, 0, len(m.RemoveLabelsFromLabelable.Labelable.PullRequest.Labels.Nodes))
	for _, n := range m.RemoveLabelsFromLabelable.Labelable.PullRequest.Labels.Nodes {
		out = append(out, string(n.Name))
	}
	return out, nil
}

// FetchLabels re-fetches the PR's current label set via REST, used only by
// the labels engine's consistency poll when the cached view doesn't yet
// reflect a mutation.
func (c *Client) FetchLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	c.CountCall()
	pr, _, err := c.REST.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch labels for %s/%s#%d: %w", owner, repo, number, err)
	}
	out := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		if l != nil && l.Name != nil {
			out = append(out, l.GetName())
		}
	}
	return out, nil
}

package githubclient

import "context"

// BranchExists reports whether name is a branch on the repository, used by
// the /cherry-pick command to validate each requested target before
// labeling or running the cherry-pick.
func (c *Client) BranchExists(ctx context.Context, owner, repo, name string) bool {
	c.CountCall()
	_, _, err := c.REST.Repositories.GetBranch(ctx, owner, repo, name, false)
	return err == nil
}

package githubclient

import (
	"context"
	"fmt"
	"sync"
)

// privacyCache remembers whether a repo is private across deliveries
// (§4.2.4: "branch-protection required contexts (unless the repo is
// private, which is cached)") so a private repo's branch-protection
// endpoint — which 404s without the right token scope — isn't hit on every
// delivery.
type privacyCache struct {
	mu    sync.Mutex
	known map[string]bool
}

var repoPrivacy = &privacyCache{known: make(map[string]bool)}

func repoKey(owner, repo string) string { return owner + "/" + repo }

// IsPrivateRepo reports whether owner/repo is private, consulting the
// process-lifetime cache before calling GitHub.
func (c *Client) IsPrivateRepo(ctx context.Context, owner, repo string) (bool, error) {
	key := repoKey(owner, repo)
	repoPrivacy.mu.Lock()
	if v, ok := repoPrivacy.known[key]; ok {
		repoPrivacy.mu.Unlock()
		return v, nil
	}
	repoPrivacy.mu.Unlock()

	c.CountCall()
	r, _, err := c.REST.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return false, fmt.Errorf("get repo %s/%s: %w", owner, repo, err)
	}
	private := r.GetPrivate()

	repoPrivacy.mu.Lock()
	repoPrivacy.known[key] = private
	repoPrivacy.mu.Unlock()
	return private, nil
}

// RequiredStatusCheckContexts returns the branch's required-status-check
// contexts from branch protection, or an empty slice if the branch has no
// protection rule configured (treated as "no additional required
// contexts", not an error).
func (c *Client) RequiredStatusCheckContexts(ctx context.Context, owner, repo, branch string) ([]string, error) {
	c.CountCall()
	bp, resp, err := c.REST.Repositories.GetBranchProtection(ctx, owner, repo, branch)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch protection %s/%s@%s: %w", owner, repo, branch, err)
	}
	if bp.RequiredStatusChecks == nil {
		return nil, nil
	}
	return bp.RequiredStatusChecks.Contexts, nil
}

package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
)

// FetchFile retrieves a single file's raw content at a given ref via the
// REST Contents API, satisfying config.RemoteFileFetcher for both the
// repo-root .github-webhook-server.yaml (§6) and OWNERS file lookups (§4).
// A missing file is reported as (nil, nil): callers treat "absent" and
// "empty" identically, per the resolver's fall-through semantics.
func (c *Client) FetchFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	c.CountCall()
	fc, _, resp, err := c.REST.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %s/%s:%s@%s: %w", owner, repo, path, ref, err)
	}
	if fc == nil {
		return nil, nil
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s:%s@%s: %w", owner, repo, path, ref, err)
	}
	return []byte(content), nil
}

// FetchTree lists the contents of a directory (non-recursive).
func (c *Client) FetchTree(ctx context.Context, owner, repo, path, ref string) ([]*github.RepositoryContent, error) {
	c.CountCall()
	_, dir, resp, err := c.REST.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s/%s:%s@%s: %w", owner, repo, path, ref, err)
	}
	return dir, nil
}

// TreeEntry is the subset of a Git tree entry the OWNERS walk needs.
type TreeEntry struct {
	Path string
	Type string // "blob" or "tree"
}

// FetchRecursiveTree fetches the full recursive git tree at ref in a single
// call (Git Trees API, recursive=1), used by the OWNERS index builder to
// discover every OWNERS file in the repository without walking directory by
// directory.
func (c *Client) FetchRecursiveTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	c.CountCall()
	tree, _, err := c.REST.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("fetch tree %s/%s@%s: %w", owner, repo, ref, err)
	}
	out := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		out = append(out, TreeEntry{Path: e.GetPath(), Type: e.GetType()})
	}
	return out, nil
}

package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

// Mergeable mirrors GitHub's mergeable tri-state (§3: "mergeable
// tri-state"): MergeableUnknown means GitHub hasn't finished computing it
// yet (a background job; callers should treat it as "not yet decided"
// rather than a failure).
type Mergeable int

const (
	MergeableUnknown Mergeable = iota
	MergeableTrue
	MergeableFalse
)

// PRView is the in-memory pull request representation threaded through a
// delivery (§3 "Pull-request view"), constructed from the webhook payload
// when the event is pull_request (no round-trip needed) or fetched via
// GraphQL otherwise.
type PRView struct {
	Number    int
	Title     string
	Draft     bool
	Merged    bool
	BaseRef   string
	HeadRef   string
	HeadSHA   string
	HeadOwner string
	Author    string
	Additions int
	Deletions int
	Mergeable Mergeable
	Labels    []string
	MergeCommitSHA string
}

// HasLabel reports whether name is present on the cached view.
func (v *PRView) HasLabel(name string) bool {
	for _, l := range v.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// PRViewFromPayload builds a PRView directly from a pull_request webhook
// event, saving the GraphQL round-trip §4.1 calls out explicitly.
func PRViewFromPayload(e *github.PullRequestEvent) *PRView {
	pr := e.GetPullRequest()
	v := &PRView{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Draft:     pr.GetDraft(),
		Merged:    pr.GetMerged(),
		BaseRef:   pr.GetBase().GetRef(),
		HeadRef:   pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		Additions: pr.GetAdditions(),
		Deletions: pr.GetDeletions(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
	}
	if pr.GetHead().GetRepo() != nil {
		v.HeadOwner = pr.GetHead().GetRepo().GetOwner().GetLogin()
	}
	if pr.GetUser() != nil {
		v.Author = pr.GetUser().GetLogin()
	}
	switch pr.GetMergeableState() {
	case "clean", "unstable", "has_hooks":
		v.Mergeable = MergeableTrue
	case "dirty", "blocked":
		v.Mergeable = MergeableFalse
	default:
		v.Mergeable = MergeableUnknown
	}
	for _, l := range pr.Labels {
		if l != nil && l.Name != nil {
			v.Labels = append(v.Labels, l.GetName())
		}
	}
	return v
}

// FetchPRView fetches a PR's state via GraphQL, used for events other than
// pull_request (issue_comment, pull_request_review, check_run; §4.1).
func (c *Client) FetchPRView(ctx context.Context, owner, repo string, number int) (*PRView, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				Number    githubv4.Int
				Title     githubv4.String
				IsDraft   githubv4.Boolean
				Merged    githubv4.Boolean
				Additions githubv4.Int
				Deletions githubv4.Int
				Mergeable githubv4.MergeableState
				BaseRefName githubv4.String
				HeadRefName githubv4.String
				HeadRefOid  githubv4.String
				MergeCommit struct {
					Oid githubv4.String
				}
				Author struct {
					Login githubv4.String
				}
				HeadRepositoryOwner struct {
					Login githubv4.String
				}
				Labels struct {
					Nodes []struct{ Name githubv4.String }
				} `graphql:"labels(first: 100)"`
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
		return nil, fmt.Errorf("fetch PR view %s/%s#%d: %w", owner, repo, number, err)
	}
	pr := q.Repository.PullRequest
	v := &PRView{
		Number:         int(pr.Number),
		Title:          string(pr.Title),
		Draft:          bool(pr.IsDraft),
		Merged:         bool(pr.Merged),
		BaseRef:        string(pr.BaseRefName),
		HeadRef:        string(pr.HeadRefName),
		HeadSHA:        string(pr.HeadRefOid),
		Additions:      int(pr.Additions),
		Deletions:      int(pr.Deletions),
		Author:         string(pr.Author.Login),
		HeadOwner:      string(pr.HeadRepositoryOwner.Login),
		MergeCommitSHA: string(pr.MergeCommit.Oid),
	}
	switch pr.Mergeable {
	case githubv4.MergeableStateMergeable:
		v.Mergeable = MergeableTrue
	case githubv4.MergeableStateConflicting:
		v.Mergeable = MergeableFalse
	default:
		v.Mergeable = MergeableUnknown
	}
	for _, n := range pr.Labels.Nodes {
		v.Labels = append(v.Labels, string(n.Name))
	}
	return v, nil
}

// ChangedFiles returns the list of file paths touched by a PR, used by the
// OWNERS resolver's changed-file-to-directory mapping (§4.3).
func (c *Client) ChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	c.CountCall()
	files, _, err := c.REST.PullRequests.ListFiles(ctx, owner, repo, number, &github.ListOptions{PerPage: 300})
	if err != nil {
		return nil, fmt.Errorf("list changed files %s/%s#%d: %w", owner, repo, number, err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f != nil && f.Filename != nil {
			out = append(out, f.GetFilename())
		}
	}
	return out, nil
}

// CompareNeedsRebase reports whether the PR's base ref has commits the
// head doesn't (§9 design note: "needs-rebase" is read from the compare
// API, distinct from the mergeable tri-state used for "has-conflicts").
func (c *Client) CompareNeedsRebase(ctx context.Context, owner, repo, base, head string) (bool, error) {
	c.CountCall()
	cmp, _, err := c.REST.Repositories.CompareCommits(ctx, owner, repo, head, base, nil)
	if err != nil {
		return false, fmt.Errorf("compare %s...%s on %s/%s: %w", head, base, owner, repo, err)
	}
	return cmp.GetBehindBy() > 0, nil
}

// OpenPullRequestNumber is the minimal identity needed to re-run the
// merge-state reconciliation sweep (§4.2's post-merge "re-evaluate every
// other open PR" side effect) without refetching a full PRView per PR.
type OpenPullRequestNumber struct {
	Number  int
	HeadRef string
}

// ListOpenPullRequestNumbers lists every open PR's number and head ref for
// the repo, paginating through the REST list endpoint.
func (c *Client) ListOpenPullRequestNumbers(ctx context.Context, owner, repo string) ([]OpenPullRequestNumber, error) {
	var out []OpenPullRequestNumber
	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: 100}}
	for {
		c.CountCall()
		prs, resp, err := c.REST.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list open pull requests %s/%s: %w", owner, repo, err)
		}
		for _, pr := range prs {
			if pr == nil {
				continue
			}
			head := ""
			if pr.Head != nil {
				head = pr.Head.GetRef()
			}
			out = append(out, OpenPullRequestNumber{Number: pr.GetNumber(), HeadRef: head})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

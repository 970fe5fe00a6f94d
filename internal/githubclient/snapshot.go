package githubclient

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"
)

// Collaborator is a repository collaborator with their permission grade
// (§3: "ADMIN / MAINTAIN / WRITE / other").
type Collaborator struct {
	Login      string
	Permission string
}

// SnapshotIssue and SnapshotPR are the bounded-list shapes carried in a
// RepoSnapshot; only the fields consumed downstream are fetched.
type SnapshotIssue struct {
	Number int
	Title  string
	Labels []string
}

type SnapshotPR struct {
	Number int
	Title  string
}

// RepoSnapshot is the comprehensive per-delivery repository snapshot of
// spec §3: fetched once via a single GraphQL query, immutable for the
// delivery's lifetime.
type RepoSnapshot struct {
	NodeID         string
	DatabaseID     int64
	Collaborators  []Collaborator
	Mentionable    []string
	OpenIssues     []SnapshotIssue
	OpenPullReqs   []SnapshotPR
	Truncated      bool
}

// SnapshotCaps controls the per-list page size (§3: "Per-list caps are
// configurable (default 100, per-repo override allowed)").
type SnapshotCaps struct {
	Collaborators int
	Mentionable   int
	Issues        int
	PullRequests  int
}

// DefaultSnapshotCaps matches spec §6's N=100 default for every collection.
func DefaultSnapshotCaps() SnapshotCaps {
	return SnapshotCaps{Collaborators: 100, Mentionable: 100, Issues: 100, PullRequests: 100}
}

// comprehensiveQuery is the single GraphQL document that replaces many
// separate REST calls; shape mirrors abcxyz-github-metrics-aggregator's
// GetPullRequestsTargetingDefaultBranch query style (struct-tagged
// `graphql:"..."` fields, githubv4 scalar types).
type comprehensiveQuery struct {
	Repository struct {
		ID   githubv4.ID
		DatabaseID githubv4.Int
		Collaborators struct {
			Edges []struct {
				Permission githubv4.String
				Node       struct {
					Login githubv4.String
				}
			}
		} `graphql:"collaborators(first: $collaboratorsFirst)"`
		MentionableUsers struct {
			Nodes []struct {
				Login githubv4.String
			}
		} `graphql:"mentionableUsers(first: $mentionableFirst)"`
		Issues struct {
			Nodes []struct {
				Number githubv4.Int
				Title  githubv4.String
				Labels struct {
					Nodes []struct {
						Name githubv4.String
					}
				} `graphql:"labels(first: 20)"`
			}
		} `graphql:"issues(first: $issuesFirst, states: OPEN)"`
		PullRequests struct {
			Nodes []struct {
				Number githubv4.Int
				Title  githubv4.String
			}
		} `graphql:"pullRequests(first: $pullRequestsFirst, states: OPEN)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// FetchComprehensiveSnapshot issues the single "comprehensive repo fetch"
// query described in §3/§6.
func (c *Client) FetchComprehensiveSnapshot(ctx context.Context, owner, name string, caps SnapshotCaps) (*RepoSnapshot, error) {
	var q comprehensiveQuery
	vars := map[string]any{
		"owner":              githubv4.String(owner),
		"name":               githubv4.String(name),
		"collaboratorsFirst": githubv4.Int(caps.Collaborators),
		"mentionableFirst":   githubv4.Int(caps.Mentionable),
		"issuesFirst":        githubv4.Int(caps.Issues),
		"pullRequestsFirst":  githubv4.Int(caps.PullRequests),
	}
	c.CountCall()
	if err := c.GraphQL.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("comprehensive snapshot query: %w", err)
	}

	snap := &RepoSnapshot{
		DatabaseID: int64(q.Repository.DatabaseID),
	}
	if id, ok := q.Repository.ID.(string); ok {
		snap.NodeID = id
	}
	for _, e := range q.Repository.Collaborators.Edges {
		snap.Collaborators = append(snap.Collaborators, Collaborator{
			Login:      string(e.Node.Login),
			Permission: string(e.Permission),
		})
	}
	for _, n := range q.Repository.MentionableUsers.Nodes {
		snap.Mentionable = append(snap.Mentionable, string(n.Login))
	}
	for _, n := range q.Repository.Issues.Nodes {
		labels := make([]string, 0, len(n.Labels.Nodes))
		for _, l := range n.Labels.Nodes {
			labels = append(labels, string(l.Name))
		}
		snap.OpenIssues = append(snap.OpenIssues, SnapshotIssue{
			Number: int(n.Number),
			Title:  string(n.Title),
			Labels: labels,
		})
	}
	for _, n := range q.Repository.PullRequests.Nodes {
		snap.OpenPullReqs = append(snap.OpenPullReqs, SnapshotPR{
			Number: int(n.Number),
			Title:  string(n.Title),
		})
	}
	snap.Truncated = len(snap.Collaborators) >= caps.Collaborators ||
		len(snap.Mentionable) >= caps.Mentionable ||
		len(snap.OpenIssues) >= caps.Issues ||
		len(snap.OpenPullReqs) >= caps.PullRequests
	return snap, nil
}

// PermissionAtLeastWrite reports whether a collaborator's grade is one of
// ADMIN / MAINTAIN / WRITE, used by the OWNERS resolver's "valid
// commanders" projection and by the can-be-merged approver checks.
func PermissionAtLeastWrite(perm string) bool {
	switch perm {
	case "ADMIN", "MAINTAIN", "WRITE":
		return true
	default:
		return false
	}
}

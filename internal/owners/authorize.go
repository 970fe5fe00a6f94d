package owners

import (
	"context"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/githubclient"
)

// Permissions is the subset of a collaborator's grade this package cares
// about: whether they hold admin or maintain access on the repository.
type Permissions struct {
	Login    string
	Admin    bool
	Maintain bool
}

// CommentLister fetches the issue/PR comments of a pull request, used to
// discover whether a maintainer has already vouched for an otherwise
// unauthorized commenter via an "add-allowed-user" comment. Satisfied by
// githubclient.Client.ListComments.
type CommentLister interface {
	ListComments(ctx context.Context, owner, repo string, number int) ([]githubclient.Comment, error)
}

// Authorizer answers "is this user allowed to run slash commands on this
// PR", the predicate the original handler calls
// is_user_valid_to_run_commands.
type Authorizer struct {
	idx           *Index
	collaborators []Permissions
	contributors  []string
	valid         map[string]struct{}
}

// NewAuthorizer precomputes the set of users implicitly trusted to run
// commands: repository collaborators, mentionable contributors, every
// OWNERS approver, and every reviewer required by the current PR's changed
// files (the original handler folds all four sources into one set once,
// at initialize() time, to avoid repeated membership checks).
func NewAuthorizer(idx *Index, collaborators []Permissions, contributors []string, prReviewers []string) *Authorizer {
	valid := make(map[string]struct{})
	for _, c := range collaborators {
		valid[c.Login] = struct{}{}
	}
	for _, c := range contributors {
		valid[c] = struct{}{}
	}
	for _, a := range idx.AllApprovers() {
		valid[a] = struct{}{}
	}
	for _, r := range prReviewers {
		valid[r] = struct{}{}
	}
	return &Authorizer{idx: idx, collaborators: collaborators, contributors: contributors, valid: valid}
}

// ValidUsers returns the precomputed set of usernames implicitly trusted
// to run commands.
func (a *Authorizer) ValidUsers() map[string]struct{} {
	out := make(map[string]struct{}, len(a.valid))
	for k := range a.valid {
		out[k] = struct{}{}
	}
	return out
}

// Maintainers returns every collaborator with admin or maintain permission.
func (a *Authorizer) Maintainers() []string {
	var out []string
	for _, c := range a.collaborators {
		if c.Admin || c.Maintain {
			out = append(out, c.Login)
		}
	}
	return out
}

// allowedToApprove returns the maintainers, all repository OWNERS
// approvers, and the root OWNERS file's allowed-users list — the set of
// people whose "/add-allowed-user" comment can vouch for someone outside
// ValidUsers.
func (a *Authorizer) allowedToApprove() []string {
	out := append([]string{}, a.Maintainers()...)
	out = append(out, a.idx.AllApprovers()...)
	out = append(out, a.idx.RootEntry().AllowedUsers...)
	return sortedUnique(out)
}

// AddAllowedUserMarker builds the exact comment substring the authorization
// check searches for when vouching for a user, e.g. "/add-allowed-user
// @someone".
func AddAllowedUserMarker(user string) string {
	return "/add-allowed-user @" + user
}

// IsUserValidToRunCommands reports whether user may run slash commands on
// this PR: either they're already in the implicit trust set, or a
// maintainer/approver/allowed-user has vouched for them via an
// "/add-allowed-user @<user>" comment.
func (a *Authorizer) IsUserValidToRunCommands(ctx context.Context, lister CommentLister, owner, repo string, number int, user string) (bool, error) {
	if _, ok := a.valid[user]; ok {
		return true, nil
	}

	marker := AddAllowedUserMarker(user)
	approvers := make(map[string]struct{})
	for _, a := range a.allowedToApprove() {
		approvers[a] = struct{}{}
	}

	comments, err := lister.ListComments(ctx, owner, repo, number)
	if err != nil {
		return false, err
	}
	for _, c := range comments {
		if _, ok := approvers[c.AuthorLogin]; !ok {
			continue
		}
		if strings.Contains(c.Body, marker) {
			return true, nil
		}
	}
	return false, nil
}

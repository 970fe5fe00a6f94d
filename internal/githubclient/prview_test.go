package githubclient

import (
	"testing"

	"github.com/google/go-github/v75/github"
)

func TestPRViewFromPayload(t *testing.T) {
	pr := &github.PullRequest{
		Number:         github.Ptr(42),
		Title:          github.Ptr("fix: thing"),
		Draft:          github.Ptr(true),
		Merged:         github.Ptr(false),
		Additions:      github.Ptr(10),
		Deletions:      github.Ptr(2),
		MergeableState: github.Ptr("clean"),
		Base:           &github.PullRequestBranch{Ref: github.Ptr("main")},
		Head: &github.PullRequestBranch{
			Ref:  github.Ptr("feature"),
			SHA:  github.Ptr("abc123"),
			Repo: &github.Repository{Owner: &github.User{Login: github.Ptr("forker")}},
		},
		User:   &github.User{Login: github.Ptr("alice")},
		Labels: []*github.Label{{Name: github.Ptr("wip")}, {Name: github.Ptr("size/S")}},
	}
	e := &github.PullRequestEvent{PullRequest: pr}

	v := PRViewFromPayload(e)

	if v.Number != 42 || v.Title != "fix: thing" || !v.Draft || v.Merged {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.BaseRef != "main" || v.HeadRef != "feature" || v.HeadSHA != "abc123" {
		t.Fatalf("unexpected refs: %+v", v)
	}
	if v.HeadOwner != "forker" || v.Author != "alice" {
		t.Fatalf("unexpected owner/author: %+v", v)
	}
	if v.Mergeable != MergeableTrue {
		t.Fatalf("mergeable = %v, want MergeableTrue", v.Mergeable)
	}
	if !v.HasLabel("wip") || !v.HasLabel("size/S") || v.HasLabel("missing") {
		t.Fatalf("labels not mapped correctly: %+v", v.Labels)
	}
}

func TestPRViewFromPayload_MergeableStates(t *testing.T) {
	tests := []struct {
		state string
		want  Mergeable
	}{
		{"clean", MergeableTrue},
		{"unstable", MergeableTrue},
		{"has_hooks", MergeableTrue},
		{"dirty", MergeableFalse},
		{"blocked", MergeableFalse},
		{"", MergeableUnknown},
		{"unknown", MergeableUnknown},
	}
	for _, tt := range tests {
		pr := &github.PullRequest{MergeableState: github.Ptr(tt.state)}
		if tt.state == "" {
			pr.MergeableState = nil
		}
		v := PRViewFromPayload(&github.PullRequestEvent{PullRequest: pr})
		if v.Mergeable != tt.want {
			t.Errorf("state %q: mergeable = %v, want %v", tt.state, v.Mergeable, tt.want)
		}
	}
}

func TestPRViewFromPayload_NoHeadRepoOrUser(t *testing.T) {
	pr := &github.PullRequest{
		Head: &github.PullRequestBranch{Ref: github.Ptr("feature")},
	}
	v := PRViewFromPayload(&github.PullRequestEvent{PullRequest: pr})
	if v.HeadOwner != "" || v.Author != "" {
		t.Fatalf("expected empty owner/author when repo/user are nil, got %+v", v)
	}
}

func TestHasLabel_EmptySet(t *testing.T) {
	v := &PRView{}
	if v.HasLabel("anything") {
		t.Fatal("expected false on an empty label set")
	}
}

package prstate

import (
	"reflect"
	"testing"

	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/owners"
)

func newResolver(t *testing.T, repoYAML string) *config.Resolver {
	t.Helper()
	r, err := config.NewResolver(nil, "org/repo", []byte(repoYAML))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestComputeApproval_MissingApprovers(t *testing.T) {
	e := &Engine{
		Resolver: newResolver(t, "minimum-lgtm: 2\n"),
		Owners: &owners.Index{ByDir: map[string]owners.Entry{
			".": {Approvers: []string{"alice"}},
		}},
		View: &githubclient.PRView{Author: "dave"},
	}
	missing, lgtm, minLGTM, eligible := e.computeApproval([]string{"alice"}, nil)
	if !reflect.DeepEqual(missing, []string{"alice"}) {
		t.Fatalf("missing = %v, want [alice]", missing)
	}
	if lgtm != 0 || minLGTM != 2 || eligible != 1 {
		t.Fatalf("lgtm=%d minLGTM=%d eligible=%d", lgtm, minLGTM, eligible)
	}
}

func TestComputeApproval_ApprovedByRootClearsMissing(t *testing.T) {
	e := &Engine{
		Resolver: newResolver(t, ""),
		Owners: &owners.Index{ByDir: map[string]owners.Entry{
			".": {Approvers: []string{"alice"}},
		}},
		View: &githubclient.PRView{
			Author: "dave",
			Labels: []string{labels.PrefixApprovedBy + "alice"},
		},
	}
	missing, _, _, _ := e.computeApproval([]string{"alice"}, nil)
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want empty", missing)
	}
}

// TestComputeApproval_SmallTeamBypass is the key regression test: a repo
// with fewer reviewers than minimum-lgtm must still be satisfiable once
// every eligible reviewer has lgtm'd, mirroring the original handler's
// "lgtm_count == len(all_reviewers_without_pr_owner)" no-error branch.
func TestComputeApproval_SmallTeamBypass(t *testing.T) {
	e := &Engine{
		Resolver: newResolver(t, "minimum-lgtm: 3\n"),
		Owners: &owners.Index{ByDir: map[string]owners.Entry{
			".": {Reviewers: []string{"bob", "carol"}},
		}},
		View: &githubclient.PRView{
			Author: "dave",
			Labels: []string{
				labels.PrefixLGTMBy + "bob",
				labels.PrefixLGTMBy + "carol",
			},
		},
	}
	_, lgtm, minLGTM, eligible := e.computeApproval(nil, []string{"bob", "carol"})
	if lgtm != 2 || eligible != 2 {
		t.Fatalf("lgtm=%d eligible=%d, want 2 and 2", lgtm, eligible)
	}
	if lgtm >= minLGTM {
		t.Fatalf("test setup invalid: lgtm %d should be below minLGTM %d", lgtm, minLGTM)
	}
	if lgtm != eligible {
		t.Fatalf("bypass condition (lgtm == eligible) should hold here")
	}
}

func TestComputeApproval_AuthorExcludedFromEligiblePool(t *testing.T) {
	e := &Engine{
		Resolver: newResolver(t, "minimum-lgtm: 1\n"),
		Owners: &owners.Index{ByDir: map[string]owners.Entry{
			".": {Reviewers: []string{"dave"}},
		}},
		View: &githubclient.PRView{Author: "dave"},
	}
	_, lgtm, _, eligible := e.computeApproval(nil, []string{"dave"})
	if eligible != 0 {
		t.Fatalf("eligible = %d, want 0 (author excluded from own review pool)", eligible)
	}
	if lgtm != 0 {
		t.Fatalf("lgtm = %d, want 0", lgtm)
	}
}

func TestComputeApproval_AuthorLGTMIgnored(t *testing.T) {
	e := &Engine{
		Resolver: newResolver(t, "minimum-lgtm: 1\n"),
		Owners: &owners.Index{ByDir: map[string]owners.Entry{
			".": {Reviewers: []string{"bob"}},
		}},
		View: &githubclient.PRView{
			Author: "bob",
			Labels: []string{labels.PrefixLGTMBy + "bob"},
		},
	}
	_, lgtm, _, _ := e.computeApproval(nil, []string{"bob"})
	if lgtm != 0 {
		t.Fatalf("lgtm = %d, want 0 (author's own lgtm label must not count)", lgtm)
	}
}

package owners

import (
	"reflect"
	"sort"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestForChangedFiles_RootIncludedByDefault(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":       {Approvers: []string{"root-owner"}},
		"docs":    {Approvers: []string{"doc-owner"}},
	}}

	data := idx.ForChangedFiles([]string{"docs/readme.md"})

	if _, ok := data["."]; !ok {
		t.Fatalf("expected root entry to be included by default, got %v", data)
	}
	if _, ok := data["docs"]; !ok {
		t.Fatalf("expected docs entry to be matched, got %v", data)
	}
}

func TestForChangedFiles_RootOptOut(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":    {Approvers: []string{"root-owner"}},
		"docs": {Approvers: []string{"doc-owner"}, RootApprovers: boolPtr(false)},
	}}

	data := idx.ForChangedFiles([]string{"docs/readme.md"})

	if _, ok := data["."]; ok {
		t.Fatalf("expected root entry to be excluded when opted out and fully covered, got %v", data)
	}
	if _, ok := data["docs"]; !ok {
		t.Fatalf("expected docs entry to be matched, got %v", data)
	}
}

func TestForChangedFiles_RootOptOutButUncoveredFolder(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":    {Approvers: []string{"root-owner"}},
		"docs": {Approvers: []string{"doc-owner"}, RootApprovers: boolPtr(false)},
	}}

	// src/ has no OWNERS entry at all, so it's not covered by any match;
	// root must be pulled back in even though docs opted out.
	data := idx.ForChangedFiles([]string{"docs/readme.md", "src/main.go"})

	if _, ok := data["."]; !ok {
		t.Fatalf("expected root entry to be included for the uncovered src/ folder, got %v", data)
	}
}

func TestForChangedFiles_AnyMatchRequiringRootWins(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":     {Approvers: []string{"root-owner"}},
		"docs":  {Approvers: []string{"doc-owner"}, RootApprovers: boolPtr(false)},
		"infra": {Approvers: []string{"infra-owner"}}, // requires root (default true)
	}}

	data := idx.ForChangedFiles([]string{"docs/readme.md", "infra/main.tf"})

	if _, ok := data["."]; !ok {
		t.Fatalf("expected root entry included because infra/ requires it, got %v", data)
	}
}

func TestForChangedFiles_NestedAncestor(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":         {},
		"pkg":       {Approvers: []string{"pkg-owner"}, RootApprovers: boolPtr(false)},
	}}

	data := idx.ForChangedFiles([]string{"pkg/sub/deep/file.go"})

	if _, ok := data["pkg"]; !ok {
		t.Fatalf("expected pkg/ to govern a file several directories below it, got %v", data)
	}
}

func TestApproversForChangedFiles_SortedUnique(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".":    {Approvers: []string{"zoe", "alice"}},
		"docs": {Approvers: []string{"alice", "bob"}, RootApprovers: boolPtr(false)},
	}}

	got := idx.ApproversForChangedFiles([]string{"docs/readme.md", "other/file.txt"})
	want := []string{"alice", "bob", "zoe"}
	sort.Strings(got)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReviewersToAssign_ExcludesAuthor(t *testing.T) {
	got := ReviewersToAssign([]string{"bob", "alice", "author"}, "author")
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAuthorizer_ValidUsersIncludesApprovers(t *testing.T) {
	idx := &Index{ByDir: map[string]Entry{
		".": {Approvers: []string{"carol"}},
	}}
	az := NewAuthorizer(idx, []Permissions{{Login: "alice", Admin: true}}, []string{"dave"}, []string{"erin"})

	for _, want := range []string{"alice", "dave", "carol", "erin"} {
		if _, ok := az.ValidUsers()[want]; !ok {
			t.Errorf("expected %q to be a valid user, set was %v", want, az.ValidUsers())
		}
	}
}

func TestAuthorizer_MaintainersFiltersNonAdminNonMaintain(t *testing.T) {
	az := NewAuthorizer(&Index{ByDir: map[string]Entry{}}, []Permissions{
		{Login: "admin-user", Admin: true},
		{Login: "maintain-user", Maintain: true},
		{Login: "write-user"},
	}, nil, nil)

	got := az.Maintainers()
	sort.Strings(got)
	want := []string{"admin-user", "maintain-user"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

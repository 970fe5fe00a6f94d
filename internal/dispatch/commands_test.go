package dispatch

import (
	"reflect"
	"testing"

	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/prstate"
)

func TestParseCommands(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []slashCommand
	}{
		{
			name: "single command no args",
			body: "/lgtm",
			want: []slashCommand{{Name: "lgtm"}},
		},
		{
			name: "multiple commands, one per line",
			body: "thanks!\n/retest tox\n/wip cancel\n",
			want: []slashCommand{{Name: "retest", Args: "tox"}, {Name: "wip", Args: "cancel"}},
		},
		{
			name: "ignores non-slash lines",
			body: "please retest this\nnot a /command because of leading text",
			want: nil,
		},
		{
			name: "trims trailing CR and whitespace",
			body: "/assign-reviewer  @octocat  \r\n",
			want: []slashCommand{{Name: "assign-reviewer", Args: "@octocat"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommands(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseCommands(%q) = %+v, want %+v", tt.body, got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !contains([]string{"a", "b"}, "b") {
		t.Fatal("expected true")
	}
	if contains([]string{"a", "b"}, "c") {
		t.Fatal("expected false")
	}
	if contains(nil, "a") {
		t.Fatal("expected false on nil slice")
	}
}

func TestActionFor(t *testing.T) {
	if actionFor(true) != labels.ActionDelete {
		t.Fatal("remove=true should map to ActionDelete")
	}
	if actionFor(false) != labels.ActionAdd {
		t.Fatal("remove=false should map to ActionAdd")
	}
}

func TestDraftAllowList(t *testing.T) {
	tests := []struct {
		name          string
		repoYAML      string
		wantConfigured bool
		wantAllowed   []string
	}{
		{
			name:          "unset blocks everything",
			repoYAML:      ``,
			wantConfigured: false,
		},
		{
			name:          "empty list allows everything",
			repoYAML:      "allow-commands-on-draft-prs: []\n",
			wantConfigured: true,
			wantAllowed:   []string{},
		},
		{
			name:          "named list restricts to those names",
			repoYAML:      "allow-commands-on-draft-prs:\n  - retest\n  - lgtm\n",
			wantConfigured: true,
			wantAllowed:   []string{"retest", "lgtm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, err := config.NewResolver(nil, "org/repo", []byte(tt.repoYAML))
			if err != nil {
				t.Fatalf("NewResolver: %v", err)
			}
			e := &prstate.Engine{Resolver: resolver}
			allowed, configured := draftAllowList(e)
			if configured != tt.wantConfigured {
				t.Fatalf("configured = %v, want %v", configured, tt.wantConfigured)
			}
			if configured && !reflect.DeepEqual(allowed, tt.wantAllowed) {
				t.Fatalf("allowed = %+v, want %+v", allowed, tt.wantAllowed)
			}
		})
	}
}

package prstate

import (
	"context"
	"testing"

	"github.com/google/go-github/v75/github"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/githubclient"
	"github.com/gh-fleet/webhook-server/internal/labels"
)

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

type fakeMutator struct {
	labelsByPR []string
}

func (f *fakeMutator) FindOrCreateLabel(ctx context.Context, owner, repo, name, color string) error {
	return nil
}

func (f *fakeMutator) AddLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	if !containsStr(f.labelsByPR, name) {
		f.labelsByPR = append(f.labelsByPR, name)
	}
	return append([]string(nil), f.labelsByPR...), nil
}

func (f *fakeMutator) RemoveLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	out := make([]string, 0, len(f.labelsByPR))
	for _, l := range f.labelsByPR {
		if l != name {
			out = append(out, l)
		}
	}
	f.labelsByPR = out
	return append([]string(nil), out...), nil
}

func (f *fakeMutator) FetchLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	return append([]string(nil), f.labelsByPR...), nil
}

type fakeCheckCreator struct {
	transitions []string // "<name>:<status>[:<conclusion>]"
}

func (f *fakeCheckCreator) CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) error {
	entry := opts.Name + ":" + opts.GetStatus()
	if opts.Conclusion != nil {
		entry += ":" + opts.GetConclusion()
	}
	f.transitions = append(f.transitions, entry)
	return nil
}

func newTestEngine(mut *fakeMutator, checks *fakeCheckCreator, currentLabels []string, author string) *Engine {
	view := &githubclient.PRView{Author: author, Labels: append([]string(nil), currentLabels...)}
	mut.labelsByPR = append([]string(nil), currentLabels...)
	resolver, _ := config.NewResolver(nil, "org/repo", nil)
	return &Engine{
		View:     view,
		Labels:   &labels.Engine{Mutator: mut},
		Checks:   &checkruns.Engine{Creator: checks},
		Resolver: resolver,
	}
}

func TestApplyVerifiedResetPolicy_CherryPickedKeepsQueued(t *testing.T) {
	mut := &fakeMutator{}
	checks := &fakeCheckCreator{}
	e := newTestEngine(mut, checks, []string{"cherry-picked"}, "dave")

	if err := e.applyVerifiedResetPolicy(context.Background()); err != nil {
		t.Fatalf("applyVerifiedResetPolicy: %v", err)
	}
	if len(checks.transitions) != 1 || checks.transitions[0] != checkruns.CheckVerified+":queued" {
		t.Fatalf("transitions = %v, want a single queued transition", checks.transitions)
	}
}

// With auto-verify-cherry-picked-prs disabled, a cherry-picked PR's stale
// "verified" label is left in place (the early-return branch never reaches
// the removal step below it). Enabling the flag skips that early return and
// falls through to the same cleanup every other PR gets, clearing the
// stale label before re-queuing.
func TestApplyVerifiedResetPolicy_AutoVerifiedCherryPickedClearsStaleLabel(t *testing.T) {
	mut := &fakeMutator{}
	checks := &fakeCheckCreator{}
	e := newTestEngine(mut, checks, []string{"cherry-picked", "verified"}, "dave")
	e.Resolver = newResolver(t, "auto-verify-cherry-picked-prs: true\n")

	if err := e.applyVerifiedResetPolicy(context.Background()); err != nil {
		t.Fatalf("applyVerifiedResetPolicy: %v", err)
	}
	if containsStr(mut.labelsByPR, "verified") {
		t.Fatalf("expected stale verified label to be cleared, got %v", mut.labelsByPR)
	}
}

func TestApplyVerifiedResetPolicy_CherryPickedWithoutBypassKeepsStaleLabel(t *testing.T) {
	mut := &fakeMutator{}
	checks := &fakeCheckCreator{}
	e := newTestEngine(mut, checks, []string{"cherry-picked", "verified"}, "dave")

	if err := e.applyVerifiedResetPolicy(context.Background()); err != nil {
		t.Fatalf("applyVerifiedResetPolicy: %v", err)
	}
	if !containsStr(mut.labelsByPR, "verified") {
		t.Fatalf("expected verified label to be left untouched by the cherry-picked early return, got %v", mut.labelsByPR)
	}
}

func TestApplyVerifiedResetPolicy_TrustedAuthorGetsImmediateSuccess(t *testing.T) {
	mut := &fakeMutator{}
	checks := &fakeCheckCreator{}
	e := newTestEngine(mut, checks, nil, "trusted-bot")
	e.Resolver = newResolver(t, "auto-verified-and-merged-users:\n  - trusted-bot\n")

	if err := e.applyVerifiedResetPolicy(context.Background()); err != nil {
		t.Fatalf("applyVerifiedResetPolicy: %v", err)
	}
	if !containsStr(mut.labelsByPR, "verified") {
		t.Fatalf("expected verified label to be applied, got %v", mut.labelsByPR)
	}
	want := checkruns.CheckVerified + ":completed:success"
	if len(checks.transitions) != 1 || checks.transitions[0] != want {
		t.Fatalf("transitions = %v, want [%s]", checks.transitions, want)
	}
}

func TestApplyVerifiedResetPolicy_DefaultRemovesVerifiedAndQueues(t *testing.T) {
	mut := &fakeMutator{}
	checks := &fakeCheckCreator{}
	e := newTestEngine(mut, checks, []string{"verified"}, "dave")

	if err := e.applyVerifiedResetPolicy(context.Background()); err != nil {
		t.Fatalf("applyVerifiedResetPolicy: %v", err)
	}
	if containsStr(mut.labelsByPR, "verified") {
		t.Fatalf("expected verified label to be removed, got %v", mut.labelsByPR)
	}
	if len(checks.transitions) != 1 || checks.transitions[0] != checkruns.CheckVerified+":queued" {
		t.Fatalf("transitions = %v, want a single queued transition", checks.transitions)
	}
}

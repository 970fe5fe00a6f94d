package checkruns

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-github/v75/github"
)

type fakeCreator struct {
	calls []github.CreateCheckRunOptions
	fail  int // number of leading calls to fail
}

func (f *fakeCreator) CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) error {
	f.calls = append(f.calls, opts)
	if len(f.calls) <= f.fail {
		return errors.New("boom")
	}
	return nil
}

func TestEngine_SetInProgress(t *testing.T) {
	c := &fakeCreator{}
	e := &Engine{Creator: c, Owner: "o", Repo: "r", HeadSHA: "sha1"}
	if err := e.SetInProgress(context.Background(), CheckTox); err != nil {
		t.Fatalf("SetInProgress: %v", err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(c.calls))
	}
	got := c.calls[0]
	if got.GetStatus() != "in_progress" || got.Name != CheckTox || got.HeadSHA != "sha1" {
		t.Fatalf("unexpected opts: %+v", got)
	}
}

func TestEngine_SetSuccessWithOutput(t *testing.T) {
	c := &fakeCreator{}
	e := &Engine{Creator: c, Owner: "o", Repo: "r", HeadSHA: "sha1"}
	out := &Output{Title: "t", Summary: "s"}
	if err := e.SetSuccess(context.Background(), CheckVerified, out); err != nil {
		t.Fatalf("SetSuccess: %v", err)
	}
	got := c.calls[0]
	if got.GetStatus() != "completed" || got.GetConclusion() != "success" {
		t.Fatalf("unexpected opts: %+v", got)
	}
	if got.Output.GetTitle() != "t" || got.Output.GetSummary() != "s" {
		t.Fatalf("output not set: %+v", got.Output)
	}
}

func TestEngine_FailureFallsBackOnTransitionError(t *testing.T) {
	c := &fakeCreator{fail: 1}
	e := &Engine{Creator: c, Owner: "o", Repo: "r", HeadSHA: "sha1"}
	if err := e.SetFailure(context.Background(), CheckTox, nil); err != nil {
		t.Fatalf("SetFailure should succeed via fallback, got %v", err)
	}
	if len(c.calls) != 2 {
		t.Fatalf("expected primary + fallback call, got %d calls", len(c.calls))
	}
	fallback := c.calls[1]
	if fallback.GetConclusion() != "failure" {
		t.Fatalf("fallback conclusion = %q, want failure", fallback.GetConclusion())
	}
}

func TestEngine_ErrorWhenFallbackAlsoFails(t *testing.T) {
	c := &fakeCreator{fail: 2}
	e := &Engine{Creator: c, Owner: "o", Repo: "r", HeadSHA: "sha1"}
	if err := e.SetFailure(context.Background(), CheckTox, nil); err == nil {
		t.Fatal("expected error when both primary and fallback calls fail")
	}
}

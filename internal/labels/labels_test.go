package labels

import (
	"context"
	"testing"
)

func TestSizeFor_DefaultThresholds(t *testing.T) {
	cases := []struct {
		additions, deletions int
		want                 string
	}{
		{additions: 5, deletions: 0, want: "XS"},
		{additions: 19, deletions: 0, want: "XS"},
		{additions: 20, deletions: 0, want: "S"},
		{additions: 49, deletions: 0, want: "S"},
		{additions: 80, deletions: 19, want: "M"},
		{additions: 150, deletions: 50, want: "L"},
		{additions: 300, deletions: 0, want: "XL"},
		{additions: 1000, deletions: 0, want: "XXL"},
	}
	for _, c := range cases {
		got := SizeFor(c.additions, c.deletions, nil)
		if got.Name != c.want {
			t.Errorf("SizeFor(%d, %d) = %s, want %s", c.additions, c.deletions, got.Name, c.want)
		}
	}
}

func TestColorFor_StaticAndDynamic(t *testing.T) {
	if got := ColorFor("wip", nil); got != "fbca04" {
		t.Errorf("ColorFor(wip) = %s", got)
	}
	if got := ColorFor("approved-by-alice", nil); got != "0e8a16" {
		t.Errorf("ColorFor(approved-by-alice) = %s", got)
	}
	if got := ColorFor("size/XL", nil); got != "e8491d" {
		t.Errorf("ColorFor(size/XL) = %s", got)
	}
	if got := ColorFor("some-random-label", nil); got != "ededed" {
		t.Errorf("ColorFor(random) = %s", got)
	}
}

func TestManageReviewedByLabel_Approve(t *testing.T) {
	p := ManageReviewedByLabel(StateApprove, ActionAdd, "alice", true, false)
	if p.Skip {
		t.Fatal("expected approve by an approver to not be skipped")
	}
	if p.TargetLabel != "approved-by-alice" {
		t.Errorf("got target %q", p.TargetLabel)
	}
	if p.PairToRemove != "changes-requested-by-alice" {
		t.Errorf("got pair %q", p.PairToRemove)
	}

	skip := ManageReviewedByLabel(StateApprove, ActionAdd, "bob", false, false)
	if !skip.Skip {
		t.Fatal("expected approve by a non-approver to be skipped")
	}
}

func TestManageReviewedByLabel_ApprovedSkipsAuthor(t *testing.T) {
	p := ManageReviewedByLabel(StateApproved, ActionAdd, "author", false, true)
	if !p.Skip {
		t.Fatal("expected a GitHub 'approved' review from the PR author to be skipped")
	}
}

func TestManageReviewedByLabel_ChangesRequested(t *testing.T) {
	p := ManageReviewedByLabel(StateChangesRequested, ActionAdd, "carol", false, false)
	if p.TargetLabel != "changes-requested-by-carol" || p.PairToRemove != "lgtm-by-carol" {
		t.Errorf("got %+v", p)
	}
}

func TestManageReviewedByLabel_CommentedHasNoPair(t *testing.T) {
	p := ManageReviewedByLabel(StateCommented, ActionAdd, "dave", false, false)
	if p.TargetLabel != "commented-by-dave" || p.PairToRemove != "" {
		t.Errorf("got %+v", p)
	}
}

type fakeMutator struct {
	labels       map[string]bool
	findOrCreate map[string]string
	fetchErr     error
}

func newFakeMutator(initial ...string) *fakeMutator {
	m := &fakeMutator{labels: map[string]bool{}, findOrCreate: map[string]string{}}
	for _, l := range initial {
		m.labels[l] = true
	}
	return m
}

func (m *fakeMutator) snapshot() []string {
	var out []string
	for l, present := range m.labels {
		if present {
			out = append(out, l)
		}
	}
	return out
}

func (m *fakeMutator) FindOrCreateLabel(ctx context.Context, owner, repo, name, color string) error {
	m.findOrCreate[name] = color
	return nil
}

func (m *fakeMutator) AddLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	m.labels[name] = true
	return m.snapshot(), nil
}

func (m *fakeMutator) RemoveLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error) {
	m.labels[name] = false
	return m.snapshot(), nil
}

func (m *fakeMutator) FetchLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.snapshot(), nil
}

func TestEngine_Add_NoopWhenAlreadyPresent(t *testing.T) {
	m := newFakeMutator("wip")
	e := &Engine{Mutator: m}

	got, err := e.Add(context.Background(), "o", "r", 1, []string{"wip"}, "wip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.findOrCreate) != 0 {
		t.Fatalf("expected no find-or-create call on no-op add, got %v", m.findOrCreate)
	}
	if !contains(got, "wip") {
		t.Fatalf("expected wip to remain present, got %v", got)
	}
}

func TestEngine_Add_RejectsLongName(t *testing.T) {
	e := &Engine{Mutator: newFakeMutator()}
	long := ""
	for i := 0; i < MaxLabelNameLen+1; i++ {
		long += "x"
	}
	_, err := e.Add(context.Background(), "o", "r", 1, nil, long)
	if err == nil {
		t.Fatal("expected ErrNameTooLong")
	}
}

func TestEngine_Add_CreatesAndAddsLabel(t *testing.T) {
	m := newFakeMutator()
	e := &Engine{Mutator: m}

	got, err := e.Add(context.Background(), "o", "r", 1, nil, "automerge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.findOrCreate["automerge"]; !ok {
		t.Fatal("expected find-or-create to be called")
	}
	if !contains(got, "automerge") {
		t.Fatalf("expected automerge in result, got %v", got)
	}
}

func TestEngine_Remove_NoopWhenAbsent(t *testing.T) {
	m := newFakeMutator()
	e := &Engine{Mutator: m}

	got, err := e.Remove(context.Background(), "o", "r", 1, nil, "hold")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contains(got, "hold") {
		t.Fatalf("did not expect hold present: %v", got)
	}
}

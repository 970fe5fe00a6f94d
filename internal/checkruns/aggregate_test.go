package checkruns

import (
	"reflect"
	"sort"
	"testing"
)

func TestResolve_HighestIDPerContextWins(t *testing.T) {
	resolved := Resolve(
		[]Observation{
			{Context: "ci", ID: 1, State: StatusFailure, FromCheckRun: true},
			{Context: "ci", ID: 2, State: StatusSuccess, FromCheckRun: true},
		},
		nil,
	)
	if resolved["ci"] != StatusSuccess {
		t.Fatalf("resolved[ci] = %v, want success (highest id wins)", resolved["ci"])
	}
}

func TestResolve_SuccessInEitherSourceWins(t *testing.T) {
	resolved := Resolve(
		[]Observation{{Context: "ci", ID: 1, State: StatusFailure, FromCheckRun: true}},
		[]Observation{{Context: "ci", ID: 1, State: StatusSuccess}},
	)
	if resolved["ci"] != StatusSuccess {
		t.Fatalf("resolved[ci] = %v, want success", resolved["ci"])
	}
}

func TestResolve_FailureBeatsInProgress(t *testing.T) {
	resolved := Resolve(
		[]Observation{{Context: "ci", ID: 1, State: StatusInProgress, FromCheckRun: true}},
		[]Observation{{Context: "ci", ID: 1, State: StatusFailure}},
	)
	if resolved["ci"] != StatusFailure {
		t.Fatalf("resolved[ci] = %v, want failure", resolved["ci"])
	}
}

func TestResolve_InProgressOnlyFromCheckRun(t *testing.T) {
	resolved := Resolve(
		[]Observation{{Context: "ci", ID: 1, State: StatusInProgress, FromCheckRun: true}},
		nil,
	)
	if resolved["ci"] != StatusInProgress {
		t.Fatalf("resolved[ci] = %v, want in_progress", resolved["ci"])
	}
}

func TestEvaluateRequired(t *testing.T) {
	resolved := map[string]Status{
		"ci":         StatusSuccess,
		"tox":        StatusInProgress,
		"pre-commit": StatusFailure,
	}
	inProgress, failedOrMissing, passing := EvaluateRequired(
		[]string{"ci", "tox", "pre-commit", "missing-check"}, resolved)

	if !reflect.DeepEqual(passing, []string{"ci"}) {
		t.Errorf("passing = %v, want [ci]", passing)
	}
	if !reflect.DeepEqual(inProgress, []string{"tox"}) {
		t.Errorf("inProgress = %v, want [tox]", inProgress)
	}
	sort.Strings(failedOrMissing)
	if !reflect.DeepEqual(failedOrMissing, []string{"missing-check", "pre-commit"}) {
		t.Errorf("failedOrMissing = %v, want [missing-check pre-commit]", failedOrMissing)
	}
}

func TestRequiredChecks_AlwaysIncludesCanBeMerged(t *testing.T) {
	got := RequiredChecks(FeatureFlags{})
	if len(got) != 1 || got[0] != CheckCanBeMerged {
		t.Fatalf("got %v, want only [%s]", got, CheckCanBeMerged)
	}
}

func TestRequiredChecks_PrivateRepoSkipsBranchProtection(t *testing.T) {
	got := RequiredChecks(FeatureFlags{
		IsPrivateRepo:                    true,
		BranchProtectionRequiredContexts: []string{"ci/lint"},
	})
	for _, c := range got {
		if c == "ci/lint" {
			t.Fatalf("private repo should skip branch-protection contexts, got %v", got)
		}
	}
}

func TestRequiredChecks_FeatureGatesAndDedup(t *testing.T) {
	got := RequiredChecks(FeatureFlags{
		Tox:                   true,
		Verified:              true,
		BuildContainer:        true,
		PythonModuleInstall:   true,
		ConventionalTitle:     true,
		PreCommit:             true,
		MandatoryCustomChecks: []string{CheckTox, "custom-check"},
	})
	want := []string{CheckBuildContainer, CheckCanBeMerged, CheckConventionalTitle, "custom-check",
		CheckPreCommit, CheckPythonModuleInstall, CheckTox, CheckVerified}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCache_ComputesOnce(t *testing.T) {
	var c Cache
	first := c.Get(FeatureFlags{Tox: true})
	// A second call with different flags must still return the first
	// delivery's cached set (§4.2.4: computed once per delivery).
	second := c.Get(FeatureFlags{Tox: false, Verified: true})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cache recomputed: first=%v second=%v", first, second)
	}
}

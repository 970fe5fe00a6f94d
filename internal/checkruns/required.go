package checkruns

import "sort"

// FeatureFlags is the subset of per-repo configuration the required-check
// set depends on.
type FeatureFlags struct {
	Tox                bool
	Verified           bool
	BuildContainer     bool
	PythonModuleInstall bool
	ConventionalTitle  bool
	PreCommit          bool
	IsPrivateRepo      bool
	BranchProtectionRequiredContexts []string
	MandatoryCustomChecks []string
}

// RequiredChecks computes the required-check set of §4.2.4: branch
// protection's required contexts (skipped for private repos, which cache
// their branch-protection lookup), plus the always-required
// can-be-merged check, plus any feature-gated named check, plus mandatory
// custom checks. The result is de-duplicated and sorted for a stable,
// testable ordering — callers should treat it as a set.
func RequiredChecks(f FeatureFlags) []string {
	set := map[string]struct{}{CheckCanBeMerged: {}}

	if !f.IsPrivateRepo {
		for _, c := range f.BranchProtectionRequiredContexts {
			set[c] = struct{}{}
		}
	}
	if f.Tox {
		set[CheckTox] = struct{}{}
	}
	if f.Verified {
		set[CheckVerified] = struct{}{}
	}
	if f.BuildContainer {
		set[CheckBuildContainer] = struct{}{}
	}
	if f.PythonModuleInstall {
		set[CheckPythonModuleInstall] = struct{}{}
	}
	if f.ConventionalTitle {
		set[CheckConventionalTitle] = struct{}{}
	}
	if f.PreCommit {
		set[CheckPreCommit] = struct{}{}
	}
	for _, c := range f.MandatoryCustomChecks {
		set[c] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Cache memoizes the required-check set for a single delivery: §4.2.4
// says it's "computed once per delivery and cached", not recomputed on
// every evaluation of the can-be-merged predicate within that delivery.
type Cache struct {
	computed bool
	value    []string
}

// Get returns the cached set, computing and storing it on first call.
func (c *Cache) Get(f FeatureFlags) []string {
	if !c.computed {
		c.value = RequiredChecks(f)
		c.computed = true
	}
	return c.value
}

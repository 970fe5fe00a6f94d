package checkruns

// Observation is one check-run or legacy commit-status sighting for a
// single context on the head commit.
type Observation struct {
	Context string
	ID      int64 // used to pick the most recent entry per context
	State   Status
	// FromCheckRun distinguishes a check-run sighting from a legacy commit
	// status one; only check-runs can report in-progress (§4.2.4: "statuses
	// have no in-progress state").
	FromCheckRun bool
}

// latestPerContext reduces a mixed list of check-run and status
// observations to the highest-id entry per context, as §4.2.4 requires
// ("for a given context name, only the highest-id (most recent) entry is
// considered").
func latestPerContext(obs []Observation) map[string]Observation {
	latest := make(map[string]Observation)
	for _, o := range obs {
		cur, ok := latest[o.Context]
		if !ok || o.ID > cur.ID {
			latest[o.Context] = o
		}
	}
	return latest
}

// Resolve merges check-run and legacy-status observations for the same set
// of contexts: for a context appearing in both sources, the highest-id
// entry per source wins, then success-in-either counts as pass and
// failure-in-either counts as fail; in-progress is only ever reported by a
// check-run entry.
func Resolve(checkRunObs, statusObs []Observation) map[string]Status {
	crLatest := latestPerContext(checkRunObs)
	stLatest := latestPerContext(statusObs)

	contexts := make(map[string]struct{})
	for c := range crLatest {
		contexts[c] = struct{}{}
	}
	for c := range stLatest {
		contexts[c] = struct{}{}
	}

	result := make(map[string]Status, len(contexts))
	for c := range contexts {
		cr, hasCR := crLatest[c]
		st, hasST := stLatest[c]

		switch {
		case hasCR && cr.State == StatusSuccess:
			result[c] = StatusSuccess
		case hasST && st.State == StatusSuccess:
			result[c] = StatusSuccess
		case hasCR && cr.State == StatusFailure:
			result[c] = StatusFailure
		case hasST && st.State == StatusFailure:
			result[c] = StatusFailure
		case hasCR && cr.State == StatusInProgress:
			result[c] = StatusInProgress
		case hasCR:
			result[c] = cr.State
		case hasST:
			result[c] = st.State
		}
	}
	return result
}

// EvaluateRequired classifies every entry in required against the
// resolved status map into the three sub-states §4.2.3 needs: in-progress,
// failed-or-missing, and passing. A required check absent from the
// resolved map is "missing".
func EvaluateRequired(required []string, resolved map[string]Status) (inProgress, failedOrMissing, passing []string) {
	for _, name := range required {
		st, ok := resolved[name]
		if !ok {
			failedOrMissing = append(failedOrMissing, name)
			continue
		}
		switch st {
		case StatusInProgress, StatusQueued:
			inProgress = append(inProgress, name)
		case StatusSuccess:
			passing = append(passing, name)
		default:
			failedOrMissing = append(failedOrMissing, name)
		}
	}
	return inProgress, failedOrMissing, passing
}

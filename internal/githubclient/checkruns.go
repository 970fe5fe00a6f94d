package githubclient

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
)

// CreateCheckRun issues a check-run creation call through the App
// installation client. Check-run transitions always use a fresh
// CreateCheckRun rather than updating an existing run, matching the
// original handler's stateless "create a new check-run for every
// transition" approach.
func (c *Client) CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) error {
	c.CountCall()
	_, _, err := c.REST.Checks.CreateCheckRun(ctx, owner, repo, opts)
	if err != nil {
		return fmt.Errorf("create check run %q on %s/%s: %w", opts.Name, owner, repo, err)
	}
	return nil
}

func checkRunStatus(cr *github.CheckRun) checkruns.Status {
	switch cr.GetStatus() {
	case "queued":
		return checkruns.StatusQueued
	case "in_progress":
		return checkruns.StatusInProgress
	}
	switch cr.GetConclusion() {
	case "success", "neutral", "skipped":
		return checkruns.StatusSuccess
	default:
		return checkruns.StatusFailure
	}
}

func statusState(s string) checkruns.Status {
	switch s {
	case "success":
		return checkruns.StatusSuccess
	case "pending":
		return checkruns.StatusQueued
	default:
		return checkruns.StatusFailure
	}
}

// FetchCheckObservations fetches both the check-run list and the legacy
// commit-status list for a commit, mapped to the two Observation slices
// checkruns.Resolve expects (§4.2.4: "same context may appear in both
// sources").
func (c *Client) FetchCheckObservations(ctx context.Context, owner, repo, sha string) (checkRunObs, statusObs []checkruns.Observation, err error) {
	c.CountCall()
	crList, _, err := c.REST.Checks.ListCheckRunsForRef(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("list check runs for %s/%s@%s: %w", owner, repo, sha, err)
	}
	for _, cr := range crList.CheckRuns {
		checkRunObs = append(checkRunObs, checkruns.Observation{
			Context:      cr.GetName(),
			ID:           cr.GetID(),
			State:        checkRunStatus(cr),
			FromCheckRun: true,
		})
	}

	c.CountCall()
	statuses, _, err := c.REST.Repositories.ListStatuses(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("list statuses for %s/%s@%s: %w", owner, repo, sha, err)
	}
	for _, st := range statuses {
		statusObs = append(statusObs, checkruns.Observation{
			Context: st.GetContext(),
			ID:      st.GetID(),
			State:   statusState(st.GetState()),
		})
	}
	return checkRunObs, statusObs, nil
}

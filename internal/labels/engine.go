package labels

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNameTooLong is returned by Add when the label name exceeds
// MaxLabelNameLen.
type ErrNameTooLong struct {
	Name string
}

func (e ErrNameTooLong) Error() string {
	return fmt.Sprintf("labels: name %q exceeds %d characters", e.Name, MaxLabelNameLen)
}

// Mutator is the GitHub-facing surface the label engine drives. It is
// satisfied by a thin adapter over githubclient's REST+GraphQL label
// mutations; kept narrow so the engine's decision logic is unit-testable
// without a network client.
type Mutator interface {
	// FindOrCreateLabel ensures a repository-level label exists with the
	// given color, updating its color if it already exists but differs.
	FindOrCreateLabel(ctx context.Context, owner, repo, name, color string) error
	// AddLabel applies the label to the PR and returns the PR's label set
	// as reported by the mutation response.
	AddLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error)
	// RemoveLabel removes the label from the PR and returns the PR's label
	// set as reported by the mutation response.
	RemoveLabel(ctx context.Context, owner, repo string, number int, name string) ([]string, error)
	// FetchLabels re-fetches the PR's current label set, used only by the
	// consistency poll when the cached view doesn't yet reflect a mutation.
	FetchLabels(ctx context.Context, owner, repo string, number int) ([]string, error)
}

// Engine implements §4.4's add/remove/wait-for-consistency operations.
type Engine struct {
	Mutator   Mutator
	SizeRules []SizeRule
}

func contains(list []string, name string) bool {
	for _, l := range list {
		if l == name {
			return true
		}
	}
	return false
}

// Add implements the "Add" operation: name-length validation, no-op if
// already present, find-or-create the repo-level label with its resolved
// color, apply the mutation, wait for eventual consistency.
func (e *Engine) Add(ctx context.Context, owner, repo string, number int, currentLabels []string, name string) ([]string, error) {
	if len(name) > MaxLabelNameLen {
		return currentLabels, ErrNameTooLong{Name: name}
	}
	if contains(currentLabels, name) {
		return currentLabels, nil
	}
	color := ColorFor(name, e.SizeRules)
	if err := e.Mutator.FindOrCreateLabel(ctx, owner, repo, name, color); err != nil {
		return currentLabels, fmt.Errorf("labels: find-or-create %q: %w", name, err)
	}
	updated, err := e.Mutator.AddLabel(ctx, owner, repo, number, name)
	if err != nil {
		return currentLabels, fmt.Errorf("labels: add %q: %w", name, err)
	}
	if err := e.waitForConsistency(ctx, owner, repo, number, name, true, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// Remove implements the "Remove" operation: no-op if absent, issue the
// remove mutation, wait for eventual consistency with exists=false.
func (e *Engine) Remove(ctx context.Context, owner, repo string, number int, currentLabels []string, name string) ([]string, error) {
	if !contains(currentLabels, name) {
		return currentLabels, nil
	}
	updated, err := e.Mutator.RemoveLabel(ctx, owner, repo, number, name)
	if err != nil {
		return currentLabels, fmt.Errorf("labels: remove %q: %w", name, err)
	}
	if err := e.waitForConsistency(ctx, owner, repo, number, name, false, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// waitForConsistency polls up to 30s total, exponential backoff from 500ms
// capped at 5s, until the cached label list (as last known, then
// re-fetched on mismatch) shows or doesn't show the label as required.
func (e *Engine) waitForConsistency(ctx context.Context, owner, repo string, number int, name string, wantExists bool, cached []string) error {
	if contains(cached, name) == wantExists {
		return nil
	}

	b, err := retry.NewExponential(500 * time.Millisecond)
	if err != nil {
		return err
	}
	b = retry.WithCapped(5*time.Second, b)
	b = retry.WithMaxDuration(30*time.Second, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		current, err := e.Mutator.FetchLabels(ctx, owner, repo, number)
		if err != nil {
			return retry.RetryableError(err)
		}
		if contains(current, name) == wantExists {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("labels: %q consistency not yet observed", name))
	})
}

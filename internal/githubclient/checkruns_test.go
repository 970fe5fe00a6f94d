package githubclient

import (
	"testing"

	"github.com/google/go-github/v75/github"

	"github.com/gh-fleet/webhook-server/internal/checkruns"
)

func TestCheckRunStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		conclusion string
		want       checkruns.Status
	}{
		{"queued", "queued", "", checkruns.StatusQueued},
		{"in_progress", "in_progress", "", checkruns.StatusInProgress},
		{"completed success", "completed", "success", checkruns.StatusSuccess},
		{"completed neutral", "completed", "neutral", checkruns.StatusSuccess},
		{"completed skipped", "completed", "skipped", checkruns.StatusSuccess},
		{"completed failure", "completed", "failure", checkruns.StatusFailure},
		{"completed timed_out", "completed", "timed_out", checkruns.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := &github.CheckRun{Status: github.Ptr(tt.status)}
			if tt.conclusion != "" {
				cr.Conclusion = github.Ptr(tt.conclusion)
			}
			if got := checkRunStatus(cr); got != tt.want {
				t.Errorf("checkRunStatus(status=%q, conclusion=%q) = %v, want %v", tt.status, tt.conclusion, got, tt.want)
			}
		})
	}
}

func TestStatusState(t *testing.T) {
	tests := []struct {
		state string
		want  checkruns.Status
	}{
		{"success", checkruns.StatusSuccess},
		{"pending", checkruns.StatusQueued},
		{"failure", checkruns.StatusFailure},
		{"error", checkruns.StatusFailure},
	}
	for _, tt := range tests {
		if got := statusState(tt.state); got != tt.want {
			t.Errorf("statusState(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

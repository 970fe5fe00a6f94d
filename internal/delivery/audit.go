package delivery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// entry is the on-disk JSONL shape of one audit record (§6 "Audit log
// format"). It's built from a Context at Finish time rather than embedding
// Context directly, so the wire shape stays decoupled from the in-memory
// mutex-guarded struct.
type entry struct {
	HookID             string                 `json:"hook_id"`
	EventType          string                 `json:"event_type"`
	Action             string                 `json:"action"`
	Sender             string                 `json:"sender"`
	Repository         string                 `json:"repository"`
	RepositoryFullName string                 `json:"repository_full_name"`
	PR                 *PRInfo                `json:"pr"`
	APIUser            string                 `json:"api_user"`
	Timing             timing                 `json:"timing"`
	WorkflowSteps      map[string]stepEntry   `json:"workflow_steps"`
	TokenSpend         int64                  `json:"token_spend"`
	InitialRateLimit   int                    `json:"initial_rate_limit"`
	FinalRateLimit     int                    `json:"final_rate_limit"`
	Success            bool                   `json:"success"`
	Error              *ErrorRecord           `json:"error"`
	Summary            string                 `json:"summary,omitempty"`
}

type timing struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

type stepEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Status     StepStatus     `json:"status"`
	DurationMs int64          `json:"duration_ms"`
	Error      *ErrorRecord   `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// toEntry snapshots a Context into its wire shape. Call only after Finish.
func (c *Context) toEntry() entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := make(map[string]stepEntry, len(c.steps))
	for name, s := range c.steps {
		steps[name] = stepEntry{
			Timestamp:  s.StartedAt,
			Status:     s.Status,
			DurationMs: s.DurationMs,
			Error:      s.Error,
			Data:       s.Data,
		}
	}

	return entry{
		HookID:             c.HookID,
		EventType:          c.EventType,
		Action:             c.Action,
		Sender:             c.Sender,
		Repository:         c.Repository,
		RepositoryFullName: c.RepositoryFullName,
		PR:                 c.PR,
		APIUser:            c.APIUser,
		Timing: timing{
			StartedAt:   c.StartedAt,
			CompletedAt: c.CompletedAt,
			DurationMs:  c.CompletedAt.Sub(c.StartedAt).Milliseconds(),
		},
		WorkflowSteps:    steps,
		TokenSpend:       c.TokenSpend,
		InitialRateLimit: c.InitialRateLimit,
		FinalRateLimit:   c.FinalRateLimit,
		Success:          c.Success,
		Error:            c.TopError,
		Summary:          c.Summary,
	}
}

// AuditLog appends one JSONL record per delivery to {dataDir}/logs/webhooks_YYYY-MM-DD.json,
// per §6. Writes are atomic: marshal fully in memory, then append under an
// advisory file lock (gofrs/flock) so concurrent deliveries never
// interleave partial lines.
type AuditLog struct {
	DataDir string
}

// Write serializes the delivery context and appends it to today's (UTC)
// log file, creating the logs directory and file as needed.
func (a *AuditLog) Write(c *Context) error {
	dir := filepath.Join(a.DataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("audit: mkdir %s: %w", dir, err)
	}

	line, err := json.Marshal(c.toEntry())
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	path := filepath.Join(dir, fmt.Sprintf("webhooks_%s.json", time.Now().UTC().Format("2006-01-02")))

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("audit: acquire lock for %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("audit: append to %s: %w", path, err)
	}
	return nil
}

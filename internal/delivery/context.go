// Package delivery implements the per-delivery execution context of spec
// §3: a task-local record of one inbound webhook HTTP request, its
// workflow steps, its GitHub API spend, and the JSONL audit log entry it
// produces on completion. Grounded on the teacher's webhook.Server request
// handling (one goroutine per delivery, logged with slog) generalized with
// an explicit struct instead of ad-hoc slog.Info calls, per §9's "global
// mutable in-flight counters → per-delivery context" redesign flag.
package delivery

import (
	"sync"
	"time"
)

// StepStatus is the lifecycle of a single workflow step within a delivery.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ErrorRecord captures an error the way the audit log wants it: classified
// type, message, and (when available) a traceback/stack string. Never
// carries raw secrets — callers must redact before recording.
type ErrorRecord struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// Step is one named phase of a delivery, e.g. "pr_handler",
// "pr_workflow_setup", "pr_cicd_execution" (§8's literal scenario names).
type Step struct {
	Name       string         `json:"-"`
	Status     StepStatus     `json:"status"`
	StartedAt  time.Time      `json:"timestamp"`
	DurationMs int64          `json:"duration_ms"`
	Error      *ErrorRecord   `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// PRInfo is the optional pull-request identity attached to a delivery.
type PRInfo struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Context is the per-delivery execution record of §3. It is created once
// at the HTTP boundary, passed by reference down the entire async call
// tree for that delivery, and serialized to the audit log on completion.
// It is the ONLY mutable shared state that crosses goroutine boundaries
// within a delivery (§5's shared-resource policy); its own fields are
// guarded by a mutex so concurrent sub-tasks can record steps safely.
type Context struct {
	mu sync.Mutex

	HookID             string         `json:"hook_id"`
	EventType          string         `json:"event_type"`
	Action             string         `json:"action"`
	Sender             string         `json:"sender"`
	Repository         string         `json:"repository"`
	RepositoryFullName string         `json:"repository_full_name"`
	PR                 *PRInfo        `json:"pr"`
	APIUser            string         `json:"api_user"`
	StartedAt          time.Time      `json:"-"`
	CompletedAt        time.Time      `json:"-"`
	steps              map[string]*Step
	stepOrder          []string
	TokenSpend         int64        `json:"token_spend"`
	InitialRateLimit   int          `json:"initial_rate_limit"`
	FinalRateLimit     int          `json:"final_rate_limit"`
	Success            bool         `json:"success"`
	TopError           *ErrorRecord `json:"error,omitempty"`
	Summary            string       `json:"summary,omitempty"`
}

// New creates a delivery context at the HTTP boundary.
func New(hookID, eventType string) *Context {
	return &Context{
		HookID:    hookID,
		EventType: eventType,
		StartedAt: time.Now(),
		steps:     make(map[string]*Step),
		Success:   true,
	}
}

// StartStep records that a named workflow step has begun. Calling it twice
// for the same name resets the step (used by retried commands).
func (c *Context) StartStep(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.steps[name]; !ok {
		c.stepOrder = append(c.stepOrder, name)
	}
	c.steps[name] = &Step{Name: name, Status: StepStarted, StartedAt: time.Now()}
}

// CompleteStep marks a step completed, recording its duration and any
// freeform data (e.g. which labels were touched).
func (c *Context) CompleteStep(name string, data map[string]any) {
	c.finishStep(name, StepCompleted, nil, data)
}

// FailStep marks a step failed with an error record. This does not flip
// Context.Success by itself — callers decide whether a given step's
// failure is critical enough to fail the whole delivery (§7: transient
// sub-task failures are logged, not escalated).
func (c *Context) FailStep(name string, errRec ErrorRecord) {
	c.finishStep(name, StepFailed, &errRec, nil)
}

func (c *Context) finishStep(name string, status StepStatus, errRec *ErrorRecord, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.steps[name]
	if !ok {
		s = &Step{Name: name, StartedAt: time.Now()}
		c.steps[name] = s
		c.stepOrder = append(c.stepOrder, name)
	}
	s.Status = status
	s.DurationMs = time.Since(s.StartedAt).Milliseconds()
	s.Error = errRec
	s.Data = data
}

// Steps returns a snapshot of all recorded steps in the order they began.
func (c *Context) Steps() map[string]Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Step, len(c.steps))
	for _, name := range c.stepOrder {
		out[name] = *c.steps[name]
	}
	return out
}

// SetPR attaches pull-request identity once it's known.
func (c *Context) SetPR(number int, title, author string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PR = &PRInfo{Number: number, Title: title, Author: author}
}

// Fail records the top-level error and flips Success false; used by the
// dispatcher's outermost recover/error path (§7: "any other exception is
// logged, caught, and an audit record with success=false is emitted").
func (c *Context) Fail(errRec ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Success = false
	c.TopError = &errRec
}

// Finish stamps completion time; call exactly once, right before emitting
// the audit record.
func (c *Context) Finish(summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompletedAt = time.Now()
	c.Summary = summary
}

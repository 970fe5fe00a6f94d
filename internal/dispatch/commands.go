package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/prstate"
	"github.com/gh-fleet/webhook-server/internal/redact"
)

// knownCommands is the full §4.5 command table; a line that doesn't match
// one of these (or a static label command) is silently ignored, the same
// as an unrecognized command in a chat client.
var knownCommands = map[string]bool{
	"retest":                   true,
	"reprocess":                true,
	"cherry-pick":              true,
	"assign-reviewers":         true,
	"assign-reviewer":          true,
	"check-can-merge":          true,
	"build-and-push-container": true,
	"add-allowed-user":         true,
	"regenerate-welcome":       true,
}

// staticLabelCommands are the plain label-toggle slash commands of §4.5
// that don't need bespoke handling: `/<name>` adds, `/<name> cancel`
// removes.
var staticLabelCommands = map[string]bool{
	"wip":       true,
	"hold":      true,
	"automerge": true,
	"verified":  true,
	"lgtm":      true,
	"approve":   true,
}

// handleIssueComment implements §4.5: parse every `/command [args]` line
// out of the comment body and run each concurrently, skipping edited/
// deleted comment actions and gating on draft-PR configuration.
func (d *Dispatcher) handleIssueComment(ctx context.Context, dc *delivery.Context, body []byte) Result {
	var v struct {
		Action string `json:"action"`
		Issue  struct {
			Number      int  `json:"number"`
			PullRequest *any `json:"pull_request"`
		} `json:"issue"`
		Comment struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
			User struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Result{Status: 400, Message: "bad payload"}
	}
	rh, err := parseRepoHeader(body)
	if err != nil {
		return Result{Status: 400, Message: "bad payload"}
	}
	dc.Repository = rh.Name
	dc.RepositoryFullName = rh.Owner + "/" + rh.Name
	dc.Sender = rh.Sender
	dc.Action = v.Action

	if v.Action == "edited" || v.Action == "deleted" {
		return Result{Status: 200, Message: "ignored"}
	}
	if v.Issue.PullRequest == nil {
		return Result{Status: 200, Message: "not a pull request comment"}
	}

	commands := parseCommands(v.Comment.Body)
	if len(commands) == 0 {
		return Result{Status: 200, Message: "no commands"}
	}

	clients, _, err := d.buildClients(ctx, rh.InstallationID, d.fleetTokens())
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "client_build_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}
	view, err := clients.token.FetchPRView(ctx, rh.Owner, rh.Name, v.Issue.Number)
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "fetch_pr_view_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}
	dc.SetPR(view.Number, view.Title, view.Author)

	engine, _, err := d.buildEngine(ctx, dc, rh, view)
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "engine_build_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}

	allowOnDraft, draftConfigured := draftAllowList(engine)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string
	for _, cmd := range commands {
		if view.Draft {
			if !draftConfigured {
				continue
			}
			if len(allowOnDraft) > 0 && !contains(allowOnDraft, cmd.Name) {
				_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, view.Number,
					fmt.Sprintf("Command `/%s` is not allowed on draft PRs.\nAllowed commands on draft PRs: %s",
						cmd.Name, strings.Join(allowOnDraft, ", ")))
				continue
			}
		}
		if !knownCommands[cmd.Name] && !staticLabelCommands[cmd.Name] {
			continue
		}
		wg.Add(1)
		go func(cmd slashCommand) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					failed = append(failed, fmt.Sprintf("%s (panic: %v)", cmd.Name, r))
					mu.Unlock()
				}
			}()
			if err := d.runCommand(ctx, engine, clients, rh, v.Comment.ID, v.Comment.User.Login, cmd); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s (%v)", cmd.Name, err))
				mu.Unlock()
			}
		}(cmd)
	}
	wg.Wait()

	if len(failed) > 0 {
		dc.FailStep("issue_comment_handler", delivery.ErrorRecord{
			Type:    "command_error",
			Message: redact.SafeErr(fmt.Errorf("%s", strings.Join(failed, "; "))),
		})
		return Result{Status: 200, Message: "handled with errors"}
	}
	return Result{Status: 200, Message: "ok"}
}

// slashCommand is one `/name [args]` line from a comment body, already
// split on the first space.
type slashCommand struct {
	Name string
	Args string
}

// parseCommands extracts every line of body that starts with "/", per
// §4.5 (one comment may carry several independent commands, one per
// line).
func parseCommands(body string) []slashCommand {
	var out []slashCommand
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "/") {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "/")
		parts := strings.SplitN(trimmed, " ", 2)
		cmd := slashCommand{Name: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			cmd.Args = strings.TrimSpace(parts[1])
		}
		if cmd.Name != "" {
			out = append(out, cmd)
		}
	}
	return out
}

// draftAllowList resolves allow-commands-on-draft-prs: unset or explicit
// null means not configured (every command blocked on a draft PR);
// present-but-empty means every command is allowed; a non-empty list
// names the only commands allowed.
func draftAllowList(e *prstate.Engine) (allowed []string, configured bool) {
	raw, ok := e.Resolver.GetValue("allow-commands-on-draft-prs", nil).([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// runCommand dispatches one parsed command against the engine, honoring
// §4.5's authorization, reaction, and argument-required rules.
func (d *Dispatcher) runCommand(ctx context.Context, e *prstate.Engine, clients *deliveryClients, rh repoHeader, commentID int64, user string, cmd slashCommand) error {
	if cmd.Name == "automerge" {
		if !isApproverOrMaintainer(e, user) {
			_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number,
				"Only maintainers or approvers can set pull request to auto-merge")
			return nil
		}
	}

	requiresArg := cmd.Name == "retest" || cmd.Name == "assign-reviewer" || cmd.Name == "add-allowed-user"
	if requiresArg && cmd.Args == "" {
		_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, cmd.Name+" requires an argument")
		return nil
	}

	if cmd.Name == "reprocess" || cmd.Name == "regenerate-welcome" {
		ok, err := e.Auth.IsUserValidToRunCommands(ctx, clients.token, rh.Owner, rh.Name, e.View.Number, user)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	_ = clients.token.AddReaction(ctx, rh.Owner, rh.Name, commentID, "+1")

	remove := cmd.Args == "cancel"

	switch cmd.Name {
	case "assign-reviewer":
		return e.AssignReviewer(ctx, strings.TrimPrefix(cmd.Args, "@"))

	case "add-allowed-user":
		_, err := clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, cmd.Args+" is now allowed to run commands")
		return err

	case "assign-reviewers":
		return e.AssignReviewers(ctx)

	case "check-can-merge":
		return e.EvaluateCanBeMerged(ctx)

	case "cherry-pick":
		return d.runCherryPickCommand(ctx, e, clients, rh, cmd.Args, user)

	case "retest":
		return d.runRetestCommand(ctx, e, clients, rh, cmd.Args, user)

	case "reprocess":
		return e.Reprocess(ctx)

	case "regenerate-welcome":
		return e.RegenerateWelcome(ctx)

	case "build-and-push-container":
		if e.Resolver.GetContainerConfig() == nil {
			_, err := clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, "No build-and-push-container configured for this repository")
			return err
		}
		return e.BuildAndPushContainer(ctx, nil)

	case "wip":
		return e.ToggleWIP(ctx, remove)

	case "hold":
		if !isApprover(e, user) {
			_, err := clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number,
				fmt.Sprintf("%s is not part of the approver, only approvers can mark pull request with hold", user))
			return err
		}
		return e.ToggleStaticLabel(ctx, "hold", remove)

	case "verified":
		return e.ToggleStaticLabel(ctx, "verified", remove)

	case "automerge":
		return e.ToggleStaticLabel(ctx, "automerge", remove)

	case "lgtm":
		return e.ApplyReviewProjection(ctx, labels.StateLGTM, actionFor(remove), user)

	case "approve":
		return e.ApplyReviewProjection(ctx, labels.StateApprove, actionFor(remove), user)
	}
	return nil
}

// actionFor translates a command's "cancel" modifier into the add/delete
// review-projection action.
func actionFor(remove bool) labels.Action {
	if remove {
		return labels.ActionDelete
	}
	return labels.ActionAdd
}

// isApprover reports whether user is one of this PR's recognized
// approvers (changed-files OWNERS approvers or a root-OWNERS approver).
func isApprover(e *prstate.Engine, user string) bool {
	changed, _ := e.GH.ChangedFiles(context.Background(), e.Owner, e.Repo, e.View.Number)
	for _, a := range e.Owners.ApproversForChangedFiles(changed) {
		if a == user {
			return true
		}
	}
	for _, a := range e.Owners.RootEntry().Approvers {
		if a == user {
			return true
		}
	}
	return false
}

// isApproverOrMaintainer reports whether user may set auto-merge: an
// approver for this PR's changed files, or a repository maintainer.
func isApproverOrMaintainer(e *prstate.Engine, user string) bool {
	if isApprover(e, user) {
		return true
	}
	for _, m := range e.Auth.Maintainers() {
		if m == user {
			return true
		}
	}
	return false
}

func (d *Dispatcher) runCherryPickCommand(ctx context.Context, e *prstate.Engine, clients *deliveryClients, rh repoHeader, args, user string) error {
	targets := strings.Fields(args)
	if len(targets) == 0 {
		return nil
	}
	var existing []string
	var missing []string
	for _, t := range targets {
		if clients.token.BranchExists(ctx, rh.Owner, rh.Name, t) {
			existing = append(existing, t)
		} else {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		var msg strings.Builder
		for _, m := range missing {
			msg.WriteString(fmt.Sprintf("Target branch `%s` does not exist\n", m))
		}
		_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, msg.String())
	}
	if len(existing) == 0 {
		return nil
	}

	if !e.View.Merged {
		_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, fmt.Sprintf(
			"Cherry-pick requested for PR `%s` by user `%s`.\nAdding label(s) for automatic cherry-pick once the PR is merged.",
			e.View.Title, user))
	}

	var firstErr error
	for _, target := range existing {
		if err := e.CherryPickCommand(ctx, target); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) runRetestCommand(ctx context.Context, e *prstate.Engine, clients *deliveryClients, rh repoHeader, args, user string) error {
	ok, err := e.Auth.IsUserValidToRunCommands(ctx, clients.token, rh.Owner, rh.Name, e.View.Number, user)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	targets := strings.Fields(args)
	if len(targets) == 0 {
		_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number, "No test defined to retest")
		return nil
	}
	unknown, err := e.Retest(ctx, targets)
	if len(unknown) > 0 {
		_, _ = clients.token.CreateComment(ctx, rh.Owner, rh.Name, e.View.Number,
			fmt.Sprintf("No %s configured for this repository", strings.Join(unknown, " ")))
	}
	return err
}

package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/labels"
	"github.com/gh-fleet/webhook-server/internal/notify"
	"github.com/gh-fleet/webhook-server/internal/redact"
)

// handlePullRequestReview implements §4.6: on "submitted" only, project
// the review state onto a label, and handle a literal "/approve" in the
// body as an additional approve projection plus an optional background
// test-oracle call.
func (d *Dispatcher) handlePullRequestReview(ctx context.Context, dc *delivery.Context, body []byte) Result {
	var v struct {
		Action string `json:"action"`
		Review struct {
			State string `json:"state"`
			Body  string `json:"body"`
			User  struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"review"`
		PullRequest struct {
			Number  int    `json:"number"`
			HTMLURL string `json:"html_url"`
		} `json:"pull_request"`
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

	if v.Action != "submitted" {
		return Result{Status: 200, Message: "ignored"}
	}

	clients, _, err := d.buildClients(ctx, rh.InstallationID, d.fleetTokens())
	if err != nil {
		dc.Fail(delivery.ErrorRecord{Type: "client_build_error", Message: redact.SafeErr(err)})
		return Result{Status: 500, Message: "internal error"}
	}
	view, err := clients.token.FetchPRView(ctx, rh.Owner, rh.Name, v.PullRequest.Number)
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

	state := labels.ReviewState(v.Review.State)
	user := v.Review.User.Login
	if err := engine.ApplyReviewProjection(ctx, state, labels.ActionAdd, user); err != nil {
		dc.FailStep("pr_review", delivery.ErrorRecord{Type: "review_projection_error", Message: redact.SafeErr(err)})
	}

	if strings.TrimSpace(v.Review.Body) == "/approve" {
		if err := engine.ApplyReviewProjection(ctx, labels.StateApprove, labels.ActionAdd, user); err != nil {
			dc.FailStep("pr_review_approve_command", delivery.ErrorRecord{Type: "review_projection_error", Message: redact.SafeErr(err)})
		}
		if oracle := engine.Resolver.GetTestOracleConfig(); oracle != nil && oracle.ServerURL != "" {
			go notify.TestOracle(context.Background(), oracle.ServerURL, notify.TestOracleRequest{
				PullRequestURL: v.PullRequest.HTMLURL,
				AIProvider:     oracle.AIProvider,
				AIModel:        oracle.AIModel,
			})
		}
	}

	return Result{Status: 200, Message: "ok"}
}

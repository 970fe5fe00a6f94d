// Package processor adapts the SQS ingest worker's envelope shape onto the
// same admission pipeline the HTTP front end uses. It carries no GitHub
// logic of its own any more: cherry-pick, labeling, and every other §4
// operation now live behind dispatch.Dispatcher, reached uniformly whether
// a delivery arrived over HTTP or through the queue.
package processor

import (
	"context"
	"net/http"

	"github.com/gh-fleet/webhook-server/internal/dispatch"
	"github.com/gh-fleet/webhook-server/internal/queue"
	sqsingest "github.com/gh-fleet/webhook-server/internal/ingest/sqs"
)

// Processor implements sqs.Worker's Handler by unwrapping the queue
// envelope and delegating to a shared Dispatcher.
type Processor struct {
	Dispatcher *dispatch.Dispatcher
}

var _ sqsingest.Handler = (*Processor)(nil)

// HandleFromEnvelope parses the envelope's flattened headers and body via
// queue.ParseSQSBody, verifies the signature, and runs the full delivery
// pipeline. The HTTP status it returns drives the SQS worker's
// delete/retry decision (§ ingest policy): 2xx deletes, 4xx deletes only
// when configured to, 5xx/unknown leaves the message for redelivery.
func (p *Processor) HandleFromEnvelope(ctx context.Context, env sqsingest.APIGWEnvelope) (int, error) {
	payload := []byte(env.Body)
	event := env.Headers["X-GitHub-Event"]
	deliveryID := env.Headers["X-GitHub-Delivery"]
	if event == "" {
		ev, _, detected, err := queue.ParseSQSBody(payload)
		if err != nil {
			return http.StatusBadRequest, err
		}
		event, payload = ev, detected
	}

	sig := env.Headers["X-Hub-Signature-256"]
	if !p.Dispatcher.VerifySignature(sig, payload) {
		return http.StatusUnauthorized, errSignatureMismatch
	}

	res := p.Dispatcher.HandleDelivery(ctx, event, deliveryID, payload)
	return res.Status, nil
}

var errSignatureMismatch = httpError("processor: signature mismatch")

type httpError string

func (e httpError) Error() string { return string(e) }

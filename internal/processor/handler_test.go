package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gh-fleet/webhook-server/internal/dispatch"
	sqsingest "github.com/gh-fleet/webhook-server/internal/ingest/sqs"
)

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleFromEnvelope_PingRoundTrips(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"zen":"hi"}`)
	p := &Processor{Dispatcher: &dispatch.Dispatcher{WebhookSecret: secret}}

	env := sqsingest.APIGWEnvelope{
		Headers: map[string]string{
			"X-GitHub-Event":      "ping",
			"X-GitHub-Delivery":   "d-1",
			"X-Hub-Signature-256": sign(secret, body),
		},
		Body: string(body),
	}

	code, err := p.HandleFromEnvelope(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
}

func TestHandleFromEnvelope_BadSignatureRejected(t *testing.T) {
	p := &Processor{Dispatcher: &dispatch.Dispatcher{WebhookSecret: []byte("s3cr3t")}}
	env := sqsingest.APIGWEnvelope{
		Headers: map[string]string{
			"X-GitHub-Event":      "ping",
			"X-Hub-Signature-256": "sha256=deadbeef",
		},
		Body: `{"zen":"hi"}`,
	}

	code, err := p.HandleFromEnvelope(context.Background(), env)
	if err == nil {
		t.Fatal("expected signature mismatch error")
	}
	if code != 401 {
		t.Fatalf("status = %d, want 401", code)
	}
	if !strings.Contains(err.Error(), "signature mismatch") {
		t.Fatalf("err = %v, want signature mismatch", err)
	}
}

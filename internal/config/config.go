package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the process-bootstrap (tier-0) configuration: secrets and bind
// options that must come from the environment because they're needed
// before any repository or its fleet config.yaml can be read. The
// per-repository/per-fleet tiers are resolved separately by Resolver
// (resolve.go) on every delivery.
type Config struct {
	AppID         int64
	WebhookSecret []byte
	PrivateKeyPEM []byte // decoded PEM
	ListenPort    string // ":8080"
	WebhookPath   string // "/webhook_server"

	// Optional Git actor
	GitUserName  string // "webhook-bot"
	GitUserEmail string // "webhook-bot@users.noreply.github.com"

	VerifyGitHubIPs    bool
	VerifyCloudflareIP bool
	DataDir            string // audit log root, {data_dir}/logs/webhooks_YYYY-MM-DD.json
	FleetConfigPath    string // central config.yaml

	// AWS/SQS: optional secondary ingest path (§ domain stack). Only wired
	// up when SQS_QUEUE_URL is set; the HTTP dispatcher works without it.
	AWSRegion             string
	SQSQueueURL           string
	SQSMaxMessages        int32
	SQSWaitTimeSeconds    int32
	SQSVisibilityTimeout  int32
	SQSDeleteOn4xx        bool
	SQSExtendOnProcessing bool

	// Processing
	CherryTimeoutSeconds int // max time to process one merged PR (incl. git ops)
}

func Load() (*Config, error) {
	appIDStr := os.Getenv("GITHUB_APP_ID")
	secret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	pemB64 := os.Getenv("GITHUB_APP_PRIVATE_KEY_PEM_BASE64")
	listenPort := envOr("LISTEN_PORT", ":8080")

	if appIDStr == "" || secret == "" || pemB64 == "" {
		return nil, errors.New("GITHUB_APP_ID, GITHUB_WEBHOOK_SECRET, GITHUB_APP_PRIVATE_KEY_PEM_BASE64 are required")
	}
	var appID int64
	_, err := fmt.Sscan(appIDStr, &appID)
	if err != nil {
		return nil, err
	}

	pem, err := base64.StdEncoding.DecodeString(pemB64)
	if err != nil {
		return nil, err
	}

	return &Config{
		AppID:              appID,
		WebhookSecret:      []byte(secret),
		PrivateKeyPEM:      pem,
		ListenPort:         listenPort,
		WebhookPath:        envOr("WEBHOOK_PATH", "/webhook_server"),
		GitUserName:        envOr("GIT_USER_NAME", "webhook-bot"),
		GitUserEmail:       envOr("GIT_USER_EMAIL", "webhook-bot@users.noreply.github.com"),
		VerifyGitHubIPs:    envOrBool("VERIFY_GITHUB_IPS", false),
		VerifyCloudflareIP: envOrBool("VERIFY_CLOUDFLARE_IPS", false),
		DataDir:            envOr("DATA_DIR", "./data"),
		FleetConfigPath:    envOr("FLEET_CONFIG_PATH", "./config.yaml"),

		// AWS/SQS defaults; only consulted when SQS_QUEUE_URL is set.
		AWSRegion:             envOr("AWS_REGION", "eu-north-1"),
		SQSQueueURL:           os.Getenv("SQS_QUEUE_URL"),
		SQSMaxMessages:        int32(envOrInt("SQS_MAX_MESSAGES", 10)),
		SQSWaitTimeSeconds:    int32(envOrInt("SQS_WAIT_TIME_SECONDS", 10)),
		SQSVisibilityTimeout:  int32(envOrInt("SQS_VISIBILITY_TIMEOUT", 120)),
		SQSDeleteOn4xx:        envOrBool("SQS_DELETE_ON_4XX", true),
		SQSExtendOnProcessing: envOrBool("SQS_EXTEND_ON_PROCESSING", false),

		// Give slow repos enough time; make it easy to override
		CherryTimeoutSeconds: envOrInt("CHERRY_TIMEOUT_SECONDS", 600),
	}, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envOrInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return def
}

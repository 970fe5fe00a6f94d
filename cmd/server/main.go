package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/gh-fleet/webhook-server/internal/config"
	"github.com/gh-fleet/webhook-server/internal/delivery"
	"github.com/gh-fleet/webhook-server/internal/dispatch"
	"github.com/gh-fleet/webhook-server/internal/ingest/sqs"
	"github.com/gh-fleet/webhook-server/internal/processor"
)

func main() {
	_ = godotenv.Load() // ok if no .env

	// Structured JSON logs; control with LOG_LEVEL=debug|info|warn|error
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var fleet *config.FleetConfig
	var fleetYAML []byte
	if b, err := os.ReadFile(cfg.FleetConfigPath); err == nil {
		fleetYAML = b
		if fc, err := config.LoadFleetConfig(cfg.FleetConfigPath); err == nil {
			fleet = fc
		} else {
			slog.Warn("config.fleet_parse_error", "path", cfg.FleetConfigPath, "err", err)
		}
	} else {
		slog.Info("config.fleet_not_found", "path", cfg.FleetConfigPath)
	}

	ips := &dispatch.IPAllowList{}
	if err := ips.Load(cfg.VerifyGitHubIPs, cfg.VerifyCloudflareIP); err != nil {
		slog.Warn("dispatch.ip_allowlist_load_error", "err", err)
	}

	d := &dispatch.Dispatcher{
		AppID:         cfg.AppID,
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		WebhookSecret: cfg.WebhookSecret,
		GitUserName:   cfg.GitUserName,
		GitUserEmail:  cfg.GitUserEmail,
		Fleet:         fleet,
		FleetYAML:     fleetYAML,
		Audit:         &delivery.AuditLog{DataDir: cfg.DataDir},
		IPs:           ips,
	}

	// SQS worker: an optional secondary ingest path. The webhook POST route
	// below is the primary front end; processor.Processor just adapts a
	// queue.Envelope into the same Dispatcher.HandleDelivery call.
	var worker *sqs.Worker
	if cfg.SQSQueueURL != "" {
		awsCfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("load AWS config: %v", err)
		}
		worker = &sqs.Worker{
			Client:             awssqs.NewFromConfig(awsCfg),
			QueueURL:           cfg.SQSQueueURL,
			MaxMessages:        cfg.SQSMaxMessages,
			WaitTimeSeconds:    cfg.SQSWaitTimeSeconds,
			VisibilityTimeout:  cfg.SQSVisibilityTimeout,
			DeleteOn4xx:        cfg.SQSDeleteOn4xx,
			ExtendOnProcessing: cfg.SQSExtendOnProcessing,
			Processor:          &processor.Processor{Dispatcher: d},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc(cfg.WebhookPath, webhookHandler(d, ips))

	srv := &http.Server{
		Addr:              cfg.ListenPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("sqs.worker.exit", "err", err)
				_ = srv.Shutdown(context.Background())
			}
		}()
	}

	go func() {
		slog.Info("server.start", "addr", cfg.ListenPort, "webhook_path", cfg.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server.error", "err", err)
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	slog.Info("shutdown.begin")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server.shutdown.error", "err", err)
	}
	slog.Info("shutdown.complete")
}

// webhookHandler implements §4.1's HTTP admission steps 1-2 (IP allow-list,
// signature verification) before handing the body to the shared dispatcher;
// steps 3 onward live in dispatch.Dispatcher.HandleDelivery.
func webhookHandler(d *dispatch.Dispatcher, ips *dispatch.IPAllowList) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !ips.Allowed(clientIP(r)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if !d.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		event := r.Header.Get("X-GitHub-Event")
		deliveryID := r.Header.Get("X-GitHub-Delivery")
		if deliveryID == "" {
			deliveryID = uuid.NewString()
		}

		res := d.HandleDelivery(r.Context(), event, deliveryID, body)
		w.WriteHeader(res.Status)
		_, _ = w.Write([]byte(res.Message))
	}
}

// clientIP extracts the request's peer address, preferring the first hop
// of X-Forwarded-For when present (the IP allow-list runs behind GitHub's
// own infrastructure, not a trusted internal proxy, so this is best-effort
// rather than a security boundary on its own).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

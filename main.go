// Package main implements a Cloud Run service that matches housing listings
// against student alerts and sends email notifications.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"unihousing-notifier/alert"
	"unihousing-notifier/city"
	"unihousing-notifier/email"
	"unihousing-notifier/feed"
	"unihousing-notifier/match"
	"unihousing-notifier/server"
	"unihousing-notifier/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	project := os.Getenv("FIRESTORE_PROJECT")
	localStorage := os.Getenv("LOCAL_STORAGE")
	baseURL := os.Getenv("BASE_URL")
	fromAddr := os.Getenv("FROM_ADDRESS")
	if fromAddr == "" {
		fromAddr = "alerts@localhost"
	}

	// Default to local development mode if no Firestore project specified.
	if project == "" && localStorage == "" {
		localStorage = "./data"
		logger.Info("No FIRESTORE_PROJECT set, defaulting to local development mode", "storage_path", localStorage)
	}

	var st *store.Store
	if localStorage != "" {
		logger.Info("Running in local development mode", "storage_path", localStorage)
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		if err := os.MkdirAll(localStorage, 0o700); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
		st = store.New(nil, localStorage, logger)
	} else {
		if baseURL == "" {
			logger.Error("BASE_URL environment variable required (e.g., https://your-service.run.app)")
			os.Exit(1)
		}
		client, err := firestore.NewClient(ctx, project)
		if err != nil {
			logger.Error("Failed to initialize Firestore client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close Firestore client", "error", err)
			}
		}()
		st = store.New(client, "", logger)
	}

	canon := city.New()
	loadCityAliases(ctx, canon, logger)

	provider := newProvider(ctx, logger, fromAddr)
	sender := email.New(provider, st, st, logger, baseURL, fromAddr)

	matcher := match.New(canon, match.MatchIfMissing)
	pipeline := match.NewPipeline(matcher, st, logger)
	manager := alert.New(st, pipeline, sender, logger)

	listener := feed.New(st, st, pipeline, sender, logger)
	if err := listener.Start(ctx); err != nil {
		logger.Error("Failed to start change-feed listener", "error", err)
		os.Exit(1)
	}
	go superviseFeed(ctx, listener, logger)

	srv := server.New(&server.Config{
		Manager:    manager,
		Feed:       listener,
		Logger:     logger,
		IsNotFound: store.IsNotFound,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	err := srv.Serve(ctx, port)
	listener.Stop()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// superviseFeed restarts the change-feed listener when the underlying stream
// dies. The ledger makes the replayed catch-up harmless.
func superviseFeed(ctx context.Context, listener *feed.Listener, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if listener.IsRunning() {
			continue
		}
		logger.Warn("Change-feed listener not running, restarting")
		if err := listener.Start(ctx); err != nil {
			logger.Warn("Change-feed listener restart failed", "error", err)
		}
	}
}

// loadCityAliases overlays the embedded alias table with the curated one from
// Cloud Storage when configured. A load failure is survivable; the embedded
// table keeps matching working.
func loadCityAliases(ctx context.Context, canon *city.Canonicalizer, logger *slog.Logger) {
	bucket := os.Getenv("CITY_ALIAS_BUCKET")
	if bucket == "" {
		return
	}
	object := os.Getenv("CITY_ALIAS_OBJECT")
	if object == "" {
		object = "aliases.json"
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		logger.Warn("Failed to initialize Storage client, using embedded city aliases", "error", err)
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}()

	if err := canon.LoadBucket(ctx, client, bucket, object, logger); err != nil {
		logger.Warn("Failed to load city aliases from bucket, using embedded table",
			"bucket", bucket,
			"object", object,
			"error", err)
	}
}

// newProvider picks the email backend: Brevo when an API key is configured,
// Gmail when credentials are available, otherwise the logging mock.
func newProvider(ctx context.Context, logger *slog.Logger, fromAddr string) email.Provider {
	if key := os.Getenv("BREVO_API_KEY"); key != "" {
		logger.Info("Using Brevo email provider", "from", fromAddr)
		return email.NewBrevoProvider(key, fromAddr, "UniHousing Alerts", logger)
	}

	service, err := initGmailService(ctx)
	if err != nil {
		logger.Info("Mock email mode enabled", "reason", err)
		return email.NewMockProvider(logger)
	}
	logger.Info("Using Gmail email provider")
	return email.NewGmailProvider(service, logger)
}

// isCloudRun checks if we're running in a GCP environment by querying the
// metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Explicit credentials first, for local development.
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// On Cloud Run the service account provides Application Default
	// Credentials; it needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

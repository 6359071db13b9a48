// Wortschatzd is a local German vocabulary tutor daemon.
//
// This binary starts the wortschatzd HTTP server with full service
// initialization: the generative-AI tutor gateway, the notebook store,
// and the view controller.
//
// Configuration is loaded from ~/.config/wortschatz/config.yaml and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	GEMINI_API_KEY=... wortschatzd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 TUTOR_API_KEY=... wortschatzd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/app"
	"github.com/fyrsmithlabs/wortschatz/internal/config"
	"github.com/fyrsmithlabs/wortschatz/internal/http"
	"github.com/fyrsmithlabs/wortschatz/internal/logging"
	"github.com/fyrsmithlabs/wortschatz/internal/notebook"
	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ~/.config/wortschatz/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  wortschatzd           Start the wortschatz daemon\n")
			fmt.Fprintf(os.Stderr, "  wortschatzd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("wortschatzd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the wortschatz daemon and blocks until the context is
// cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Connect the generative-AI backend
//  4. Open the notebook store
//  5. Wire the view controller
//  6. Start the HTTP server
//  7. Perform graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting wortschatzd",
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.Tutor.APIKey.Value()),
		googleai.WithDefaultModel(cfg.Tutor.AnalysisModel),
	)
	if err != nil {
		return fmt.Errorf("failed to connect generative-AI backend: %w", err)
	}

	gateway, err := tutor.NewGateway(model, tutor.Config{
		AnalysisModel:  cfg.Tutor.AnalysisModel,
		ChatModel:      cfg.Tutor.ChatModel,
		ImageModel:     cfg.Tutor.ImageModel,
		SpeechModel:    cfg.Tutor.SpeechModel,
		MediaBaseURL:   cfg.Tutor.MediaBaseURL,
		APIKey:         cfg.Tutor.APIKey.Value(),
		RequestTimeout: cfg.Tutor.RequestTimeout.Duration(),
	}, logger.Named("tutor"))
	if err != nil {
		return fmt.Errorf("failed to create tutor gateway: %w", err)
	}

	store, err := notebook.NewStore(cfg.Storage.DataDir, logger.Named("notebook"))
	if err != nil {
		return fmt.Errorf("failed to open notebook store: %w", err)
	}
	logger.Info("Notebook store ready",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("saved_words", store.Count()))

	controller, err := app.NewController(gateway, store, logger.Named("app"))
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer controller.Close()

	srv, err := http.NewServer(controller, logger.Named("http"), &http.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	return nil
}

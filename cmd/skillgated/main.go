// Skillgated is the trust-and-rollout control plane daemon for
// self-modifying agent skills.
//
// It serves the promotion gate evaluator over HTTP: shadow outcomes
// are recorded against candidate skills, gate evaluations decide
// promotion, and every decision leaves a persisted evidence bundle.
//
// Usage:
//
//	# Start with defaults
//	skillgated
//
//	# Start with a config file
//	skillgated -config /etc/skillgate/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=9180 skillgated
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/breaker"
	"github.com/fyrsmithlabs/skillgate/internal/config"
	"github.com/fyrsmithlabs/skillgate/internal/httpapi"
	"github.com/fyrsmithlabs/skillgate/internal/logging"
	"github.com/fyrsmithlabs/skillgate/internal/promotion"
	"github.com/fyrsmithlabs/skillgate/internal/registry"
	"github.com/fyrsmithlabs/skillgate/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  skillgated           Start the skillgate daemon\n")
			fmt.Fprintf(os.Stderr, "  skillgated version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("skillgated by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
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

	logger.Info("Starting skillgated",
		zap.Int("port", cfg.Server.Port),
		zap.String("state_path", cfg.State.Path),
		zap.String("evidence_dir", cfg.Evidence.Dir))

	tel, err := telemetry.New(ctx, cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, configPath, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	evaluator, err := initEvaluator(cfg, deps, logger)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(evaluator, deps.store, deps.evidence, deps.breaker, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	if err := deps.policies.Start(ctx); err != nil {
		logger.Warn("policy watcher failed to start, using last loaded policy", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// dependencies holds infrastructure wiring shared by the services.
type dependencies struct {
	store     *promotion.Store
	evidence  *promotion.FileEvidenceStore
	sinks     promotion.EvidenceSink
	policies  *config.PolicyWatcher
	breaker   *breaker.Breaker
	manifests map[string]*registry.Manifest
	natsConn  *nats.Conn
	logger    *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.policies != nil {
		d.policies.Stop()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

func initDependencies(cfg *config.Config, configPath string, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{
		store:   promotion.NewStore(cfg.State.Path, logger),
		breaker: breaker.New(breaker.FromConfig(cfg.Guard.Breaker), logger),
		logger:  logger,
	}

	manifests, err := registry.LoadManifestDir(cfg.Manifests.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill manifests: %w", err)
	}
	deps.manifests = manifests
	logger.Info("Skill manifests loaded",
		zap.String("dir", cfg.Manifests.Dir),
		zap.Int("count", len(manifests)))

	watcher, err := config.NewPolicyWatcher(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy watcher: %w", err)
	}
	deps.policies = watcher

	deps.evidence = promotion.NewFileEvidenceStore(cfg.Evidence.Dir)
	sinks := promotion.MultiSink{deps.evidence}

	if cfg.Observability.NATSURL != "" && cfg.Evidence.NATSSubject != "" {
		nc, err := nats.Connect(cfg.Observability.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			// Evidence publishing is best-effort; the file store alone
			// still satisfies persistence.
			logger.Warn("failed to connect to NATS, evidence publishing disabled",
				zap.String("url", cfg.Observability.NATSURL),
				zap.Error(err))
		} else {
			deps.natsConn = nc
			sinks = append(sinks, promotion.NewNATSEvidencePublisher(nc, cfg.Evidence.NATSSubject, logger))
			logger.Info("Connected to NATS", zap.String("url", cfg.Observability.NATSURL))
		}
	}
	deps.sinks = sinks

	return deps, nil
}

func initEvaluator(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*promotion.Evaluator, error) {
	governance := promotion.NewManifestGovernance(deps.manifests, logger)
	tests := promotion.NewCommandTestRunner(cfg.Tests, logger)

	opts := []promotion.EvaluatorOption{
		promotion.WithSkipTests(cfg.Tests.Skip),
	}
	evaluator, err := promotion.NewEvaluator(deps.store, deps.policies, governance, tests, deps.sinks, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}
	return evaluator, nil
}

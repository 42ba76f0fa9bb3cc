package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/diagram"
	"github.com/soteldo/umbra/internal/engine"
	"github.com/soteldo/umbra/internal/expressions"
	"github.com/soteldo/umbra/internal/logging"
	"github.com/soteldo/umbra/internal/nodes"
	"github.com/soteldo/umbra/internal/scheduler"
	"github.com/soteldo/umbra/internal/secrets"
	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/internal/streaming"
	"github.com/soteldo/umbra/internal/validation"
	"github.com/soteldo/umbra/pkg/schema"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			printVersion()
			return
		case "diagram":
			if err := runDiagram(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, "umbra:", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "umbra:", err)
		os.Exit(1)
	}
}

// runDiagram prints a workflow graph file as a Mermaid flowchart.
func runDiagram(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: umbra diagram <workflow.json>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var graph schema.WorkflowGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return fmt.Errorf("parse workflow graph: %w", err)
	}
	fmt.Print(diagram.RenderMermaid(&graph))
	return nil
}

func run() error {
	cfg := loadConfig()

	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}),
	))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	launcher := browser.NewLauncher(cfg.ProfileDataDir, cfg.ChromiumPath, cfg.Headless)
	if err := launcher.Initialize(); err != nil {
		return fmt.Errorf("initialize browser launcher: %w", err)
	}
	defer launcher.Stop()

	registry := browser.NewSessionRegistry(st, logger)

	nodeRegistry, err := nodes.NewDefaultRegistry(nodes.ServiceConfig{
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
		SMTPUser: cfg.SMTPUser,
		SMTPPass: cfg.SMTPPass,
		SMTPFrom: cfg.SMTPFrom,
	})
	if err != nil {
		return fmt.Errorf("build node registry: %w", err)
	}

	validator, err := validation.NewGraphValidator()
	if err != nil {
		return fmt.Errorf("compile graph validator: %w", err)
	}

	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()
	interp := engine.NewInterpreter(nodeRegistry, logger)
	orch := engine.NewOrchestrator(st, launcher, registry, interp, exprEngine, jqEngine, validator, logger)
	orch.SetDefaultConcurrency(cfg.PoolSize)
	orch.SetEventHub(streaming.NewMemoryHub())

	if cfg.VaultPassphrase != "" {
		vault, verr := secrets.NewCipher(secrets.Config{
			Passphrase: cfg.VaultPassphrase,
			Salt:       []byte(cfg.VaultSalt),
		})
		if verr != nil {
			return fmt.Errorf("configure credential vault: %w", verr)
		}
		orch.SetVault(vault)
	}

	sched := scheduler.NewScheduler(st, orch, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("failed to recover missed scheduled runs", slog.String("error", err.Error()))
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("umbra engine started",
		slog.String("db_path", cfg.DBPath),
		slog.String("profile_data_dir", cfg.ProfileDataDir),
		slog.Bool("headless", cfg.Headless),
		slog.Int("pool_size", cfg.PoolSize),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler stop failed", slog.String("error", err.Error()))
	}

	// The signal context is already cancelled; give the sweep its own deadline.
	sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := registry.CloseAll(sweepCtx); err != nil {
		logger.Warn("session sweep failed", slog.String("error", err.Error()))
	}

	logger.Info("umbra engine stopped")
	return nil
}

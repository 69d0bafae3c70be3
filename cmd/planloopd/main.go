// planloopd is the plan review coordination daemon. It serves the
// browser-facing HTTP API with event streams, and the agent-facing
// tool surface over stdio or HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/roasbeef/planloop/internal/activity"
	"github.com/roasbeef/planloop/internal/build"
	"github.com/roasbeef/planloop/internal/bus"
	"github.com/roasbeef/planloop/internal/mcp"
	"github.com/roasbeef/planloop/internal/review"
	"github.com/roasbeef/planloop/internal/store"
	"github.com/roasbeef/planloop/internal/web"
)

var (
	// dataDir is the root of the persisted review records.
	dataDir string

	// port is the preferred HTTP listen port.
	port int

	// transport selects the agent channel carrier: stdio or http.
	transport string

	// idleTimeout shuts the daemon down after this long without
	// traffic.
	idleTimeout time.Duration

	// projectPath is the default project namespace for new reviews.
	projectPath string

	// noActivityLog disables the SQLite audit log.
	noActivityLog bool

	// verbose enables debug logging.
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "planloopd",
	Short: "Plan review coordination daemon",
	Long: `planloopd coordinates human review of agent-authored plans.

It persists reviews as versioned documents, serves a JSON API with
server-sent event streams for the browser, and exposes the blocking
ask_questions tool plus review resources to the agent over stdio
(default) or a single /mcp HTTP endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(
		&dataDir, "data-dir", "",
		"Review data directory (default: ~/.planloop)",
	)
	rootCmd.Flags().IntVar(
		&port, "port", web.DefaultPort,
		"Preferred HTTP port; falls back to an ephemeral port when taken",
	)
	rootCmd.Flags().StringVar(
		&transport, "transport", "stdio",
		"Agent transport: stdio or http",
	)
	rootCmd.Flags().DurationVar(
		&idleTimeout, "idle-timeout", web.DefaultIdleTimeout,
		"Shut down after this long without traffic (0 disables)",
	)
	rootCmd.Flags().StringVar(
		&projectPath, "project", "",
		"Default project path for reviews created without one",
	)
	rootCmd.Flags().BoolVar(
		&noActivityLog, "no-activity-log", false,
		"Disable the SQLite activity audit log",
	)
	rootCmd.Flags().BoolVarP(
		&verbose, "verbose", "v", false,
		"Enable debug logging",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveDataDir expands the default data directory under the user's
// home when no explicit one is given.
func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".planloop"), nil
}

func run(ctx context.Context) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q", transport)
	}

	root, err := resolveDataDir()
	if err != nil {
		return err
	}

	// Console logs go to stderr: in stdio mode stdout belongs to the
	// agent channel and the ready line. A rotating debug log lands in
	// the data directory.
	logWriter, err := build.NewRotatingLogWriter(filepath.Join(root, "logs"))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logWriter.Close()

	logger := build.NewLogger(os.Stderr, logWriter, verbose)
	slog.SetDefault(logger)

	fileStore, err := store.NewFileStore(root, logger)
	if err != nil {
		return fmt.Errorf("open review store: %w", err)
	}

	var recorder review.ActivityRecorder
	var activityStore *activity.Store
	if !noActivityLog {
		activityStore, err = activity.Open(
			filepath.Join(root, "activity.db"), logger,
		)
		if err != nil {
			return fmt.Errorf("open activity log: %w", err)
		}
		defer activityStore.Close()
		recorder = activityStore
	}

	eventBus := bus.New(logger)
	engine := review.NewEngine(fileStore, eventBus, recorder, logger)
	svc := review.NewService(engine, logger)
	mcpServer := mcp.NewServer(svc, eventBus, logger)

	webCfg := web.DefaultConfig()
	webCfg.Port = port
	webCfg.IdleTimeout = idleTimeout
	webCfg.DefaultProjectPath = projectPath
	if transport == "http" {
		webCfg.MCPHandler = mcpServer.HTTPHandler()
	}

	webServer := web.NewServer(webCfg, svc, eventBus, activityStore, logger)
	if err := webServer.Start(); err != nil {
		return fmt.Errorf("start web server: %w", err)
	}

	// Process contract: the first stdout line announces readiness and
	// the bound port to the spawning interceptor.
	ready, err := json.Marshal(map[string]any{
		"status": "ready",
		"port":   webServer.Port(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(ready))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down on signal", "signal", sig)
			cancel()
		case <-webServer.Idle():
			logger.Info("shutting down after idle timeout")
			cancel()
		case <-ctx.Done():
		}
	}()

	if transport == "stdio" {
		logger.Info("serving agent channel on stdio",
			"port", webServer.Port())

		err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp server: %w", err)
		}
	} else {
		logger.Info("serving agent channel on /mcp",
			"port", webServer.Port())
		<-ctx.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("web server shutdown", "err", err)
	}

	logger.Info("shutdown complete")

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/claritydesk/internal/api"
	"github.com/kalambet/claritydesk/internal/config"
	"github.com/kalambet/claritydesk/internal/connectivity"
	"github.com/kalambet/claritydesk/internal/generation"
	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
	"github.com/kalambet/claritydesk/internal/storage"
	"github.com/kalambet/claritydesk/internal/syncer"
)

const (
	shutdownTimeout = 5 * time.Second

	// maxConns caps concurrent API connections; each may hold a slow generation call.
	maxConns = 32

	readHeaderTimeout = 10 * time.Second

	// readTimeout covers intake bodies with inlined photos.
	readTimeout = time.Minute

	// writeTimeout spans a generation call or a queue sync. A sync that
	// outlives it still finishes; only the response is lost.
	writeTimeout = 5 * time.Minute

	idleTimeout = 2 * time.Minute
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the claritydesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running claritydesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, connectivity and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "claritydesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "claritydesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	probeEvery, syncEvery, err := intervals(cfg)
	if err != nil {
		return err
	}

	apiToken, err := config.GetAPIToken(config.NewSecrets())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("claritydesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("claritydesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	if versions, err := kv.AppliedMigrations(); err == nil {
		slog.Debug("storage ready", "dir", cfg.Storage.DataDir, "migrations", versions)
	}
	store := records.NewStore(kv)
	store.Load()

	model, err := generation.NewModel(ctx, generation.Provider(cfg.Generation.Provider), cfg.APIKey(), cfg.Generation.Model)
	if err != nil {
		return fmt.Errorf("creating %s model: %w", cfg.Generation.Provider, err)
	}
	gen := generation.NewClient(model, generation.WithRateLimit(cfg.Generation.RateLimit, 2))
	defer gen.Close()
	slog.Info("generation backend ready", "provider", cfg.Generation.Provider, "model", model.Name())

	var (
		monitor connectivity.Monitor
		prober  *connectivity.Prober
	)
	if cfg.Connectivity.ForceOffline {
		monitor = connectivity.NewStatic(false)
		slog.Warn("connectivity forced offline, requests will be queued")
	} else {
		prober = connectivity.NewProber(cfg.Connectivity.ProbeURL, probeEvery)
		monitor = prober
	}

	orch := orchestrator.New(store, gen, monitor)
	worker := syncer.NewWorker(orch, monitor, syncEvery)

	handler := api.NewAppHandler(api.AppDeps{
		Service: orch,
		Token:   apiToken,
		Metrics: promhttp.Handler(),

		BaseContext: ctx,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := newHTTPServer(ctx, addr, handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "claritydesk listening on %s\n", addr)
		if err := srv.Serve(netutil.LimitListener(ln, maxConns)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if prober != nil {
		g.Go(func() error { return prober.Run(gctx) })
	}

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Service: orch, Version: version, BaseContext: ctx})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func intervals(cfg config.Config) (probeEvery, syncEvery time.Duration, err error) {
	if probeEvery, err = cfg.ProbeEvery(); err != nil {
		return 0, 0, err
	}
	if syncEvery, err = cfg.SyncEvery(); err != nil {
		return 0, 0, err
	}
	return probeEvery, syncEvery, nil
}

// newHTTPServer builds the API server. Request contexts derive from ctx.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("claritydesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop claritydesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to claritydesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printQueueStatus(ctx, client)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Generation.Provider)
	if cfg.Generation.Model != "" {
		printStatus("Model", "%s", cfg.Generation.Model)
	}
	if cfg.Connectivity.ForceOffline {
		printStatus("Connectivity", "forced offline")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printQueueStatus(ctx context.Context, client *apiClient) {
	resp, err := client.get(ctx, "/status")
	if err != nil {
		return
	}
	var st api.StatusResponse
	if err := decodeJSON(resp, &st); err != nil {
		printStatus("Status", "unavailable (%v)", err)
		return
	}
	printStatus("Status", "%s", colorize(statusColor(string(st.Status)), string(st.Status)))
	if st.Online {
		printStatus("Network", "online")
	} else {
		printStatus("Network", "offline")
	}
	if st.HasPending {
		printStatus("Queue", "pending records waiting to sync")
	} else {
		printStatus("Queue", "empty")
	}
	if st.Error != nil {
		printStatus("Last error", "%s: %s", st.Error.Title, st.Error.Detail)
		if st.CanRetry {
			printStatus("Hint", "run `claritydesk retry` or `claritydesk dismiss`")
		}
	}
}

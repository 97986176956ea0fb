// Package commands implements CLI command handlers for rbkit.
package commands

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/rbkit/pkg/config"
	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
	"github.com/Sumatoshi-tech/rbkit/pkg/version"
)

const (
	flagConfig = "config"
	flagQuiet  = "quiet"

	readHeaderTimeout = 5 * time.Second
)

// ErrInvalidFormat is returned when an output format is not supported.
var ErrInvalidFormat = errors.New("unsupported output format")

type obsInitFunc func(cfg observability.Config, readers ...sdkmetric.Reader) (observability.Providers, error)

// runtimeEnv is the loaded configuration plus telemetry providers of one command run.
type runtimeEnv struct {
	cfg       *config.Config
	providers observability.Providers
}

// loadConfig reads the configuration named by the persistent --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		configPath = ""
	}

	return config.LoadConfig(configPath)
}

// loadRuntime reads the configuration and initializes telemetry for the
// given mode. Logs go to the command's error stream.
func loadRuntime(
	cmd *cobra.Command, mode observability.AppMode, obsInit obsInitFunc, readers ...sdkmetric.Reader,
) (*runtimeEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	return initRuntime(cmd, cfg, mode, obsInit, readers...)
}

func initRuntime(
	cmd *cobra.Command, cfg *config.Config, mode observability.AppMode, obsInit obsInitFunc, readers ...sdkmetric.Reader,
) (*runtimeEnv, error) {
	providers, err := obsInit(observabilityConfig(cfg, mode, cmd), readers...)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &runtimeEnv{cfg: cfg, providers: providers}, nil
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode, cmd *cobra.Command) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Metrics.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Metrics.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Metrics.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = strings.EqualFold(cfg.Logging.Format, "json")
	obsCfg.LogOutput = cmd.ErrOrStderr()

	if isQuiet(cmd) {
		obsCfg.LogLevel = observability.ParseLevel("error")
	}

	return obsCfg
}

func isQuiet(cmd *cobra.Command) bool {
	quiet, err := cmd.Flags().GetBool(flagQuiet)
	if err != nil {
		return false
	}

	return quiet
}

// serveMetrics starts a Prometheus scrape endpoint on addr in the background
// and returns the server together with the bound address.
func serveMetrics(addr string, handler http.Handler) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		_ = srv.Serve(listener)
	}()

	return srv, listener.Addr().String(), nil
}

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
)

// newTestRoot mounts sub under a root carrying the persistent flags of the binary.
func newTestRoot(sub *cobra.Command, args ...string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	root := &cobra.Command{Use: "rbkit", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String(flagConfig, "", "config file")
	root.PersistentFlags().BoolP(flagQuiet, "q", false, "suppress output")
	root.AddCommand(sub)

	var stdout, stderr bytes.Buffer

	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{sub.Name()}, args...))

	return root, &stdout, &stderr
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rbkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

// recordingInit wraps observability.Init, keeping the config it was called
// with and attaching a manual reader. Shutdown collects the reader into rm
// first, since the command shuts its providers down before returning.
type recordingInit struct {
	cfg        observability.Config
	reader     *sdkmetric.ManualReader
	rm         metricdata.ResourceMetrics
	collectErr error
	shutdown   bool
}

func newRecordingInit() *recordingInit {
	return &recordingInit{reader: sdkmetric.NewManualReader()}
}

func (ri *recordingInit) init(cfg observability.Config, readers ...sdkmetric.Reader) (observability.Providers, error) {
	ri.cfg = cfg

	providers, err := observability.Init(cfg, append(readers, ri.reader)...)
	if err != nil {
		return providers, err
	}

	shutdown := providers.Shutdown
	providers.Shutdown = func(ctx context.Context) error {
		ri.collectErr = ri.reader.Collect(ctx, &ri.rm)
		ri.shutdown = true

		return shutdown(ctx)
	}

	return providers, nil
}

// collect returns the metrics captured when the command shut its providers down.
func (ri *recordingInit) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	require.True(t, ri.shutdown, "providers were not shut down")
	require.NoError(t, ri.collectErr)

	return ri.rm
}

func metricNames(rm metricdata.ResourceMetrics) []string {
	var names []string

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}

	return names
}

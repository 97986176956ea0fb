package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
	"github.com/Sumatoshi-tech/rbkit/pkg/rbtree"
)

// ErrFuzzMismatch is returned when the tree disagrees with the reference set.
var ErrFuzzMismatch = errors.New("tree disagrees with reference set")

const (
	opInsert = "insert"
	opDetach = "detach"
)

// FuzzCommand holds the flags and dependencies of the fuzz command.
type FuzzCommand struct {
	seed          int64
	operations    int
	keySpace      int
	validateEvery int
	metricsAddr   string

	obsInit obsInitFunc
}

// fuzzReport summarizes one fuzz run.
type fuzzReport struct {
	Inserts    int
	Duplicates int
	Detaches   int
	Misses     int
	Validated  int
	Size       int
	Height     int
	Elapsed    time.Duration
	Stats      rbtree.Stats
}

// NewFuzzCommand creates the fuzz command.
func NewFuzzCommand() *cobra.Command {
	return newFuzzCommandWithDeps(observability.Init)
}

func newFuzzCommandWithDeps(obsInit obsInitFunc) *cobra.Command {
	fc := &FuzzCommand{obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run randomized inserts and detaches against a tree",
		Long: `Drive a tree with random inserts and detaches, checking every
red-black invariant and comparing membership with a reference set.
Defaults come from the fuzz section of the configuration.`,
		Args: cobra.NoArgs,
		RunE: fc.run,
	}

	cmd.Flags().Int64Var(&fc.seed, "seed", 0, "Random seed (default from config)")
	cmd.Flags().IntVarP(&fc.operations, "operations", "n", 0, "Number of operations (default from config)")
	cmd.Flags().IntVar(&fc.keySpace, "key-space", 0, "Keys are drawn from [0, key-space) (default from config)")
	cmd.Flags().IntVar(&fc.validateEvery, "validate-every", 1, "Validate the tree every N operations")
	cmd.Flags().StringVar(&fc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func (fc *FuzzCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	metricsAddr := fc.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	var (
		readers  []sdkmetric.Reader
		exporter *observability.PrometheusExporter
	)

	if metricsAddr != "" {
		exporter, err = observability.NewPrometheusExporter()
		if err != nil {
			return err
		}

		readers = append(readers, exporter.Reader)
	}

	env, err := initRuntime(cmd, cfg, observability.ModeFuzz, fc.obsInit, readers...)
	if err != nil {
		return err
	}

	defer func() { _ = env.providers.Shutdown(context.WithoutCancel(cmd.Context())) }()

	fc.applyDefaults(cmd, env)

	logger := env.providers.Logger

	ops, err := observability.NewOpMetrics(env.providers.Meter)
	if err != nil {
		return err
	}

	tree := rbtree.NewOrdered(rbtree.NewAllocator[int]())
	defer func() {
		tree.Clear()
		tree.Release()
	}()

	err = observability.RegisterTreeMetrics(env.providers.Meter, map[string]observability.TreeStatsFunc{
		"fuzz": tree.Stats,
	})
	if err != nil {
		return err
	}

	if exporter != nil {
		srv, addr, serveErr := serveMetrics(metricsAddr, exporter.Handler)
		if serveErr != nil {
			return serveErr
		}

		defer srv.Close()

		logger.InfoContext(cmd.Context(), "serving metrics", "addr", addr)
	}

	ctx, span := env.providers.Tracer.Start(cmd.Context(), "rbkit.fuzz", trace.WithAttributes(
		attribute.Int64("fuzz.seed", fc.seed),
		attribute.Int("fuzz.operations", fc.operations),
		attribute.Int("fuzz.key_space", fc.keySpace),
	))
	defer span.End()

	logger.InfoContext(ctx, "fuzz started", "seed", fc.seed, "operations", fc.operations, "key_space", fc.keySpace)

	report, err := fc.exercise(ctx, tree, ops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "fuzz failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "fuzz finished",
		"size", report.Size,
		"height", report.Height,
		"rotations", report.Stats.Rotations,
		"elapsed", report.Elapsed,
	)

	if !isQuiet(cmd) {
		renderFuzzReport(cmd.OutOrStdout(), report)
	}

	return nil
}

// applyDefaults fills flags the user did not set from the configuration.
func (fc *FuzzCommand) applyDefaults(cmd *cobra.Command, env *runtimeEnv) {
	if !cmd.Flags().Changed("seed") {
		fc.seed = env.cfg.Fuzz.Seed
	}

	if !cmd.Flags().Changed("operations") {
		fc.operations = env.cfg.Fuzz.Operations
	}

	if !cmd.Flags().Changed("key-space") {
		fc.keySpace = env.cfg.Fuzz.KeySpace
	}

	if fc.keySpace <= 0 {
		fc.keySpace = 1
	}

	if fc.validateEvery <= 0 {
		fc.validateEvery = 1
	}
}

// exercise runs the random operation sequence, mirroring membership in a map.
func (fc *FuzzCommand) exercise(ctx context.Context, tree *rbtree.Tree[int], ops *observability.OpMetrics) (fuzzReport, error) {
	rng := rand.New(rand.NewPCG(uint64(fc.seed), uint64(fc.seed))) //nolint:gosec // reproducible runs.
	present := make(map[int]bool, fc.keySpace)
	report := fuzzReport{}
	started := time.Now()

	for step := range fc.operations {
		key := rng.IntN(fc.keySpace)
		opStart := time.Now()

		var (
			opName string
			opErr  error
		)

		if rng.IntN(2) == 0 {
			opName = opInsert
			opErr = fuzzInsert(tree, key, present, &report)
		} else {
			opName = opDetach
			opErr = fuzzDetach(tree, key, present, &report)
		}

		if opErr == nil && (step+1)%fc.validateEvery == 0 {
			opErr = tree.Validate()
			report.Validated++
		}

		status := observability.StatusOK
		if opErr != nil {
			status = observability.StatusError
		}

		ops.RecordOp(ctx, opName, status, time.Since(opStart))

		if opErr != nil {
			return report, fmt.Errorf("step %d (%s %d): %w", step, opName, key, opErr)
		}
	}

	if tree.Len() != len(present) {
		return report, fmt.Errorf("%w: tree holds %d keys, reference %d", ErrFuzzMismatch, tree.Len(), len(present))
	}

	report.Size = tree.Len()
	report.Height = tree.Height()
	report.Stats = tree.Stats()
	report.Elapsed = time.Since(started)

	return report, tree.Validate()
}

func fuzzInsert(tree *rbtree.Tree[int], key int, present map[int]bool, report *fuzzReport) error {
	nd := tree.Allocator().New()
	*nd.Value() = key

	ref, err := tree.Insert(nd)
	if errors.Is(err, rbtree.ErrDuplicateKey) {
		tree.Allocator().Free(nd)
		report.Duplicates++

		if !present[key] || *ref.Value() != key {
			return fmt.Errorf("%w: duplicate reported for absent key", ErrFuzzMismatch)
		}

		return nil
	}

	if present[key] {
		return fmt.Errorf("%w: inserted a key already present", ErrFuzzMismatch)
	}

	present[key] = true
	report.Inserts++

	return nil
}

func fuzzDetach(tree *rbtree.Tree[int], key int, present map[int]bool, report *fuzzReport) error {
	ref := tree.Find(key)
	if ref.Nil() {
		report.Misses++

		if present[key] {
			return fmt.Errorf("%w: present key not found", ErrFuzzMismatch)
		}

		return nil
	}

	if !present[key] {
		return fmt.Errorf("%w: absent key found", ErrFuzzMismatch)
	}

	tree.Allocator().Free(tree.Detach(ref))
	delete(present, key)
	report.Detaches++

	return nil
}

func renderFuzzReport(out io.Writer, report fuzzReport) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Inserts", humanize.Comma(int64(report.Inserts))},
		{"Duplicate inserts", humanize.Comma(int64(report.Duplicates))},
		{"Detaches", humanize.Comma(int64(report.Detaches))},
		{"Detach misses", humanize.Comma(int64(report.Misses))},
		{"Validations", humanize.Comma(int64(report.Validated))},
		{"Rotations", humanize.Comma(report.Stats.Rotations)},
		{"Swaps", humanize.Comma(report.Stats.Swaps)},
		{"Final size", humanize.Comma(int64(report.Size))},
		{"Final height", report.Height},
		{"Elapsed", report.Elapsed.Round(time.Millisecond)},
	})

	_, _ = fmt.Fprintln(out, tbl.Render())
}

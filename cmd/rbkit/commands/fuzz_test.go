package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
	"github.com/Sumatoshi-tech/rbkit/pkg/rbtree"
)

func TestFuzz_RunsAndReports(t *testing.T) {
	t.Parallel()

	ri := newRecordingInit()
	root, stdout, _ := newTestRoot(newFuzzCommandWithDeps(ri.init), "-n", "2000", "--key-space", "64", "--seed", "7")

	require.NoError(t, root.Execute())

	out := stdout.String()
	assert.Contains(t, out, "Inserts")
	assert.Contains(t, out, "Rotations")
	assert.Contains(t, out, "Final height")

	assert.Equal(t, observability.ModeFuzz, ri.cfg.Mode)

	names := metricNames(ri.collect(t))
	assert.Contains(t, names, "rbkit.ops.total")
	assert.Contains(t, names, "rbkit.tree.inserts")
	assert.Contains(t, names, "rbkit.tree.rotations")
}

func TestFuzz_KeysLeftInTree(t *testing.T) {
	t.Parallel()

	// A wide key space makes detaches miss, so the run ends with most inserts still linked.
	ri := newRecordingInit()
	root, stdout, _ := newTestRoot(newFuzzCommandWithDeps(ri.init), "-n", "50", "--key-space", "100000", "--seed", "11")

	require.NotPanics(t, func() { require.NoError(t, root.Execute()) })
	assert.Contains(t, stdout.String(), "Final size")

	rm := ri.collect(t)
	assert.Contains(t, metricNames(rm), "rbkit.tree.inserts")
}

func TestFuzz_DefaultsFromConfig(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `
logging:
  level: debug
  format: json
fuzz:
  seed: 3
  operations: 150
  key_space: 20
`)

	ri := newRecordingInit()
	root, stdout, stderr := newTestRoot(newFuzzCommandWithDeps(ri.init), "--config", cfgPath, "--validate-every", "10")

	require.NoError(t, root.Execute())

	assert.True(t, ri.cfg.LogJSON)
	assert.Contains(t, stderr.String(), `"operations":150`)
	assert.Contains(t, stderr.String(), `"key_space":20`)
	assert.Contains(t, stdout.String(), "Validations")
}

func TestFuzz_QuietSuppressesReport(t *testing.T) {
	t.Parallel()

	ri := newRecordingInit()
	root, stdout, stderr := newTestRoot(newFuzzCommandWithDeps(ri.init), "-q", "-n", "100")

	require.NoError(t, root.Execute())
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestFuzz_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	ri := newRecordingInit()
	root, _, stderr := newTestRoot(newFuzzCommandWithDeps(ri.init), "-n", "50", "--metrics-addr", "127.0.0.1:0")

	require.NoError(t, root.Execute())
	assert.Contains(t, stderr.String(), "serving metrics")
}

func TestFuzz_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "fuzz:\n  operations: -1\n")

	root, _, _ := newTestRoot(newFuzzCommandWithDeps(observability.Init), "--config", cfgPath)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzz operations must be positive")
}

func TestFuzz_ExerciseKeepsReferenceInSync(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	ops, err := observability.NewOpMetrics(providers.Meter)
	require.NoError(t, err)

	fc := &FuzzCommand{seed: 11, operations: 5000, keySpace: 100, validateEvery: 25}
	tree := rbtree.NewOrdered(rbtree.NewAllocator[int]())

	report, err := fc.exercise(context.Background(), tree, ops)
	require.NoError(t, err)

	assert.Equal(t, 5000, report.Inserts+report.Duplicates+report.Detaches+report.Misses)
	assert.Equal(t, report.Inserts-report.Detaches, report.Size)
	assert.Equal(t, 200, report.Validated)
	assert.Equal(t, int64(report.Inserts), report.Stats.Inserts)
	assert.Equal(t, int64(report.Detaches), report.Stats.Detaches)
	assert.Equal(t, tree.Len(), tree.Allocator().Used())
}

func TestFuzzDetach_MismatchDetected(t *testing.T) {
	t.Parallel()

	tree := rbtree.NewOrdered(rbtree.NewAllocator[int]())
	present := map[int]bool{5: true}

	err := fuzzDetach(tree, 5, present, &fuzzReport{})
	require.ErrorIs(t, err, ErrFuzzMismatch)
}

func TestRenderFuzzReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	renderFuzzReport(&buf, fuzzReport{Inserts: 1234, Stats: rbtree.Stats{Rotations: 5}})

	assert.Contains(t, buf.String(), "1,234")
	assert.Contains(t, buf.String(), "METRIC")
}

package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDump_Tree(t *testing.T) {
	t.Parallel()

	root, stdout, _ := newTestRoot(NewDumpCommand(), "--no-color", "1", "2", "3", "4")

	require.NoError(t, root.Execute())
	assert.Equal(t,
		"2 (BLACK)\n"+
			"├── L 1 (BLACK)\n"+
			"└── R 3 (BLACK)\n"+
			"    └── R 4 (RED)\n",
		stdout.String())
}

func TestDump_NonEmptyTreeEveryFormat(t *testing.T) {
	t.Parallel()

	for _, format := range []string{FormatTree, FormatYAML, FormatTable} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			root, stdout, _ := newTestRoot(NewDumpCommand(), "-f", format, "4", "2", "6", "4")

			require.NotPanics(t, func() { require.NoError(t, root.Execute()) })
			assert.Contains(t, stdout.String(), "6")
		})
	}
}

func TestDump_Empty(t *testing.T) {
	t.Parallel()

	root, stdout, _ := newTestRoot(NewDumpCommand())

	require.NoError(t, root.Execute())
	assert.Equal(t, "(empty)\n", stdout.String())
}

func TestDump_YAML(t *testing.T) {
	t.Parallel()

	root, stdout, _ := newTestRoot(NewDumpCommand(), "--format", "yaml", "5", "3", "8")

	require.NoError(t, root.Execute())

	var dump yamlDump
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &dump))

	assert.Equal(t, 3, dump.Size)
	assert.Equal(t, 2, dump.Height)
	require.NotNil(t, dump.Root)
	assert.Equal(t, 5, dump.Root.Key)
	assert.Equal(t, "BLACK", dump.Root.Color)
	require.NotNil(t, dump.Root.Left)
	assert.Equal(t, 3, dump.Root.Left.Key)
	assert.Equal(t, "RED", dump.Root.Left.Color)
	require.NotNil(t, dump.Root.Right)
	assert.Equal(t, 8, dump.Root.Right.Key)
	assert.Nil(t, dump.Root.Left.Left)
}

func TestDump_Table(t *testing.T) {
	t.Parallel()

	root, stdout, _ := newTestRoot(NewDumpCommand(), "-f", "table", "10", "20", "30")

	require.NoError(t, root.Execute())

	out := stdout.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "COLOR")
	assert.Contains(t, out, "black")
	assert.Contains(t, out, "red")
	assert.Contains(t, out, "TOTAL: 3")
}

func TestDump_DuplicateKeysSkipped(t *testing.T) {
	t.Parallel()

	root, stdout, stderr := newTestRoot(NewDumpCommand(), "--format", "yaml", "7", "7", "9")

	require.NoError(t, root.Execute())
	assert.Contains(t, stderr.String(), "skipping key 7")

	var dump yamlDump
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &dump))
	assert.Equal(t, 2, dump.Size)
}

func TestDump_QuietSuppressesDuplicateNotice(t *testing.T) {
	t.Parallel()

	root, _, stderr := newTestRoot(NewDumpCommand(), "-q", "7", "7")

	require.NoError(t, root.Execute())
	assert.Empty(t, stderr.String())
}

func TestDump_Random(t *testing.T) {
	t.Parallel()

	root, stdout, _ := newTestRoot(NewDumpCommand(), "--format", "yaml", "--random", "200", "--seed", "42")

	require.NoError(t, root.Execute())

	var dump yamlDump
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &dump))

	assert.Positive(t, dump.Size)
	assert.LessOrEqual(t, dump.Size, 200)
	assert.LessOrEqual(t, dump.Height, 16)
}

func TestDump_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad key", args: []string{"1", "two"}, want: `parse key "two"`},
		{name: "bad format", args: []string{"--format", "xml", "1"}, want: "unsupported output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root, _, _ := newTestRoot(NewDumpCommand(), tt.args...)

			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

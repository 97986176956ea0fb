package commands

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbkit/pkg/rbtree"
)

// Output formats of the dump command.
const (
	FormatTree  = "tree"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// DumpCommand holds the flags of the dump command.
type DumpCommand struct {
	format  string
	noColor bool
	random  int
	seed    uint64
}

// NewDumpCommand creates the dump command.
func NewDumpCommand() *cobra.Command {
	dc := &DumpCommand{}

	cmd := &cobra.Command{
		Use:   "dump [keys...]",
		Short: "Build a tree from integer keys and print its shape",
		Long: `Insert the given integer keys into a red-black tree and print the
resulting structure. Duplicate keys are reported and skipped.`,
		RunE: dc.run,
	}

	cmd.Flags().StringVarP(&dc.format, "format", "f", FormatTree, "Output format: tree, yaml, table")
	cmd.Flags().BoolVar(&dc.noColor, "no-color", false, "Disable colored node output")
	cmd.Flags().IntVar(&dc.random, "random", 0, "Additionally insert this many random keys")
	cmd.Flags().Uint64Var(&dc.seed, "seed", 1, "Seed for --random")

	return cmd
}

func (dc *DumpCommand) run(cmd *cobra.Command, args []string) error {
	keys, err := dc.keys(args)
	if err != nil {
		return err
	}

	tree := rbtree.NewOrdered(rbtree.NewAllocator[int]())
	defer func() {
		tree.Clear()
		tree.Release()
	}()

	for _, key := range keys {
		nd := tree.Allocator().New()
		*nd.Value() = key

		_, insertErr := tree.Insert(nd)
		if insertErr != nil {
			tree.Allocator().Free(nd)

			if !isQuiet(cmd) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "skipping key %d: %v\n", key, insertErr)
			}
		}
	}

	err = tree.Validate()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	switch dc.format {
	case FormatTree:
		renderTree(out, tree, dc.noColor)

		return nil
	case FormatYAML:
		return renderYAML(out, tree)
	case FormatTable:
		renderTable(out, tree)

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, dc.format)
	}
}

func (dc *DumpCommand) keys(args []string) ([]int, error) {
	keys := make([]int, 0, len(args)+dc.random)

	for _, arg := range args {
		key, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", arg, err)
		}

		keys = append(keys, key)
	}

	if dc.random > 0 {
		rng := rand.New(rand.NewPCG(dc.seed, dc.seed)) //nolint:gosec // reproducible shapes, not security.
		for range dc.random {
			keys = append(keys, rng.IntN(dc.random*10)) //nolint:mnd // sparse key space.
		}
	}

	return keys, nil
}

// renderTree prints the tree top down, left child first, one node per line.
func renderTree(out io.Writer, tree *rbtree.Tree[int], noColor bool) {
	red := color.New(color.FgRed, color.Bold)
	black := color.New(color.FgHiBlack, color.Bold)

	if noColor {
		red.DisableColor()
		black.DisableColor()
	}

	label := func(ref rbtree.Ref[int]) string {
		text := fmt.Sprintf("%d (%s)", *ref.Value(), ref.Color())
		if ref.Color() == rbtree.Red {
			return red.Sprint(text)
		}

		return black.Sprint(text)
	}

	root := tree.Root()
	if root.Nil() {
		_, _ = fmt.Fprintln(out, "(empty)")

		return
	}

	_, _ = fmt.Fprintln(out, label(root))

	var walk func(ref rbtree.Ref[int], prefix string)

	walk = func(ref rbtree.Ref[int], prefix string) {
		children := make([]rbtree.Ref[int], 0, 2)
		sides := make([]string, 0, 2)

		if left := ref.Left(); !left.Nil() {
			children = append(children, left)
			sides = append(sides, "L")
		}

		if right := ref.Right(); !right.Nil() {
			children = append(children, right)
			sides = append(sides, "R")
		}

		for idx, child := range children {
			branch, indent := "├── ", "│   "
			if idx == len(children)-1 {
				branch, indent = "└── ", "    "
			}

			_, _ = fmt.Fprintf(out, "%s%s%s %s\n", prefix, branch, sides[idx], label(child))
			walk(child, prefix+indent)
		}
	}

	walk(root, "")
}

type yamlNode struct {
	Key   int       `yaml:"key"`
	Color string    `yaml:"color"`
	Left  *yamlNode `yaml:"left,omitempty"`
	Right *yamlNode `yaml:"right,omitempty"`
}

type yamlDump struct {
	Size   int       `yaml:"size"`
	Height int       `yaml:"height"`
	Root   *yamlNode `yaml:"root,omitempty"`
}

func toYAMLNode(ref rbtree.Ref[int]) *yamlNode {
	if ref.Nil() {
		return nil
	}

	return &yamlNode{
		Key:   *ref.Value(),
		Color: ref.Color().String(),
		Left:  toYAMLNode(ref.Left()),
		Right: toYAMLNode(ref.Right()),
	}
}

func renderYAML(out io.Writer, tree *rbtree.Tree[int]) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2) //nolint:mnd // conventional yaml indent.

	err := enc.Encode(yamlDump{
		Size:   tree.Len(),
		Height: tree.Height(),
		Root:   toYAMLNode(tree.Root()),
	})
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

func depthOf(ref rbtree.Ref[int]) int {
	depth := 0
	for parent := ref.Parent(); !parent.Nil(); parent = parent.Parent() {
		depth++
	}

	return depth
}

func keyOrDash(ref rbtree.Ref[int]) string {
	if ref.Nil() {
		return "-"
	}

	return strconv.Itoa(*ref.Value())
}

// renderTable prints one row per node in key order.
func renderTable(out io.Writer, tree *rbtree.Tree[int]) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"Key", "Color", "Depth", "Parent", "Left", "Right"})

	for ref := range tree.All() {
		tbl.AppendRow(table.Row{
			*ref.Value(),
			strings.ToLower(ref.Color().String()),
			depthOf(ref),
			keyOrDash(ref.Parent()),
			keyOrDash(ref.Left()),
			keyOrDash(ref.Right()),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", tree.Len()), "", fmt.Sprintf("Height: %d", tree.Height())})

	_, _ = fmt.Fprintln(out, tbl.Render())
}

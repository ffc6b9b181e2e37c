package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/render/nodelink"
)

const (
	treeFormatText = "text"
	treeFormatDOT  = "dot"
	treeFormatSVG  = "svg"
)

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var (
		format string
		output string
		paths  bool
	)

	cmd := &cobra.Command{
		Use:   "tree [layout.json]",
		Short: "Show the structure of a layout",
		Long: `Show the split tree of a layout configuration.

Formats:
  text  indented tree in the terminal (default)
  dot   Graphviz DOT source
  svg   node-link diagram rendered with Graphviz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readLayout(args[0], nil)
			if err != nil {
				return err
			}
			switch format {
			case treeFormatText:
				fmt.Println(formatTree(p.Layout, plainLabels(paths)))
				printDetail("%d panels · depth %d · %s", len(layout.Leaves(p.Layout)), layout.Depth(p.Layout), p.FigSize)
				return nil
			case treeFormatDOT:
				dot := nodelink.ToDOT(p.Layout, nodelink.Options{Paths: paths})
				return writeOutput(orStdout(output), []byte(dot))
			case treeFormatSVG:
				dot := nodelink.ToDOT(p.Layout, nodelink.Options{Paths: paths})
				svg, err := nodelink.RenderSVG(cmd.Context(), dot)
				if err != nil {
					return err
				}
				return writeOutput(orStdout(output), svg)
			default:
				return fmt.Errorf("invalid format: %s (must be 'text', 'dot' or 'svg')", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", treeFormatText, "output format: text, dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file for dot and svg (default stdout)")
	cmd.Flags().BoolVar(&paths, "paths", false, "label nodes with their paths")

	return cmd
}

func orStdout(path string) string {
	if path == "" {
		return "-"
	}
	return path
}

var (
	styleTreeSplit = lipgloss.NewStyle().Foreground(colorCyan)
	styleTreeLeaf  = lipgloss.NewStyle().Foreground(colorWhite)
	styleTreeEnum  = lipgloss.NewStyle().Foreground(colorDim).MarginRight(1)
)

// labeler produces the label of the node n at p.
type labeler func(n layout.Node, p layout.Path) string

func plainLabels(paths bool) labeler {
	return func(n layout.Node, p layout.Path) string { return nodeLabel(n, p, paths) }
}

// formatTree renders the split tree with lipgloss.
func formatTree(n layout.Node, label labeler) string {
	return buildTree(n, layout.Root, label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(styleTreeEnum).
		String()
}

func buildTree(n layout.Node, p layout.Path, label labeler) *tree.Tree {
	t := tree.Root(label(n, p))
	if s, ok := n.(*layout.Split); ok {
		for i, child := range s.Children {
			cp := p.Child(i)
			if layout.IsLeaf(child) {
				t.Child(label(child, cp))
			} else {
				t.Child(buildTree(child, cp, label))
			}
		}
	}
	return t
}

func nodeLabel(n layout.Node, p layout.Path, paths bool) string {
	var label string
	switch n := n.(type) {
	case layout.Leaf:
		label = styleTreeLeaf.Render(n.ID)
	case *layout.Split:
		label = styleTreeSplit.Render(fmt.Sprintf("%s %.4g/%.4g", n.Orient, n.Ratio[0], n.Ratio[1]))
	}
	if paths {
		label = StyleDim.Render(p.String()) + " " + label
	}
	return label
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/client"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/preset"
	"github.com/matzehuels/panelgrid/pkg/render"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output  string  // output file path; derived from the input when empty
	remote  bool    // render through the service instead of in-process
	url     string  // service URL for --remote
	dpi     float64 // pixels per inch of figure size
	handles bool    // draw separator handles
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{dpi: render.DefaultDPI}

	cmd := &cobra.Command{
		Use:   "render [layout.json]",
		Short: "Render a layout configuration to SVG",
		Long: `Render a layout configuration {"layout": ..., "figsize": [w, h]} to SVG.

By default the built-in drawing functions render in-process. With --remote
the configuration is sent to the service, which validates it against its own
function registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" {
				opts.url = c.cfg().Editor.URL
			}
			return c.runRender(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: input name with .svg, - for stdout)")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "render through the service")
	cmd.Flags().StringVar(&opts.url, "url", "", "service URL (default from config)")
	cmd.Flags().Float64Var(&opts.dpi, "dpi", opts.dpi, "pixels per inch")
	cmd.Flags().BoolVar(&opts.handles, "handles", false, "draw separator handles")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, input string, opts renderOpts) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	var svg []byte
	if opts.remote {
		cl, err := c.newClient(opts.url)
		if err != nil {
			return err
		}
		p, err := readLayout(input, nil)
		if err != nil {
			return err
		}
		res, err := cl.CreateSession(ctx, history.State{Tree: p.Layout, Size: p.FigSize})
		if err != nil {
			return err
		}
		svg = []byte(res.Artifact)
	} else {
		reg := render.Builtin()
		p, err := readLayout(input, reg.Has)
		if err != nil {
			return err
		}
		svgOpts := []render.SVGOption{render.WithDPI(opts.dpi)}
		if opts.handles {
			svgOpts = append(svgOpts, render.WithHandles())
		}
		if svg, err = render.SVG(p.Layout, p.FigSize, reg, svgOpts...); err != nil {
			return err
		}
	}

	out := opts.output
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".svg"
	}
	if err := writeOutput(out, svg); err != nil {
		return err
	}
	prog.done("Rendered " + input)
	if out != "-" {
		printFile(out)
	}
	return nil
}

// functionsCommand creates the functions command.
func (c *CLI) functionsCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the drawing functions of the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = c.cfg().Editor.URL
			}
			cl, err := c.newClient(url)
			if err != nil {
				return err
			}
			names, err := cl.Functions(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "service URL (default from config)")

	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

func (c *CLI) newClient(url string) (*client.Client, error) {
	return client.New(url, client.WithLogger(c.Logger))
}

// readLayout reads a configuration file. known may be nil to accept any
// function name.
func readLayout(path string, known func(string) bool) (*preset.Preset, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if known == nil {
		known = func(string) bool { return true }
	}
	p, err := preset.Decode(data, known)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path, or stdout for "-".
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

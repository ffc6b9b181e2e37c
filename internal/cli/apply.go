package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/coalesce"
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/editor"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/storage"
)

// script is an edit script:
//
//	input  = "start.json"   # optional starting configuration
//	output = "figure.svg"
//
//	[[step]]
//	op     = "split"
//	path   = []
//	orient = "row"
//
//	[[step]]
//	op = "undo"
type script struct {
	URL    string `toml:"url"`
	Input  string `toml:"input"`
	Output string `toml:"output"`
	Config string `toml:"config"`
	Steps  []step `toml:"step"`
}

// step is one operation of a script. Only the fields used by Op are read.
type step struct {
	Op     string    `toml:"op"`
	Path   []int     `toml:"path"`
	PathB  []int     `toml:"path_b"`
	Orient string    `toml:"orient"`
	Value  string    `toml:"value"`
	Ratios []float64 `toml:"ratios"`
	Size   []float64 `toml:"size"`
	Name   string    `toml:"name"`
}

// applyCommand creates the apply command.
func (c *CLI) applyCommand() *cobra.Command {
	var (
		url       string
		output    string
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "apply [script.toml]",
		Short: "Run an edit script through the editor",
		Long: `Run the edits of a TOML script against the service, with the same
undo history the interactive editor keeps, and write the final SVG.

Operations: split, delete, insert, replace, rotate, resize, restructure,
drag, swap, merge, undo, redo, reset, load_preset, save_preset.

Steps that change nothing are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readScript(args[0])
			if err != nil {
				return err
			}
			if output != "" {
				s.Output = output
			}
			if url == "" {
				url = s.URL
			}
			if url == "" {
				url = c.cfg().Editor.URL
			}
			return c.runApply(cmd.Context(), url, s, keepGoing)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "service URL (default from script, then config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output SVG (overrides the script)")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after a failed step")

	return cmd
}

func readScript(path string) (*script, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var s script
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, fmt.Errorf("script %s: unknown keys %v", path, keys)
	}
	return &s, nil
}

func (c *CLI) runApply(ctx context.Context, url string, s *script, keepGoing bool) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	e, err := c.newEditor(url, storage.NewMemoryStore())
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.Bootstrap(ctx); err != nil {
		return err
	}
	if s.Input != "" {
		data, err := os.ReadFile(s.Input)
		if err != nil {
			return err
		}
		if err := e.LoadConfig(ctx, data); err != nil {
			return fmt.Errorf("%s: %w", s.Input, err)
		}
	}

	applied, failed := 0, 0
	for i, st := range s.Steps {
		err := runStep(ctx, e, st)
		switch {
		case err == nil:
			applied++
			logger.Debug("step applied", "step", i+1, "op", st.Op)
		case errors.Is(err, errors.ErrCodeNoop):
			printWarning("step %d (%s): %s", i+1, st.Op, errors.UserMessage(err))
		default:
			failed++
			printError("step %d (%s): %s", i+1, st.Op, errors.UserMessage(err))
			if !keepGoing {
				return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
			}
		}
	}

	snap := e.Snapshot()
	prog.done(fmt.Sprintf("Applied %d of %d steps", applied, len(s.Steps)))
	printDetail("%d panels · %d undoable · %d redoable", len(layout.Leaves(snap.Present.Tree)), snap.Past, snap.Future)

	if s.Output != "" {
		if err := writeOutput(s.Output, []byte(e.Artifact())); err != nil {
			return err
		}
		if s.Output != "-" {
			printFile(s.Output)
		}
	}
	if s.Config != "" {
		data, err := e.ExportConfig()
		if err != nil {
			return err
		}
		if err := writeOutput(s.Config, data); err != nil {
			return err
		}
		printFile(s.Config)
	}
	if failed > 0 {
		return fmt.Errorf("%d steps failed", failed)
	}
	return nil
}

// newEditor builds an editor on the service at url with the [editor] settings.
func (c *CLI) newEditor(url string, store storage.Store, opts ...editor.Option) (*editor.Editor, error) {
	cl, err := c.newClient(url)
	if err != nil {
		return nil, err
	}
	cfg := c.cfg().Editor
	base := []editor.Option{
		editor.WithStore(store),
		editor.WithLogger(c.Logger),
		editor.WithHistory(history.WithLimit(cfg.HistoryLimit)),
		editor.WithCoalescer(coalesce.WithDelay(cfg.debounce()), coalesce.WithEpsilon(cfg.Epsilon)),
	}
	return editor.New(cl, append(base, opts...)...), nil
}

// runStep performs one script step.
func runStep(ctx context.Context, e *editor.Editor, st step) error {
	p := layout.Path(st.Path)
	var err error
	switch st.Op {
	case "split":
		var o layout.Orientation
		if o, err = layout.ParseOrientation(st.Orient); err == nil {
			_, err = e.Split(ctx, p, o)
		}
	case "delete":
		_, err = e.Delete(ctx, p)
	case "insert":
		var o layout.Orientation
		if o, err = layout.ParseOrientation(st.Orient); err != nil {
			return err
		}
		r := layout.DefaultRatio
		if st.Ratios != nil {
			if r, err = ratioOf(st.Ratios); err != nil {
				return err
			}
		}
		_, err = e.Insert(ctx, p, st.Value, o, r)
	case "replace":
		_, err = e.Replace(ctx, p, st.Value)
	case "rotate":
		_, err = e.Rotate(ctx, p)
	case "resize":
		if len(st.Size) != 2 {
			return errors.New(errors.ErrCodeValidation, "resize needs size = [width, height]")
		}
		_, err = e.Resize(ctx, layout.FigureSize{Width: st.Size[0], Height: st.Size[1]})
	case "restructure":
		var r layout.Ratio
		if r, err = ratioOf(st.Ratios); err != nil {
			return err
		}
		var s *layout.Split
		if s, err = layout.GetSplit(e.Present().Tree, p); err != nil {
			return err
		}
		change := &edit.RestructureChange{Path: p, Ratio: r}
		if s.Orient == layout.Row {
			_, err = e.Restructure(ctx, change, nil)
		} else {
			_, err = e.Restructure(ctx, nil, change)
		}
	case "drag":
		var r layout.Ratio
		if r, err = ratioOf(st.Ratios); err != nil {
			return err
		}
		var kept bool
		if kept, err = e.Drag(p, r); err == nil {
			if !kept {
				return errors.New(errors.ErrCodeNoop, "drag to %v changes nothing", r)
			}
			err = e.FlushDrag(ctx)
		}
	case "swap":
		_, err = e.Swap(ctx, p, layout.Path(st.PathB))
	case "merge":
		_, err = e.Merge(ctx, p, layout.Path(st.PathB))
	case "undo":
		var out history.Outcome
		if out, err = e.Undo(ctx); err == nil && !out.Applied {
			err = errors.New(errors.ErrCodeNoop, "nothing to undo")
		}
	case "redo":
		var out history.Outcome
		if out, err = e.Redo(ctx); err == nil && !out.Applied {
			err = errors.New(errors.ErrCodeNoop, "nothing to redo")
		}
	case "reset":
		err = e.Reset(ctx)
	case "load_preset":
		err = e.LoadPreset(ctx, st.Name)
	case "save_preset":
		err = e.SavePreset(ctx, st.Name)
	default:
		err = errors.New(errors.ErrCodeInvalidInput, "unknown op %q", st.Op)
	}
	return err
}

func ratioOf(v []float64) (layout.Ratio, error) {
	if len(v) != 2 {
		return layout.Ratio{}, errors.New(errors.ErrCodeValidation, "ratios must have two entries, got %v", v)
	}
	r := layout.Ratio{v[0], v[1]}
	if !r.Valid() {
		return layout.Ratio{}, errors.New(errors.ErrCodeValidation, "invalid ratios %v", v)
	}
	return r, nil
}

package cli

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/editor"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/storage"
)

// editCommand creates the interactive edit command.
func (c *CLI) editCommand() *cobra.Command {
	var (
		url       string
		stateFile string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a layout interactively",
		Long: `Edit a layout in the terminal against the service.

The layout, the session token and the handle preference are saved after
every change and restored on the next start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg().Editor
			if url == "" {
				url = cfg.URL
			}
			if stateFile == "" {
				stateFile = cfg.StateFile
			}
			return c.runEdit(cmd, url, stateFile, output)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "service URL (default from config)")
	cmd.Flags().StringVar(&stateFile, "state", "", "state file (default ~/.config/panelgrid/state.json)")
	cmd.Flags().StringVarP(&output, "output", "o", "figure.svg", "file written by the w key")

	return cmd
}

func (c *CLI) runEdit(cmd *cobra.Command, url, stateFile, output string) error {
	ctx := cmd.Context()
	if stateFile == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return err
		}
		stateFile = p
	}
	store, err := storage.NewFileStore(stateFile)
	if err != nil {
		return err
	}

	// Log lines would tear the full-screen view; keep only errors.
	quiet := c.Logger.GetLevel() > log.DebugLevel
	if quiet {
		level := c.Logger.GetLevel()
		c.Logger.SetLevel(log.ErrorLevel)
		defer c.Logger.SetLevel(level)
	}

	var out programSender
	e, err := c.newEditor(url, store, editor.WithNotify(func(err error) { out.send(notifyMsg{err}) }))
	if err != nil {
		return err
	}
	defer e.Close()

	sp := newSpinnerWithContext(ctx, "Connecting to "+url)
	sp.Start()
	err = e.Bootstrap(ctx)
	sp.Stop()
	if err != nil {
		return err
	}
	e.History().OnChange(func(history.Snapshot) { out.send(changedMsg{}) })

	prog := tea.NewProgram(NewEditModel(ctx, e, output), tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout()), tea.WithInput(cmd.InOrStdin()))
	out.set(prog)
	if _, err := prog.Run(); err != nil {
		return err
	}
	printSuccess("Saved layout to %s", store.Path())
	return nil
}


// programSender forwards messages from background goroutines to the
// program once it is set. Messages sent before are dropped.
type programSender struct {
	p atomic.Pointer[tea.Program]
}

func (s *programSender) set(p *tea.Program) { s.p.Store(p) }

func (s *programSender) send(msg tea.Msg) {
	if p := s.p.Load(); p != nil {
		p.Send(msg)
	}
}

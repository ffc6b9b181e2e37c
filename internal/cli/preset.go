package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/preset"
)

// presetCommand creates the preset management command.
func (c *CLI) presetCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage layouts stored by the service",
	}
	cmd.PersistentFlags().StringVar(&url, "url", "", "service URL (default from config)")
	serviceURL := func() string {
		if url != "" {
			return url
		}
		return c.cfg().Editor.URL
	}

	cmd.AddCommand(c.presetListCommand(serviceURL))
	cmd.AddCommand(c.presetShowCommand(serviceURL))
	cmd.AddCommand(c.presetSaveCommand(serviceURL))

	return cmd
}

// presetListCommand creates the "preset list" subcommand.
func (c *CLI) presetListCommand(url func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.newClient(url())
			if err != nil {
				return err
			}
			list, err := cl.Presets(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				printInfo("No presets stored")
				return nil
			}
			fmt.Println(presetTable(list, time.Now()))
			return nil
		},
	}
}

// presetShowCommand creates the "preset show" subcommand.
func (c *CLI) presetShowCommand(url func() string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.newClient(url())
			if err != nil {
				return err
			}
			p, err := cl.Preset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				data, err := preset.Encode(&preset.Preset{Layout: p.Layout, FigSize: p.FigSize})
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			printKeyValue("Name", p.Name)
			printKeyValue("Size", p.FigSize.String())
			printKeyValue("Updated", formatRelativeTime(p.UpdatedAt, time.Now()))
			printNewline()
			fmt.Println(formatTree(p.Layout, plainLabels(true)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the configuration as JSON")

	return cmd
}

// presetSaveCommand creates the "preset save" subcommand.
func (c *CLI) presetSaveCommand(url func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "save [name] [layout.json]",
		Short: "Store a layout configuration as a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readLayout(args[1], nil)
			if err != nil {
				return err
			}
			p.Name = args[0]
			cl, err := c.newClient(url())
			if err != nil {
				return err
			}
			if err := cl.SavePreset(cmd.Context(), p); err != nil {
				return err
			}
			printSuccess("Saved preset %s", StyleHighlight.Render(p.Name))
			return nil
		},
	}
}

func presetTable(list []*preset.Preset, now time.Time) string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			p.Name,
			fmt.Sprint(len(layout.Leaves(p.Layout))),
			p.FigSize.String(),
			formatRelativeTime(p.UpdatedAt, now),
		})
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Preset", "Panels", "Size", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return StyleHighlight.Padding(0, 1)
			}
			return StyleDim.Padding(0, 1)
		}).
		Render()
}

func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}

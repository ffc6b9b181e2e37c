package cli

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/panelgrid/pkg/editor"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listMarkedStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	statusErrStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

// dragStep is the change of a split's first share per key press.
const dragStep = 0.05

// =============================================================================
// Messages
// =============================================================================

// opDoneMsg reports the end of an operation started by the model.
type opDoneMsg struct {
	op  string
	err error
}

// changedMsg reports a change of the present made in the background, i.e.
// a committed drag.
type changedMsg struct{}

// notifyMsg carries a failure of a background commit.
type notifyMsg struct{ err error }

// reconnectedMsg reports the end of a reconnect after op failed with a lost
// session. created is set when a new session replaced the old one.
type reconnectedMsg struct {
	op      string
	created bool
	err     error
}

// =============================================================================
// EditModel - Interactive layout editing
// =============================================================================

// EditModel is the bubbletea model of the layout editor. The selection is a
// leaf; split operations address the selected leaf's parent.
type EditModel struct {
	ctx    context.Context
	editor *editor.Editor
	output string

	Cursor int
	Mark   layout.Path
	Status string
	Err    bool
	Busy   bool

	// dragFrac is the first share last proposed for dragPath.
	dragPath layout.Path
	dragFrac float64
}

// NewEditModel creates an editor model. Written SVGs go to output.
func NewEditModel(ctx context.Context, e *editor.Editor, output string) EditModel {
	return EditModel{ctx: ctx, editor: e, output: output, Status: "ready"}
}

func (m EditModel) Init() tea.Cmd {
	return nil
}

func (m EditModel) leaves() []layout.Path {
	return layout.Leaves(m.editor.Present().Tree)
}

func (m EditModel) selected() layout.Path {
	ls := m.leaves()
	if m.Cursor >= len(ls) {
		return ls[len(ls)-1]
	}
	return ls[m.Cursor]
}

// run starts op in the background and marks the model busy.
func (m EditModel) run(name string, op func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.Busy = true
	m.Status = name + "…"
	m.Err = false
	ctx := m.ctx
	return m, func() tea.Msg { return opDoneMsg{op: name, err: op(ctx)} }
}

// reconnect checks the session after op found it gone and recreates it from
// the present when the service no longer knows it.
func (m EditModel) reconnect(op string) (tea.Model, tea.Cmd) {
	m.Busy = true
	m.Status, m.Err = op+": session lost, reconnecting…", true
	ctx, e := m.ctx, m.editor
	return m, func() tea.Msg {
		created, err := e.Reconnect(ctx)
		return reconnectedMsg{op: op, created: created, err: err}
	}
}

func outcome(fn func() (history.Outcome, error)) error {
	_, err := fn()
	return err
}

func (m EditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case opDoneMsg:
		m.Busy = false
		m.clamp()
		switch {
		case msg.err == nil:
			m.Status, m.Err = msg.op, false
		case errors.Is(msg.err, errors.ErrCodeNoop):
			m.Status, m.Err = msg.op+": nothing to do", false
		case errors.Is(msg.err, errors.ErrCodeSessionInvalid):
			return m.reconnect(msg.op)
		default:
			m.Status, m.Err = msg.op+": "+errors.UserMessage(msg.err), true
		}
		return m, nil
	case reconnectedMsg:
		m.Busy = false
		m.clamp()
		switch {
		case msg.err != nil:
			m.Status, m.Err = msg.op+": session lost, reconnect failed: "+errors.UserMessage(msg.err), true
		case msg.created:
			m.Mark = nil
			m.Status, m.Err = msg.op+" not applied: session recreated, history cleared", true
		default:
			m.Status, m.Err = msg.op+" not applied: session is back, try again", true
		}
		return m, nil
	case changedMsg:
		m.clamp()
		return m, nil
	case notifyMsg:
		m.Status, m.Err = errors.UserMessage(msg.err), true
		return m, nil
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m EditModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	switch k {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil
	case "down", "j":
		if m.Cursor < len(m.leaves())-1 {
			m.Cursor++
		}
		return m, nil
	case "esc":
		m.Mark = nil
		return m, nil
	case " ":
		if m.Mark != nil && m.Mark.Equal(m.selected()) {
			m.Mark = nil
		} else {
			m.Mark = m.selected()
		}
		return m, nil
	}
	if m.Busy {
		return m, nil
	}

	e, p := m.editor, m.selected()
	switch k {
	case "r", "c":
		o := layout.Row
		if k == "c" {
			o = layout.Column
		}
		return m.run("split "+string(o), func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Split(ctx, p, o) })
		})
	case "d":
		return m.run("delete", func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Delete(ctx, p) })
		})
	case "f":
		next := nextFunction(e.Functions(), m.leafID(p))
		return m.run("replace with "+next, func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Replace(ctx, p, next) })
		})
	case "o":
		return m.run("rotate", func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Rotate(ctx, p.Parent()) })
		})
	case "x", "m":
		if m.Mark == nil {
			m.Status, m.Err = "mark a panel with space first", true
			return m, nil
		}
		a := m.Mark
		m.Mark = nil
		if k == "x" {
			return m.run("swap", func(ctx context.Context) error {
				return outcome(func() (history.Outcome, error) { return e.Swap(ctx, a, p) })
			})
		}
		return m.run("merge", func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Merge(ctx, a, p) })
		})
	case "+", "-", "=":
		return m.drag(p.Parent(), k != "-")
	case "u":
		return m.run("undo", func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Undo(ctx) })
		})
	case "U", "ctrl+r":
		return m.run("redo", func(ctx context.Context) error {
			return outcome(func() (history.Outcome, error) { return e.Redo(ctx) })
		})
	case "h":
		e.SetShowHandles(!e.ShowHandles())
		m.Status = fmt.Sprintf("handles %v", e.ShowHandles())
		return m, nil
	case "w":
		return m.run("write "+m.output, func(context.Context) error {
			return os.WriteFile(m.output, []byte(e.Artifact()), 0o644)
		})
	case "R":
		m.Mark = nil
		return m.run("reset", e.Reset)
	}
	return m, nil
}

// drag moves the separator of the split at p by one step. Proposals go to
// the coalescer, which commits them once key presses pause.
func (m EditModel) drag(p layout.Path, grow bool) (tea.Model, tea.Cmd) {
	s, err := layout.GetSplit(m.editor.Present().Tree, p)
	if err != nil {
		m.Status, m.Err = "the selected panel has no parent split", true
		return m, nil
	}
	if !m.editor.DragPending() || !m.dragPath.Equal(p) {
		m.dragPath, m.dragFrac = p, s.Ratio.Fraction()
	}
	delta := dragStep
	if !grow {
		delta = -delta
	}
	m.dragFrac = math.Min(0.95, math.Max(0.05, m.dragFrac+delta))
	if _, err := m.editor.Drag(p, layout.FromFraction(m.dragFrac)); err != nil {
		m.Status, m.Err = errors.UserMessage(err), true
		return m, nil
	}
	m.Status, m.Err = fmt.Sprintf("resize %s to %.0f%%", p, 100*m.dragFrac), false
	return m, nil
}

func (m EditModel) leafID(p layout.Path) string {
	l, err := layout.GetLeaf(m.editor.Present().Tree, p)
	if err != nil {
		return ""
	}
	return l.ID
}

// clamp keeps the cursor on an existing leaf after the tree changed.
func (m *EditModel) clamp() {
	if n := len(m.leaves()); m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Mark != nil {
		if _, err := layout.GetLeaf(m.editor.Present().Tree, m.Mark); err != nil {
			m.Mark = nil
		}
	}
}

// nextFunction returns the function after current in names, wrapping around.
func nextFunction(names []string, current string) string {
	if len(names) == 0 {
		return current
	}
	for i, n := range names {
		if n == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

func (m EditModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Panelgrid"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ select  r/c split  d delete  f function  o rotate  +/- resize"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("space mark  x swap  m merge  u undo  U redo  h handles  w write  R reset  q quit"))
	b.WriteString("\n\n")

	sel := m.selected()
	label := func(n layout.Node, p layout.Path) string {
		l := nodeLabel(n, p, false)
		switch {
		case p.Equal(sel):
			return listSelectedStyle.Render("▸ ") + l
		case m.Mark != nil && p.Equal(m.Mark):
			return listMarkedStyle.Render("● ") + l
		}
		return l
	}
	present := m.editor.Present()
	b.WriteString(formatTree(present.Tree, label))
	b.WriteString("\n\n")

	snap := m.editor.Snapshot()
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %s · %s · %d undo · %d redo", sel, present.Size, snap.Past, snap.Future)))
	b.WriteString("\n")
	status := m.Status
	if m.Err {
		status = statusErrStyle.Render(iconError + " " + status)
	} else {
		status = StyleDim.Render(iconInfo + " " + status)
	}
	b.WriteString(status)
	b.WriteString("\n")

	return b.String()
}

package cli

import (
	"context"
	"io"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type idleModel struct{}

func (idleModel) Init() tea.Cmd                       { return nil }
func (idleModel) Update(tea.Msg) (tea.Model, tea.Cmd) { return idleModel{}, nil }
func (idleModel) View() string                        { return "" }

func TestProgramSender(t *testing.T) {
	var s programSender
	// Nothing to deliver to yet.
	s.send(changedMsg{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog := tea.NewProgram(idleModel{}, tea.WithContext(ctx), tea.WithInput(nil), tea.WithOutput(io.Discard))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				s.send(changedMsg{})
			}
		}()
	}
	s.set(prog)
	wg.Wait()

	if s.p.Load() != prog {
		t.Error("program not stored")
	}
}

package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/flowgraph/pkg/flow"
)

var (
	listDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
	listAutoStyle = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
)

// NodePickerModel is the bubbletea model for choosing the node to delete.
type NodePickerModel struct {
	Nodes    []flow.Node
	Orphans  map[string]bool
	Cursor   int
	Selected *flow.Node
	Height   int
	Offset   int
}

// NewNodePickerModel creates a picker over nodes. Orphans are marked.
func NewNodePickerModel(nodes []flow.Node, orphans []string) NodePickerModel {
	m := NodePickerModel{Nodes: nodes, Orphans: make(map[string]bool, len(orphans)), Height: 15}
	for _, id := range orphans {
		m.Orphans[id] = true
	}
	return m
}

func (m NodePickerModel) Init() tea.Cmd {
	return nil
}

func (m NodePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Nodes)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Nodes) == 0 {
				return m, tea.Quit
			}
			n := m.Nodes[m.Cursor]
			m.Selected = &n
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m NodePickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Node to Delete"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Nodes))
	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		n := m.Nodes[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		status := ""
		switch {
		case m.Orphans[n.ID]:
			status = "orphan"
		case n.IsAutoEnd():
			status = "auto"
		}
		rows = append(rows, []string{cursor, n.ID, n.Kind.String(), n.Label, status})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Node", "Kind", "Label", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			idx := m.Offset + row
			if idx >= len(m.Nodes) {
				return lipgloss.NewStyle()
			}
			n := m.Nodes[idx]
			base := lipgloss.NewStyle()
			switch {
			case m.Orphans[n.ID]:
				base = base.Foreground(colorYellow)
			case n.IsAutoEnd():
				base = listAutoStyle
			}
			if idx == m.Cursor {
				return base.Bold(true).Foreground(colorCyan)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Nodes))))
	return b.String()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/evfinkn/speechviz-sub000/services/annotate"
)

// treeRow is one visible line of the annotation tree: a node plus its
// depth in the hierarchy.
type treeRow struct {
	node  annotate.NodeView
	depth int
}

// treeModel is the bubbletea model for browsing and editing one
// document's annotation tree.
//
// # Thread Safety
//
// The model runs inside the bubbletea event loop; service calls are
// synchronous and the model is never shared across goroutines.
type treeModel struct {
	svc  *annotate.Service
	name string

	state    *annotate.StateResponse
	rows     []treeRow
	cursor   int
	expanded map[string]bool

	viewport viewport.Model
	width    int
	height   int
	ready    bool

	// Inline confirmation before a destructive remove.
	confirmRemoveID string

	status   string
	showHelp bool
	quitting bool
}

// newTreeModel loads the document's current state into a fresh model.
func newTreeModel(svc *annotate.Service, name string) (treeModel, error) {
	state, err := svc.State(context.Background(), name)
	if err != nil {
		return treeModel{}, err
	}
	m := treeModel{
		svc:      svc,
		name:     name,
		state:    state,
		expanded: make(map[string]bool),
	}
	// Top-level groups start expanded so the tree is not a wall of
	// collapsed roots.
	for _, node := range state.Nodes {
		m.expanded[node.ID] = true
	}
	m.rebuildRows()
	return m, nil
}

// Init implements tea.Model.
func (m treeModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m treeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight
		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()

	case tea.KeyMsg:
		if m.confirmRemoveID != "" {
			return m.handleConfirmKey(msg)
		}
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "?":
			m.showHelp = true

		case "j", "down":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
				m.updateViewportContent()
			}

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
				m.updateViewportContent()
			}

		case "g", "home":
			m.cursor = 0
			m.updateViewportContent()
			m.viewport.GotoTop()

		case "G", "end":
			m.cursor = len(m.rows) - 1
			m.updateViewportContent()
			m.viewport.GotoBottom()

		case "l", "right", "enter":
			if row, ok := m.currentRow(); ok && len(row.node.Children) > 0 {
				m.expanded[row.node.ID] = true
				m.rebuildRows()
				m.updateViewportContent()
			}

		case "h", "left":
			if row, ok := m.currentRow(); ok {
				m.expanded[row.node.ID] = false
				m.rebuildRows()
				m.updateViewportContent()
			}

		case " ":
			m.toggleCurrent()

		case "u":
			m.runEdit("undo", func(ctx context.Context) error {
				_, err := m.svc.Undo(ctx, m.name)
				return err
			})

		case "r":
			m.runEdit("redo", func(ctx context.Context) error {
				_, err := m.svc.Redo(ctx, m.name)
				return err
			})

		case "R":
			m.runEdit("rank", func(ctx context.Context) error {
				resp, err := m.svc.Rank(ctx, m.name)
				if err == nil {
					m.status = fmt.Sprintf("ranked %d groups", len(resp.Ranked))
				}
				return err
			})

		case "s":
			m.runEdit("save", func(ctx context.Context) error {
				resp, err := m.svc.Save(ctx, m.name)
				if err == nil {
					m.status = fmt.Sprintf("saved %d segments", resp.Segments)
				}
				return err
			})

		case "d", "delete":
			if row, ok := m.currentRow(); ok {
				if !row.node.Removable {
					m.status = fmt.Sprintf("%s is not removable", row.node.ID)
				} else {
					m.confirmRemoveID = row.node.ID
				}
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleConfirmKey resolves the pending remove confirmation.
func (m treeModel) handleConfirmKey(msg tea.KeyMsg) (treeModel, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		id := m.confirmRemoveID
		m.confirmRemoveID = ""
		m.runEdit("remove", func(ctx context.Context) error {
			_, err := m.svc.ApplyCommand(ctx, m.name, annotate.Command{
				Action: "remove",
				ID:     id,
			})
			return err
		})
	case "n", "N", "esc", "q":
		m.confirmRemoveID = ""
		m.status = "remove cancelled"
	}
	return m, nil
}

// View implements tea.Model.
func (m treeModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// ====== Actions ======

// runEdit executes one service call and refreshes the tree, surfacing
// errors on the status line instead of crashing the TUI.
func (m *treeModel) runEdit(action string, fn func(ctx context.Context) error) {
	m.status = ""
	if err := fn(context.Background()); err != nil {
		m.status = fmt.Sprintf("%s failed: %v", action, err)
		return
	}
	if m.status == "" {
		m.status = action + " ok"
	}
	m.refresh()
}

func (m *treeModel) toggleCurrent() {
	row, ok := m.currentRow()
	if !ok {
		return
	}
	m.runEdit("toggle", func(ctx context.Context) error {
		_, err := m.svc.Toggle(ctx, m.name, row.node.ID, nil)
		return err
	})
}

// refresh reloads the outline after an edit.
func (m *treeModel) refresh() {
	state, err := m.svc.State(context.Background(), m.name)
	if err != nil {
		m.status = fmt.Sprintf("refresh failed: %v", err)
		return
	}
	m.state = state
	m.rebuildRows()
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.updateViewportContent()
}

// ====== Rows ======

// rebuildRows flattens the tree into visible rows, honoring collapsed
// nodes.
func (m *treeModel) rebuildRows() {
	m.rows = m.rows[:0]
	var walk func(nodes []annotate.NodeView, depth int)
	walk = func(nodes []annotate.NodeView, depth int) {
		for _, node := range nodes {
			m.rows = append(m.rows, treeRow{node: node, depth: depth})
			if m.expanded[node.ID] {
				walk(node.Children, depth+1)
			}
		}
	}
	walk(m.state.Nodes, 0)
}

func (m *treeModel) currentRow() (treeRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return treeRow{}, false
	}
	return m.rows[m.cursor], true
}

// ====== Rendering ======

func (m *treeModel) updateViewportContent() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for i, row := range m.rows {
		b.WriteString(m.renderRow(i, row))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

func (m *treeModel) renderRow(i int, row treeRow) string {
	indent := strings.Repeat("  ", row.depth)

	marker := "  "
	if len(row.node.Children) > 0 {
		if m.expanded[row.node.ID] {
			marker = "▾ "
		} else {
			marker = "▸ "
		}
	}

	check := "[ ]"
	if row.node.Checked {
		check = "[x]"
	}

	label := row.node.Text
	if row.node.Kind == "segment" && row.node.Start != nil && row.node.End != nil {
		label = fmt.Sprintf("%s (%.2fs – %.2fs)", label, *row.node.Start, *row.node.End)
	} else if row.node.Duration > 0 {
		label = fmt.Sprintf("%s (%.2fs)", label, row.node.Duration)
	}
	if row.node.SNR != nil {
		label = fmt.Sprintf("%s snr=%.1f", label, *row.node.SNR)
	}

	line := indent + marker + check + " " + label
	switch {
	case i == m.cursor:
		return cursorStyle.Render(line)
	case row.node.Checked:
		return checkedStyle.Render(line)
	default:
		return uncheckedStyle.Render(line)
	}
}

func (m *treeModel) renderHeader() string {
	title := headerTitleStyle.Render("speechviz " + m.name)
	meta := headerMetaStyle.Render(fmt.Sprintf("  %d nodes  undo:%d redo:%d",
		m.state.NodeCount, m.state.UndoDepth, m.state.RedoDepth))
	dirty := ""
	if m.state.Dirty {
		dirty = dirtyStyle.Render("  [modified]")
	}
	return title + meta + dirty
}

func (m *treeModel) renderFooter() string {
	if m.confirmRemoveID != "" {
		return confirmStyle.Render(fmt.Sprintf("remove %s and its children? (y/n)", m.confirmRemoveID))
	}
	help := "space toggle  u undo  r redo  R rank  s save  d remove  ? help  q quit"
	line := footerHelpStyle.Render(help)
	if m.status != "" {
		line = statusStyle.Render(m.status) + "  " + line
	}
	return line
}

func (m *treeModel) renderHelp() string {
	rows := [][2]string{
		{"j/k, arrows", "move the cursor"},
		{"l/enter, h", "expand / collapse the node"},
		{"space", "toggle the node's checked state"},
		{"u / r", "undo / redo the last edit"},
		{"R", "rank SNR-bearing groups"},
		{"s", "save the session"},
		{"d", "remove the node (asks first)"},
		{"g / G", "jump to top / bottom"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString("  ")
		b.WriteString(helpKeyStyle.Render(fmt.Sprintf("%-12s", row[0])))
		b.WriteString(helpDescStyle.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}

// ====== Styles ======

var (
	headerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	headerMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	dirtyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	checkedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	uncheckedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	confirmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	footerHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
)

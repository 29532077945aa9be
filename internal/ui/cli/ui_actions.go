package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelChanges {
			m.mode = panelNamespaces
		} else {
			m.mode = panelChanges
		}
		return m, nil
	}

	if m.mode != panelNamespaces {
		var cmd tea.Cmd
		m.changeList, cmd = m.changeList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		if len(m.namespaces) == 0 {
			return m, nil
		}
		idx := m.namespaceList.Index()
		if idx < 0 || idx >= len(m.namespaces) {
			idx = 0
		}
		return loadNamespaceDetails(m, m.namespaces[idx].Name), nil
	case "esc", "backspace":
		m.hasDetails = false
		m.details = nil
		m.selectedDefIndex = 0
		return m, nil
	case "j":
		if m.hasDetails && len(m.details) > 0 {
			if m.selectedDefIndex < len(m.details)-1 {
				m.selectedDefIndex++
			}
			return m, nil
		}
	case "k":
		if m.hasDetails && len(m.details) > 0 {
			if m.selectedDefIndex > 0 {
				m.selectedDefIndex--
			}
			return m, nil
		}
	case "o":
		if !m.hasDetails {
			return m, nil
		}
		target, ok := selectedSourceTarget(m)
		if !ok {
			m.sourceJumpStatus = statusStyle.Render("No source target available.")
			return m, nil
		}
		return m, jumpToSourceCmd(target)
	}

	var cmd tea.Cmd
	m.namespaceList, cmd = m.namespaceList.Update(msg)
	return m, cmd
}

func loadNamespaceDetails(m model, ns string) model {
	if m.source == nil {
		return m
	}
	m.details = m.source.SymbolsForNamespace(ns)
	m.detailsNamespace = ns
	m.hasDetails = true
	if m.selectedDefIndex >= len(m.details) {
		m.selectedDefIndex = 0
	}
	return m
}

type sourceTarget struct {
	file string
	line int
}

func selectedSourceTarget(m model) (sourceTarget, bool) {
	if len(m.details) == 0 {
		return sourceTarget{}, false
	}
	idx := m.selectedDefIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.details) {
		idx = len(m.details) - 1
	}
	d := m.details[idx]
	return sourceTarget{file: d.File, line: d.Location.Line}, d.File != ""
}

func jumpToSourceCmd(target sourceTarget) tea.Cmd {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	args := []string{target.file}
	if strings.Contains(editor, "vim") || strings.Contains(editor, "nvim") || strings.HasSuffix(editor, "/vi") || editor == "vi" {
		args = []string{fmt.Sprintf("+%d", target.line), target.file}
	}
	cmd := exec.Command(editor, args...)
	label := fmt.Sprintf("%s:%d", target.file, target.line)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return sourceJumpResultMsg{target: label, err: err}
	})
}

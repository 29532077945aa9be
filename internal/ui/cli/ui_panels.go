package cli

import (
	"fmt"
	"strings"
)

func renderHelp(m model) string {
	keys := "Keys: tab panel | / filter | enter symbols | esc back | j/k symbol cursor | o open source | q quit"
	if m.mode == panelChanges {
		keys = "Keys: tab panel | / filter | q quit"
	}
	return statusStyle.Render(keys)
}

func renderNamespacePanel(m model) string {
	summary := m.namespaceList.View()
	details := renderNamespaceSummary(m)
	if m.hasDetails {
		details = renderNamespaceDetails(m)
	}
	return summary + "\n\n" + details
}

func renderNamespaceSummary(m model) string {
	if len(m.namespaces) == 0 {
		return statusStyle.Render("No namespaces indexed.")
	}
	idx := m.namespaceList.Index()
	if idx < 0 || idx >= len(m.namespaces) {
		idx = 0
	}
	selected := m.namespaces[idx]
	return strings.Join([]string{
		"Selected Namespace",
		fmt.Sprintf("  Name: %s", selected.Name),
		fmt.Sprintf("  Symbols: %d", selected.Symbols),
		fmt.Sprintf("  Files: %d", selected.Files),
		"  Press enter to list its definitions.",
	}, "\n")
}

func renderNamespaceDetails(m model) string {
	lines := []string{
		fmt.Sprintf("Namespace: %s (%d definitions)", m.detailsNamespace, len(m.details)),
	}
	for i, d := range m.details {
		prefix := "   "
		if i == m.selectedDefIndex {
			prefix = " ->"
		}
		label := d.Name
		if d.Signature != "" {
			label = strings.ReplaceAll(d.Signature, "\n", " ")
		}
		lines = append(lines, fmt.Sprintf("%s %-9s %s (%s:%d)", prefix, d.Kind, label, d.File, d.Location.Line))
	}
	if len(m.details) == 0 {
		lines = append(lines, "   none")
	}
	lines = append(lines, "  Press esc to close, o to open the highlighted definition.")
	return strings.Join(lines, "\n")
}

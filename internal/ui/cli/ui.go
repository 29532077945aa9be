package cli

import (
	"fmt"
	"time"

	"phelnav/internal/engine/index"
	"phelnav/internal/engine/symbols"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxRecentChanges = 50

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

// symbolSource is the part of the index the namespace drill-down reads.
type symbolSource interface {
	SymbolsForNamespace(ns string) []symbols.Definition
}

type namespaceSummary struct {
	Name    string
	Symbols int
	Files   int
}

type change struct {
	path string
	at   time.Time
}

type model struct {
	changeList    list.Model
	namespaceList list.Model
	mode          panelMode
	source        symbolSource
	changes       []change
	namespaces    []namespaceSummary
	stats         index.Stats
	lastUpdate    time.Time

	details          []symbols.Definition
	detailsNamespace string
	hasDetails       bool
	selectedDefIndex int
	sourceJumpStatus string
}

type panelMode int

const (
	panelChanges panelMode = iota
	panelNamespaces
)

type updateMsg struct {
	changed    []string
	namespaces []namespaceSummary
	stats      index.Stats
}

type sourceJumpResultMsg struct {
	target string
	err    error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := msg.Height - v - 8
		if height < 5 {
			height = 5
		}
		m.changeList.SetSize(width, height)
		m.namespaceList.SetSize(width, height)
	case updateMsg:
		m.stats = msg.stats
		m.namespaces = msg.namespaces
		m.lastUpdate = time.Now()

		now := time.Now()
		for _, p := range msg.changed {
			m.changes = append([]change{{path: p, at: now}}, m.changes...)
		}
		if len(m.changes) > maxRecentChanges {
			m.changes = m.changes[:maxRecentChanges]
		}

		items := make([]list.Item, 0, len(m.changes))
		for _, c := range m.changes {
			items = append(items, item{title: c.path, desc: "re-indexed at " + c.at.Format("15:04:05")})
		}
		m.changeList.SetItems(items)

		nsItems := make([]list.Item, 0, len(m.namespaces))
		for _, ns := range m.namespaces {
			nsItems = append(nsItems, item{
				title: ns.Name,
				desc:  fmt.Sprintf("symbols=%d files=%d", ns.Symbols, ns.Files),
			})
		}
		m.namespaceList.SetItems(nsItems)
		if m.hasDetails {
			m = loadNamespaceDetails(m, m.detailsNamespace)
		}
	case sourceJumpResultMsg:
		if msg.err != nil {
			m.sourceJumpStatus = statusStyle.Render(fmt.Sprintf("Source jump failed: %v", msg.err))
		} else {
			m.sourceJumpStatus = statusStyle.Render(fmt.Sprintf("Opened source: %s", msg.target))
		}
	}

	var cmd tea.Cmd
	if m.mode == panelChanges {
		m.changeList, cmd = m.changeList.Update(msg)
	} else {
		m.namespaceList, cmd = m.namespaceList.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | %d files | %d namespaces",
		m.lastUpdate.Format("15:04:05"), m.stats.Files, m.stats.Namespaces))

	var summary string
	switch {
	case !m.stats.Built:
		summary = pendingStyle.Render("Building index")
	case m.stats.Symbols == 0:
		summary = errorStyle.Render("No symbols indexed")
	default:
		summary = successStyle.Render(fmt.Sprintf("%d symbols", m.stats.Symbols))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Phel Symbol Index"), status, summary)
	help := renderHelp(m)

	body := m.changeList.View()
	if m.mode == panelNamespaces {
		body = renderNamespacePanel(m)
	}
	if m.sourceJumpStatus != "" {
		body += "\n\n" + m.sourceJumpStatus
	}

	return docStyle.Render(header + "\n" + help + "\n\n" + body)
}

func initialModel(source symbolSource) model {
	changeList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	changeList.Title = "Recent Changes"
	changeList.SetShowStatusBar(false)
	changeList.SetFilteringEnabled(true)

	namespaceList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	namespaceList.Title = "Namespace Explorer"
	namespaceList.SetShowStatusBar(false)
	namespaceList.SetFilteringEnabled(true)

	return model{
		changeList:    changeList,
		namespaceList: namespaceList,
		mode:          panelChanges,
		source:        source,
		lastUpdate:    time.Now(),
	}
}

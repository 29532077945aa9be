package cli

import (
	"context"

	"phelnav/internal/core/session"
	"phelnav/internal/engine/index"

	tea "github.com/charmbracelet/bubbletea"
)

func runUI(ctx context.Context, s *session.Session, feed *monitorFeed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialModel(s.Index)
	p := tea.NewProgram(m, tea.WithAltScreen())

	sendUpdate := func(changed []string) {
		p.Send(updateMsg{
			changed:    changed,
			namespaces: namespaceSummaries(s.Index),
			stats:      s.Index.Stats(),
		})
	}

	go func() {
		sendUpdate(nil)
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case paths := <-feed.updates:
				sendUpdate(paths)
			}
		}
	}()

	_, err := p.Run()
	return err
}

func namespaceSummaries(idx *index.Index) []namespaceSummary {
	names := idx.Namespaces()
	out := make([]namespaceSummary, 0, len(names))
	for _, ns := range names {
		defs := idx.SymbolsForNamespace(ns)
		files := make(map[string]bool)
		for _, d := range defs {
			files[d.File] = true
		}
		out = append(out, namespaceSummary{Name: ns, Symbols: len(defs), Files: len(files)})
	}
	return out
}

package cli

import (
	"testing"

	"phelnav/internal/engine/index"
	"phelnav/internal/engine/symbols"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeSource map[string][]symbols.Definition

func (f fakeSource) SymbolsForNamespace(ns string) []symbols.Definition {
	return f[ns]
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_ChangesAndPanelToggle(t *testing.T) {
	m := initialModel(nil)

	updated, _ := m.Update(updateMsg{
		changed: []string{"/p/a.phel", "/p/b.phel"},
		namespaces: []namespaceSummary{
			{Name: "util", Symbols: 2, Files: 1},
			{Name: "main", Symbols: 1, Files: 1},
		},
		stats: index.Stats{Files: 2, Symbols: 3, Namespaces: 2, Built: true},
	})
	state, ok := updated.(model)
	if !ok {
		t.Fatalf("expected model type, got %T", updated)
	}
	if len(state.changeList.Items()) != 2 {
		t.Fatalf("expected 2 change items, got %d", len(state.changeList.Items()))
	}
	if state.changes[0].path != "/p/b.phel" {
		t.Fatalf("expected newest change first, got %s", state.changes[0].path)
	}
	if len(state.namespaceList.Items()) != 2 {
		t.Fatalf("expected 2 namespace items, got %d", len(state.namespaceList.Items()))
	}
	if state.stats.Symbols != 3 {
		t.Fatalf("expected stats to be applied, got %+v", state.stats)
	}

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	if state.mode != panelNamespaces {
		t.Fatalf("expected namespace panel after tab, got %v", state.mode)
	}

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	if state.mode != panelChanges {
		t.Fatalf("expected changes panel after second tab, got %v", state.mode)
	}
}

func TestModel_RecentChangesAreCapped(t *testing.T) {
	m := initialModel(nil)
	paths := make([]string, maxRecentChanges+10)
	for i := range paths {
		paths[i] = "/p/f.phel"
	}
	updated, _ := m.Update(updateMsg{changed: paths})
	if got := len(updated.(model).changes); got != maxRecentChanges {
		t.Fatalf("expected %d changes, got %d", maxRecentChanges, got)
	}
}

func TestModel_NamespaceDrillDown(t *testing.T) {
	source := fakeSource{
		"util": {
			{ShortNamespace: "util", Name: "helper", Kind: symbols.KindFunction, File: "/p/util.phel", Location: symbols.Location{Line: 2, Column: 1}},
			{ShortNamespace: "util", Name: "limit", Kind: symbols.KindValue, File: "/p/util.phel", Location: symbols.Location{Line: 4, Column: 1}},
		},
	}
	m := initialModel(source)
	updated, _ := m.Update(updateMsg{
		namespaces: []namespaceSummary{{Name: "util", Symbols: 2, Files: 1}},
		stats:      index.Stats{Files: 1, Symbols: 2, Namespaces: 1, Built: true},
	})
	state := updated.(model)

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state = updated.(model)
	if !state.hasDetails {
		t.Fatal("expected namespace details to open")
	}
	if len(state.details) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(state.details))
	}

	updated, _ = state.Update(runeKey('j'))
	state = updated.(model)
	updated, _ = state.Update(runeKey('j'))
	state = updated.(model)
	if state.selectedDefIndex != 1 {
		t.Fatalf("expected selection to stop at last definition, got %d", state.selectedDefIndex)
	}
	target, ok := selectedSourceTarget(state)
	if !ok || target.line != 4 || target.file != "/p/util.phel" {
		t.Fatalf("unexpected source target %+v", target)
	}

	updated, _ = state.Update(runeKey('k'))
	state = updated.(model)
	if state.selectedDefIndex != 0 {
		t.Fatalf("expected selection back at first definition, got %d", state.selectedDefIndex)
	}

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEsc})
	state = updated.(model)
	if state.hasDetails {
		t.Fatal("expected namespace details to close on esc")
	}
}

func TestModel_EnterWithoutNamespacesIsNoop(t *testing.T) {
	m := initialModel(fakeSource{})
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated, _ = updated.(model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	if updated.(model).hasDetails {
		t.Fatal("expected no details without namespaces")
	}
}

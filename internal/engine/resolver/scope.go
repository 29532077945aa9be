package resolver

import (
	"phelnav/internal/engine/parser"
)

// visibleBindings lists the local bindings in scope at use, innermost first.
// Within one binding vector later clauses come before earlier ones so the
// first match for a name is the one that shadows the rest.
func visibleBindings(use *parser.Node) []*parser.Node {
	var out []*parser.Node
	var prev *parser.Node
	child := use
	for p := use.Parent; p != nil; prev, child, p = child, p, p.Parent {
		if p.Kind != parser.KindList {
			continue
		}
		out = append(out, bindingsIntroduced(p, child, prev)...)
	}
	return out
}

// resolveLocal returns the innermost binding of name visible at use.
func resolveLocal(use *parser.Node, name string) *parser.Node {
	for _, b := range visibleBindings(use) {
		if b.Text == name {
			return b
		}
	}
	return nil
}

// bindingsIntroduced returns what form binds for code inside child. prev is
// the child of child on the path to the use, needed when the use sits inside
// a binding vector itself.
func bindingsIntroduced(form, child, prev *parser.Node) []*parser.Node {
	head := form.HeadSymbol()
	switch {
	case bindingHeads[head]:
		vec := form.Form(1)
		if vec == nil || vec.Kind != parser.KindVector {
			return nil
		}
		limit := len(vec.Children)
		if child == vec {
			if prev == nil {
				return nil
			}
			limit = prev.Index()
		} else if child.Index() < 1 {
			return nil
		}
		var out []*parser.Node
		for idx := len(vec.Children) - 1; idx >= 0; idx-- {
			if isBindingSlot(head, vec, idx) && clauseEnd(head, vec, idx) < limit {
				syms := patternSymbols(vec.Children[idx])
				for i := len(syms) - 1; i >= 0; i-- {
					out = append(out, syms[i])
				}
			}
		}
		return out

	case isFnForm(form):
		params := paramVector(form)
		if params == nil || child.Index() <= params.Index() {
			return nil
		}
		return patternSymbols(params)

	case isArity(form):
		if child == form.Form(0) {
			return nil
		}
		return patternSymbols(form.Form(0))

	case head == "catch":
		if child.Index() > 2 {
			if name := form.Form(2); name != nil && name.Kind == parser.KindSymbol {
				return []*parser.Node{name}
			}
		}
	}
	return nil
}

func isArity(form *parser.Node) bool {
	v := form.Form(0)
	return v != nil && v.Kind == parser.KindVector && form.Parent != nil && isFnForm(form.Parent)
}

// allParameters returns every function parameter named name in the file.
func allParameters(file *parser.File, name string) []*parser.Node {
	var out []*parser.Node
	file.Root.Walk(func(n *parser.Node) bool {
		if n.Kind == parser.KindList && isFnForm(n) {
			for _, v := range arityVectors(n) {
				for _, sym := range patternSymbols(v) {
					if sym.Text == name {
						out = append(out, sym)
					}
				}
			}
		}
		return true
	})
	return out
}

// topLevelDefinitions returns the name symbols of top-level defining forms
// that define name.
func topLevelDefinitions(file *parser.File, name string) []*parser.Node {
	var out []*parser.Node
	for _, form := range file.TopLevel() {
		if form.Kind != parser.KindList || !definingHeads[form.HeadSymbol()] {
			continue
		}
		if n := nameOf(form); n != nil && n.Text == name {
			out = append(out, n)
		}
	}
	return out
}

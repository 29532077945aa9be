package resolver

import (
	"phelnav/internal/engine/parser"
)

// definingHeads introduce a named top-level definition in their second slot.
var definingHeads = map[string]bool{
	"def":          true,
	"defn":         true,
	"defmacro":     true,
	"defstruct":    true,
	"definterface": true,
	"defexception": true,
	"declare":      true,
	"def-":         true,
	"defn-":        true,
	"defmacro-":    true,
}

// namedFnHeads carry a parameter vector after the name.
var namedFnHeads = map[string]bool{
	"defn":      true,
	"defn-":     true,
	"defmacro":  true,
	"defmacro-": true,
}

// bindingHeads open a binding vector in their second slot.
var bindingHeads = map[string]bool{
	"let":     true,
	"if-let":  true,
	"for":     true,
	"binding": true,
	"loop":    true,
	"foreach": true,
	"dofor":   true,
}

// forVerbs follow a binding pattern inside for/dofor vectors.
var forVerbs = map[string]bool{
	":in":     true,
	":keys":   true,
	":pairs":  true,
	":range":  true,
	":reduce": true,
}

type siteKind int

const (
	siteNone siteKind = iota
	siteParameter
	siteLocal
	siteCatch
	siteTopLevel
)

// site describes where a symbol sits relative to the form that binds it.
type site struct {
	kind siteKind
	form *parser.Node // binding form: fn, arity list, let-like list, catch or def
}

func (s site) isDefinition() bool {
	return s.kind != siteNone
}

func (s site) isLocal() bool {
	return s.kind == siteParameter || s.kind == siteLocal || s.kind == siteCatch
}

// classifySite climbs from sym through destructuring containers until it
// reaches the form that decides whether sym is bound there.
func classifySite(sym *parser.Node) site {
	if sym == nil || sym.Kind != parser.KindSymbol || sym.Text == "&" {
		return site{}
	}
	child := sym
	for p := sym.Parent; p != nil; child, p = p, p.Parent {
		switch p.Kind {
		case parser.KindVector:
			if owner := paramOwner(p); owner != nil {
				return site{kind: siteParameter, form: owner}
			}
			if owner := bindingOwner(p); owner != nil {
				if isBindingSlot(owner.HeadSymbol(), p, child.Index()) {
					return site{kind: siteLocal, form: owner}
				}
				return site{}
			}
		case parser.KindMap, parser.KindMeta:
		case parser.KindList:
			head := p.HeadSymbol()
			idx := child.Index()
			if definingHeads[head] && idx == 1 && nameOf(p) == sym {
				return site{kind: siteTopLevel, form: p}
			}
			if head == "catch" && idx == 2 && child == sym {
				return site{kind: siteCatch, form: p}
			}
			return site{}
		default:
			return site{}
		}
	}
	return site{}
}

// nameOf returns the defined-name symbol of a defining form.
func nameOf(form *parser.Node) *parser.Node {
	return form.NameSymbol(1)
}

// paramOwner returns the function form or arity list whose parameter vector is v.
func paramOwner(v *parser.Node) *parser.Node {
	p := v.Parent
	if p == nil || p.Kind != parser.KindList {
		return nil
	}
	if paramVector(p) == v {
		return p
	}
	// Multi-arity: ([x] body) nested in a function form.
	if p.Form(0) == v && p.Parent != nil && isFnForm(p.Parent) {
		return p
	}
	return nil
}

func isFnForm(n *parser.Node) bool {
	head := n.HeadSymbol()
	return namedFnHeads[head] || head == "fn"
}

// paramVector returns the parameter vector of a single-arity function form:
// the first vector after the name (defn) or after fn, before any body list.
func paramVector(fn *parser.Node) *parser.Node {
	if fn == nil || fn.Kind != parser.KindList {
		return nil
	}
	start := 0
	switch head := fn.HeadSymbol(); {
	case namedFnHeads[head]:
		start = 2
	case head == "fn":
		start = 1
	default:
		return nil
	}
	for i := start; i < len(fn.Children); i++ {
		switch fn.Children[i].Kind {
		case parser.KindVector:
			return fn.Children[i]
		case parser.KindList:
			return nil
		}
	}
	return nil
}

// arityVectors returns every parameter vector of a function form.
func arityVectors(fn *parser.Node) []*parser.Node {
	if v := paramVector(fn); v != nil {
		return []*parser.Node{v}
	}
	var out []*parser.Node
	for _, child := range fn.Children[1:] {
		if child.Kind == parser.KindList {
			if v := child.Form(0); v != nil && v.Kind == parser.KindVector {
				out = append(out, v)
			}
		}
	}
	return out
}

// bindingOwner returns the let-like form whose binding vector is v.
func bindingOwner(v *parser.Node) *parser.Node {
	p := v.Parent
	if p == nil || p.Kind != parser.KindList || v.Index() != 1 {
		return nil
	}
	if bindingHeads[p.HeadSymbol()] {
		return p
	}
	return nil
}

// isBindingSlot reports whether element idx of a binding vector is a pattern.
func isBindingSlot(head string, vec *parser.Node, idx int) bool {
	switch head {
	case "for", "dofor":
		next := vec.Form(idx + 1)
		return next != nil && next.Kind == parser.KindKeyword && forVerbs[next.Text]
	case "foreach":
		return idx < len(vec.Children)-1
	default:
		return idx%2 == 0
	}
}

// clauseEnd returns the index of the last element belonging to the binding
// clause that starts at idx; the binding becomes visible after it.
func clauseEnd(head string, vec *parser.Node, idx int) int {
	switch head {
	case "for", "dofor":
		return idx + 2
	case "foreach":
		return len(vec.Children) - 1
	default:
		return idx + 1
	}
}

// patternSymbols collects the names bound by a destructuring pattern.
func patternSymbols(pattern *parser.Node) []*parser.Node {
	var out []*parser.Node
	pattern.Walk(func(n *parser.Node) bool {
		switch n.Kind {
		case parser.KindSymbol:
			if n.Text != "&" {
				out = append(out, n)
			}
			return false
		case parser.KindVector, parser.KindMap, parser.KindMeta:
			return true
		default:
			return false
		}
	})
	return out
}

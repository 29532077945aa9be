// Package symbols extracts public top-level definitions from a parsed file.
package symbols

import (
	"strings"

	"phelnav/internal/engine/namespace"
	"phelnav/internal/engine/parser"
)

var headKinds = map[string]Kind{
	"defn":         KindFunction,
	"defmacro":     KindMacro,
	"def":          KindValue,
	"defstruct":    KindStruct,
	"definterface": KindInterface,
}

var privateHeads = map[string]bool{
	"defn-":     true,
	"def-":      true,
	"defmacro-": true,
}

const privateMarker = ":private"

// KindForHead maps a defining head, private variants included, to its kind.
func KindForHead(head string) (Kind, bool) {
	kind, ok := headKinds[strings.TrimSuffix(head, "-")]
	return kind, ok
}

// Scan maps one file's tree to its public definitions. A file without a
// namespace declaration yields nothing.
func Scan(file *parser.File) []Definition {
	if file == nil {
		return nil
	}
	info, ok := namespace.Parse(file)
	if !ok {
		return nil
	}

	var defs []Definition
	for _, form := range file.TopLevel() {
		if form == info.Form || form.Kind != parser.KindList {
			continue
		}
		head := form.HeadSymbol()
		if privateHeads[head] {
			continue
		}
		kind, ok := headKinds[head]
		if !ok {
			continue
		}
		nameNode := form.NameSymbol(1)
		if nameNode == nil || nameNode.Text == "" {
			continue
		}
		meta := metadataForms(form, kind)
		if isPrivate(meta) {
			continue
		}

		defs = append(defs, Definition{
			FullNamespace:  info.Full,
			ShortNamespace: info.Short,
			Name:           nameNode.Text,
			Kind:           kind,
			Signature:      signature(kind, nameNode.Text, form),
			Docstring:      docstring(meta),
			File:           file.Path,
			Location: Location{
				Line:   nameNode.Start.Line,
				Column: nameNode.Start.Column,
				Offset: nameNode.Start.Offset,
			},
		})
	}
	return defs
}

// metadataForms returns the forms that may carry a docstring or metadata:
// a ^meta wrapper on the name, the optional slot of a four-form def, and
// anything between a function's name and its parameters.
func metadataForms(form *parser.Node, kind Kind) []*parser.Node {
	var meta []*parser.Node
	for name := form.Form(1); name != nil && name.Kind == parser.KindMeta; name = name.Form(len(name.Children) - 1) {
		meta = append(meta, name.Form(0))
	}
	if kind == KindValue {
		if len(form.Children) >= 4 {
			meta = append(meta, form.Form(2))
		}
		return meta
	}
	for _, child := range form.Children[2:] {
		if child.Kind == parser.KindVector || child.Kind == parser.KindList {
			break
		}
		meta = append(meta, child)
	}
	return meta
}

func isPrivate(meta []*parser.Node) bool {
	for _, m := range meta {
		switch m.Kind {
		case parser.KindKeyword:
			if m.Text == privateMarker {
				return true
			}
		case parser.KindMap:
			if v, ok := mapValue(m, privateMarker); ok && v.Text != "false" && v.Text != "nil" {
				return true
			}
		}
	}
	return false
}

func docstring(meta []*parser.Node) string {
	for _, m := range meta {
		switch m.Kind {
		case parser.KindString:
			return unquote(m.Text)
		case parser.KindMap:
			if v, ok := mapValue(m, ":doc"); ok && v.Kind == parser.KindString {
				return unquote(v.Text)
			}
		}
	}
	return ""
}

func mapValue(m *parser.Node, key string) (*parser.Node, bool) {
	for i := 0; i+1 < len(m.Children); i += 2 {
		k := m.Children[i]
		if k.Kind == parser.KindKeyword && k.Text == key {
			return m.Children[i+1], true
		}
	}
	return nil, false
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`).Replace(s)
}

func signature(kind Kind, name string, form *parser.Node) string {
	switch kind {
	case KindInterface:
		return "(" + name + " ...)"
	case KindFunction, KindMacro, KindStruct:
	default:
		return "(" + name + ")"
	}

	rest := form.Children[2:]
	for _, child := range rest {
		if child.Kind == parser.KindVector {
			return formatSignature(name, child)
		}
	}

	var arities []string
	for _, child := range rest {
		if child.Kind != parser.KindList {
			continue
		}
		if params := child.Form(0); params != nil && params.Kind == parser.KindVector {
			arities = append(arities, formatSignature(name, params))
		}
	}
	if len(arities) > 0 {
		return strings.Join(arities, "\n")
	}
	return "(" + name + ")"
}

func formatSignature(name string, params *parser.Node) string {
	parts := make([]string, 0, len(params.Children)+1)
	parts = append(parts, name)
	for _, p := range params.Children {
		parts = append(parts, p.Text)
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Package namespace reads a file's namespace declaration and its import table.
package namespace

import (
	"strings"

	"phelnav/internal/engine/parser"
)

const (
	// Separator splits namespace segments, as in phel\str.
	Separator = `\`
	// DeclarationHead is the head symbol of the namespace form.
	DeclarationHead = "ns"
	// Core is implicitly available in every file.
	Core = "core"
	// Interop qualifies host-language calls, which are never resolved.
	Interop = "php"
)

type Require struct {
	Full   string
	Short  string
	Alias  string
	Refers []string
}

type Info struct {
	Full     string
	Short    string
	Form     *parser.Node
	Requires []Require

	aliases map[string]string // alias -> short namespace
	refers  map[string]string // referred name -> short namespace
	byShort map[string]bool
	byFull  map[string]string // full -> short
}

// ShortName returns the last segment of a namespace.
func ShortName(full string) string {
	if i := strings.LastIndex(full, Separator); i >= 0 {
		return full[i+len(Separator):]
	}
	return full
}

// Declaration returns the first top-level list headed by ns, or nil.
func Declaration(file *parser.File) *parser.Node {
	for _, form := range file.TopLevel() {
		if form.Kind == parser.KindList && form.HeadSymbol() == DeclarationHead {
			return form
		}
	}
	return nil
}

// Parse extracts the namespace and import table. ok is false when the file
// has no usable namespace declaration.
func Parse(file *parser.File) (*Info, bool) {
	decl := Declaration(file)
	if decl == nil {
		return nil, false
	}
	name := decl.NameSymbol(1)
	if name == nil || name.Text == "" {
		return nil, false
	}

	info := &Info{
		Full:    name.Text,
		Short:   ShortName(name.Text),
		Form:    decl,
		aliases: make(map[string]string),
		refers:  make(map[string]string),
		byShort: make(map[string]bool),
		byFull:  make(map[string]string),
	}
	for _, clause := range decl.Children[2:] {
		if clause.Kind != parser.KindList || !isKeyword(clause.Form(0), ":require") {
			continue
		}
		info.parseRequireClause(clause.Children[1:])
	}
	return info, true
}

func (i *Info) parseRequireClause(forms []*parser.Node) {
	for idx := 0; idx < len(forms); idx++ {
		form := forms[idx]
		switch form.Kind {
		case parser.KindSymbol:
			consumed := i.addRequire(form.Text, forms[idx+1:])
			idx += consumed
		case parser.KindVector:
			if head := form.Form(0); head != nil && head.Kind == parser.KindSymbol {
				i.addRequire(head.Text, form.Children[1:])
			}
		}
	}
}

// addRequire records one required namespace followed by its options and
// returns how many option forms it consumed.
func (i *Info) addRequire(full string, options []*parser.Node) int {
	req := Require{Full: full, Short: ShortName(full)}
	consumed := 0
	for consumed+1 < len(options) {
		key, value := options[consumed], options[consumed+1]
		switch {
		case isKeyword(key, ":as") && value.Kind == parser.KindSymbol:
			req.Alias = value.Text
		case isKeyword(key, ":refer") && value.Kind == parser.KindVector:
			for _, sym := range value.Children {
				if sym.Kind == parser.KindSymbol {
					req.Refers = append(req.Refers, sym.Text)
				}
			}
		default:
			return i.record(req, consumed)
		}
		consumed += 2
	}
	return i.record(req, consumed)
}

func (i *Info) record(req Require, consumed int) int {
	i.Requires = append(i.Requires, req)
	i.byShort[req.Short] = true
	i.byFull[req.Full] = req.Short
	if req.Alias != "" {
		i.aliases[req.Alias] = req.Short
	}
	for _, name := range req.Refers {
		i.refers[name] = req.Short
	}
	return consumed
}

// Aliases returns a copy of the alias -> short namespace map.
func (i *Info) Aliases() map[string]string {
	out := make(map[string]string, len(i.aliases))
	for k, v := range i.aliases {
		out[k] = v
	}
	return out
}

func (i *Info) ResolveAlias(alias string) (string, bool) {
	short, ok := i.aliases[alias]
	return short, ok
}

// IsImported reports whether a short namespace is already required, directly
// or under an alias.
func (i *Info) IsImported(short string) bool {
	if short == Core || short == i.Short {
		return true
	}
	return i.byShort[short]
}

// AliasFor returns the alias a short namespace was required under.
func (i *Info) AliasFor(short string) (string, bool) {
	for _, req := range i.Requires {
		if req.Short == short && req.Alias != "" {
			return req.Alias, true
		}
	}
	return "", false
}

// ResolveQualifier maps the qualifier of a qualified symbol to a short
// namespace. Aliases win over plain short names.
func (i *Info) ResolveQualifier(qualifier string) (string, bool) {
	if short, ok := i.aliases[qualifier]; ok {
		return short, true
	}
	if short, ok := i.byFull[qualifier]; ok {
		return short, true
	}
	if qualifier == Core || qualifier == i.Short || qualifier == i.Full || i.byShort[qualifier] {
		return ShortName(qualifier), true
	}
	return "", false
}

// ReferredFrom returns the short namespace an unqualified name was referred from.
func (i *Info) ReferredFrom(name string) (string, bool) {
	short, ok := i.refers[name]
	return short, ok
}

// Qualify renders name the way this file would spell a reference into short.
func (i *Info) Qualify(short, name string) string {
	if short == i.Short || short == Core {
		return name
	}
	if alias, ok := i.AliasFor(short); ok {
		return alias + "/" + name
	}
	return short + "/" + name
}

func isKeyword(n *parser.Node, text string) bool {
	return n != nil && n.Kind == parser.KindKeyword && n.Text == text
}

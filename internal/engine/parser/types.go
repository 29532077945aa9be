package parser

import (
	"strings"
	"time"
)

// Kind is the discriminant of a Node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFile
	KindList
	KindVector
	KindMap
	KindSymbol
	KindKeyword
	KindString
	KindNumber
	KindLiteral
	KindReaderMacro // ' ` , ,@ @ | wrapping one form
	KindMeta        // ^meta form
)

var kindNames = map[Kind]string{
	KindInvalid:     "invalid",
	KindFile:        "file",
	KindList:        "list",
	KindVector:      "vector",
	KindMap:         "map",
	KindSymbol:      "symbol",
	KindKeyword:     "keyword",
	KindString:      "string",
	KindNumber:      "number",
	KindLiteral:     "literal",
	KindReaderMacro: "reader-macro",
	KindMeta:        "meta",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsCollection reports whether nodes of this kind hold child forms directly.
func (k Kind) IsCollection() bool {
	return k == KindList || k == KindVector || k == KindMap || k == KindFile
}

type Position struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based, counted in runes
}

type Node struct {
	Kind     Kind
	Text     string
	Start    Position
	End      Position // exclusive
	Parent   *Node
	Children []*Node
}

// Form returns the i-th child or nil when out of range.
func (n *Node) Form(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// FirstChildOfKind returns n itself when it already has kind k, otherwise the
// first descendant of kind k in pre-order, or nil.
func (n *Node) FirstChildOfKind(k Kind) *Node {
	if n == nil {
		return nil
	}
	if n.Kind == k {
		return n
	}
	for _, child := range n.Children {
		if found := child.FirstChildOfKind(k); found != nil {
			return found
		}
	}
	return nil
}

// Unwrap strips metadata wrappers (`^:kw form`, `^{...} form`) and returns
// the annotated form.
func (n *Node) Unwrap() *Node {
	for n != nil && n.Kind == KindMeta && len(n.Children) > 0 {
		n = n.Children[len(n.Children)-1]
	}
	return n
}

// NameSymbol returns the symbol a definition-like form names in position i,
// looking through metadata but never into it.
func (n *Node) NameSymbol(i int) *Node {
	return n.Form(i).Unwrap().FirstChildOfKind(KindSymbol)
}

// HeadSymbol returns the text of a list's leading symbol, looking through a
// wrapper when the head is not a bare symbol.
func (n *Node) HeadSymbol() string {
	if n == nil || n.Kind != KindList {
		return ""
	}
	head := n.Form(0).FirstChildOfKind(KindSymbol)
	if head == nil {
		return ""
	}
	return head.Text
}

// Index returns the position of n among its parent's children, or -1.
func (n *Node) Index() int {
	if n == nil || n.Parent == nil {
		return -1
	}
	for i, sibling := range n.Parent.Children {
		if sibling == n {
			return i
		}
	}
	return -1
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Contains reports whether offset falls inside n; the end offset counts so a
// cursor placed right after a token still selects it.
func (n *Node) Contains(offset int) bool {
	return n != nil && offset >= n.Start.Offset && offset <= n.End.Offset
}

// IsAncestorOf reports whether n encloses other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other.Parent; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}
	return false
}

type File struct {
	Path     string
	Source   []byte
	Root     *Node
	ParsedAt time.Time
}

// TopLevel returns the file's top-level forms.
func (f *File) TopLevel() []*Node {
	if f == nil || f.Root == nil {
		return nil
	}
	return f.Root.Children
}

// Symbols returns every symbol node in document order.
func (f *File) Symbols() []*Node {
	var out []*Node
	if f == nil {
		return out
	}
	f.Root.Walk(func(n *Node) bool {
		if n.Kind == KindSymbol {
			out = append(out, n)
		}
		return true
	})
	return out
}

// NodeAt returns the deepest node covering offset.
func (f *File) NodeAt(offset int) *Node {
	if f == nil || f.Root == nil {
		return nil
	}
	current := f.Root
	for {
		var next *Node
		for _, child := range current.Children {
			if child.Contains(offset) {
				next = child
				break
			}
		}
		if next == nil {
			return current
		}
		current = next
	}
}

// SymbolAt returns the symbol under a 1-based line/column, or nil.
func (f *File) SymbolAt(line, column int) *Node {
	offset, ok := f.OffsetOf(line, column)
	if !ok {
		return nil
	}
	n := f.NodeAt(offset)
	if n == nil || n.Kind != KindSymbol {
		return nil
	}
	return n
}

// OffsetOf converts a 1-based line/column into a byte offset.
func (f *File) OffsetOf(line, column int) (int, bool) {
	if f == nil || line < 1 || column < 1 {
		return 0, false
	}
	src := string(f.Source)
	offset := 0
	for l := 1; l < line; l++ {
		idx := strings.IndexByte(src[offset:], '\n')
		if idx < 0 {
			return 0, false
		}
		offset += idx + 1
	}
	col := 1
	for i, r := range src[offset:] {
		if col == column {
			return offset + i, true
		}
		if r == '\n' {
			return 0, false
		}
		col++
	}
	if col == column {
		return len(src), true
	}
	return 0, false
}

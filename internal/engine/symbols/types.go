package symbols

import "fmt"

type Kind int

const (
	KindFunction Kind = iota
	KindMacro
	KindValue
	KindStruct
	KindInterface
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMacro:
		return "macro"
	case KindValue:
		return "value"
	case KindStruct:
		return "struct"
	case KindInterface:
		return "interface"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Keyword returns the defining head that produces this kind.
func (k Kind) Keyword() string {
	for head, kind := range headKinds {
		if kind == k {
			return head
		}
	}
	return ""
}

type Location struct {
	Line   int
	Column int
	Offset int
}

// Definition is one public top-level declaration. Values are immutable once
// scanned; a rescan replaces them.
type Definition struct {
	FullNamespace  string
	ShortNamespace string
	Name           string
	Kind           Kind
	Signature      string
	Docstring      string
	File           string
	Location       Location
}

func (d Definition) QualifiedName() string {
	return d.ShortNamespace + "/" + d.Name
}

func (d Definition) String() string {
	return fmt.Sprintf("%s %s (%s:%d)", d.Kind, d.QualifiedName(), d.File, d.Location.Line)
}

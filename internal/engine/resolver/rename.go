package resolver

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/engine/namespace"
	"phelnav/internal/engine/parser"
)

const qualifierSeparator = "/"

// Name returns the part of a possibly qualified token after the last slash.
// A token ending in a slash, such as "/" or "core//", names the slash itself.
func Name(token string) string {
	start, _ := ReferenceRange(token)
	return token[start:]
}

// Qualifier returns the namespace part of a qualified token, or "".
func Qualifier(token string) string {
	start, _ := ReferenceRange(token)
	if start == 0 {
		return ""
	}
	return token[:start-len(qualifierSeparator)]
}

// ReferenceRange returns the byte range of the name a token refers by: the
// suffix after the last slash for a qualified token, the whole token otherwise.
func ReferenceRange(token string) (start, end int) {
	end = len(token)
	if strings.HasSuffix(token, "//") && len(token) > 2 {
		return end - 1, end
	}
	i := strings.LastIndex(token, qualifierSeparator)
	if i <= 0 || i == end-1 {
		return 0, end
	}
	return i + 1, end
}

// RenameToken replaces the name of a token and keeps its qualifier.
func RenameToken(token, newName string) string {
	start, _ := ReferenceRange(token)
	return token[:start] + newName
}

// Edit replaces the text between Start and End of one file.
type Edit struct {
	Path    string          `json:"path"`
	Start   parser.Position `json:"start"`
	End     parser.Position `json:"end"`
	NewText string          `json:"new_text"`
}

// editFor covers only the name part of a symbol node.
func editFor(path string, n *parser.Node, newName string) Edit {
	start, _ := ReferenceRange(n.Text)
	prefix := n.Text[:start]
	return Edit{
		Path: path,
		Start: parser.Position{
			Offset: n.Start.Offset + start,
			Line:   n.Start.Line,
			Column: n.Start.Column + utf8.RuneCountInString(prefix),
		},
		End:     n.End,
		NewText: newName,
	}
}

// RenameEdits renames the definition behind occ and every usage of it. The
// occurrence may be the definition itself or any usage resolving to it.
func (r *Resolver) RenameEdits(ctx context.Context, occ Occurrence, newName string) ([]Edit, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}
	mode := r.Classify(occ)
	if mode == ModeNone {
		return nil, errs.New(errs.CodeNotFound, "no symbol at position")
	}
	if Qualifier(occ.Node.Text) == namespace.Interop {
		return nil, errs.AddContext(errs.New(errs.CodeNotSupported, "interop symbols cannot be renamed"), errs.CtxSymbol, occ.Node.Text)
	}

	def := Target{Path: occ.File.Path, Node: occ.Node, file: occ.File}
	if mode == ModeUsageToDefinitions {
		targets, err := r.Definitions(ctx, occ)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, errs.AddContext(errs.New(errs.CodeNotFound, "no definition found"), errs.CtxSymbol, occ.Node.Text)
		}
		def = targets[0]
	}

	usages, err := r.MultiResolve(ctx, def.Occurrence())
	if err != nil {
		return nil, err
	}

	edits := []Edit{editFor(def.Path, def.Node, newName)}
	for _, u := range usages {
		edits = append(edits, editFor(u.Path, u.Node, newName))
	}
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Path != edits[j].Path {
			return edits[i].Path < edits[j].Path
		}
		return edits[i].Start.Offset < edits[j].Start.Offset
	})
	return edits, nil
}

// ValidateName checks that name reads back as one unqualified symbol.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, qualifierSeparator) {
		return errs.AddContext(errs.New(errs.CodeValidationError, "invalid symbol name"), errs.CtxSymbol, name)
	}
	file, err := parser.Parse("", []byte(name))
	if err != nil {
		return errs.AddContext(errs.Wrap(err, errs.CodeValidationError, "invalid symbol name"), errs.CtxSymbol, name)
	}
	top := file.TopLevel()
	if len(top) != 1 || top[0].Kind != parser.KindSymbol || top[0].Text != name {
		return errs.AddContext(errs.New(errs.CodeValidationError, "invalid symbol name"), errs.CtxSymbol, name)
	}
	return nil
}

// ApplyEdits rewrites src with the edits that belong to path. Edits must not
// overlap.
func ApplyEdits(path string, src []byte, edits []Edit) []byte {
	var mine []Edit
	for _, e := range edits {
		if e.Path == path {
			mine = append(mine, e)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].Start.Offset > mine[j].Start.Offset })
	out := append([]byte(nil), src...)
	for _, e := range mine {
		if e.Start.Offset < 0 || e.End.Offset > len(out) || e.Start.Offset > e.End.Offset {
			continue
		}
		out = append(out[:e.Start.Offset], append([]byte(e.NewText), out[e.End.Offset:]...)...)
	}
	return out
}

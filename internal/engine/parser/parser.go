package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"phelnav/internal/shared/observability"
)

// DefaultExtensions lists the source extensions recognised when none are configured.
var DefaultExtensions = []string{".phel"}

type Parser struct {
	extensions map[string]bool
}

func NewParser(extensions []string) *Parser {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	p := &Parser{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		p.extensions[normalized] = true
	}
	return p
}

// IsSourceFile reports whether path carries a recognised extension.
func (p *Parser) IsSourceFile(path string) bool {
	return p.extensions[strings.ToLower(filepath.Ext(path))]
}

func (p *Parser) Extensions() []string {
	out := make([]string, 0, len(p.extensions))
	for ext := range p.extensions {
		out = append(out, ext)
	}
	return out
}

// ReadFile loads and parses one file from disk.
func (p *Parser) ReadFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.ParseFile(path, src)
}

// ParseFile parses src. A syntax error still yields the partial tree read so
// far together with the error.
func (p *Parser) ParseFile(path string, src []byte) (*File, error) {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.Observe(time.Since(start).Seconds())
	}()
	return Parse(path, src)
}

type SyntaxError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

// Parse reads Phel source into a tree rooted at a KindFile node.
func Parse(path string, src []byte) (*File, error) {
	r := &reader{path: path, src: src, pos: Position{Offset: 0, Line: 1, Column: 1}}
	root := &Node{Kind: KindFile, Start: r.pos}

	for {
		r.skipTrivia()
		if r.eof() {
			break
		}
		if isCloser(r.peek()) {
			r.fail(r.pos, fmt.Sprintf("unexpected %q", r.peek()))
			r.advance()
			continue
		}
		if form := r.readForm(root); form != nil {
			root.Children = append(root.Children, form)
		}
	}

	root.End = r.pos
	root.Text = string(src)
	file := &File{Path: path, Source: src, Root: root, ParsedAt: time.Now()}
	if r.err != nil {
		return file, r.err
	}
	return file, nil
}

type reader struct {
	path string
	src  []byte
	pos  Position
	err  *SyntaxError
}

func (r *reader) eof() bool {
	return r.pos.Offset >= len(r.src)
}

func (r *reader) peek() byte {
	return r.src[r.pos.Offset]
}

func (r *reader) peekAt(delta int) byte {
	i := r.pos.Offset + delta
	if i >= len(r.src) {
		return 0
	}
	return r.src[i]
}

func (r *reader) advance() {
	b := r.src[r.pos.Offset]
	r.pos.Offset++
	switch {
	case b == '\n':
		r.pos.Line++
		r.pos.Column = 1
	case b&0xC0 != 0x80:
		r.pos.Column++
	}
}

// fail keeps the first error only.
func (r *reader) fail(at Position, msg string) {
	if r.err != nil {
		return
	}
	r.err = &SyntaxError{Path: r.path, Line: at.Line, Column: at.Column, Message: msg}
}

func (r *reader) skipTrivia() {
	for !r.eof() {
		c := r.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			r.advance()
		case c == ';':
			r.skipLine()
		case c == '#':
			switch r.peekAt(1) {
			case '|':
				r.skipBlockComment()
			case '_':
				r.advance()
				r.advance()
				r.skipTrivia()
				if !r.eof() && !isCloser(r.peek()) {
					r.readForm(nil)
				}
			default:
				r.skipLine()
			}
		default:
			return
		}
	}
}

func (r *reader) skipLine() {
	for !r.eof() && r.peek() != '\n' {
		r.advance()
	}
}

func (r *reader) skipBlockComment() {
	start := r.pos
	r.advance()
	r.advance()
	for !r.eof() {
		if r.peek() == '|' && r.peekAt(1) == '#' {
			r.advance()
			r.advance()
			return
		}
		r.advance()
	}
	r.fail(start, "unterminated block comment")
}

func (r *reader) readForm(parent *Node) *Node {
	start := r.pos
	var n *Node
	switch c := r.peek(); c {
	case '(':
		n = r.readCollection(KindList, ')')
	case '[':
		n = r.readCollection(KindVector, ']')
	case '{':
		n = r.readCollection(KindMap, '}')
	case '"':
		n = r.readString()
	case '\'', '`', '@':
		n = r.readWrapped(KindReaderMacro, 1, 1)
	case ',':
		width := 1
		if r.peekAt(1) == '@' {
			width = 2
		}
		n = r.readWrapped(KindReaderMacro, width, 1)
	case '^':
		n = r.readWrapped(KindMeta, 1, 2)
	case '|':
		if r.peekAt(1) == '(' {
			n = r.readWrapped(KindReaderMacro, 1, 1)
		} else {
			n = r.readToken()
		}
	default:
		n = r.readToken()
	}
	n.Start = start
	n.End = r.pos
	n.Text = string(r.src[start.Offset:r.pos.Offset])
	n.Parent = parent
	return n
}

func (r *reader) readCollection(kind Kind, closer byte) *Node {
	n := &Node{Kind: kind}
	open := r.pos
	r.advance()
	for {
		r.skipTrivia()
		if r.eof() {
			r.fail(open, fmt.Sprintf("unclosed %s", kind))
			return n
		}
		c := r.peek()
		if c == closer {
			r.advance()
			return n
		}
		if isCloser(c) {
			r.fail(r.pos, fmt.Sprintf("mismatched %q closing %s", c, kind))
			r.advance()
			return n
		}
		n.Children = append(n.Children, r.readForm(n))
	}
}

// readWrapped reads a prefix of width bytes followed by count forms.
func (r *reader) readWrapped(kind Kind, width, count int) *Node {
	n := &Node{Kind: kind}
	at := r.pos
	for i := 0; i < width; i++ {
		r.advance()
	}
	for i := 0; i < count; i++ {
		r.skipTrivia()
		if r.eof() || isCloser(r.peek()) {
			r.fail(at, fmt.Sprintf("missing form after %s", kind))
			return n
		}
		n.Children = append(n.Children, r.readForm(n))
	}
	return n
}

func (r *reader) readString() *Node {
	open := r.pos
	r.advance()
	for !r.eof() {
		switch r.peek() {
		case '\\':
			r.advance()
			if !r.eof() {
				r.advance()
			}
		case '"':
			r.advance()
			return &Node{Kind: KindString}
		default:
			r.advance()
		}
	}
	r.fail(open, "unterminated string")
	return &Node{Kind: KindString}
}

func (r *reader) readToken() *Node {
	start := r.pos.Offset
	for !r.eof() && !isTerminator(r.peek()) {
		r.advance()
	}
	if r.pos.Offset == start {
		// A stray byte that cannot start any form; consume it so reading progresses.
		r.advance()
	}
	return &Node{Kind: classifyToken(string(r.src[start:r.pos.Offset]))}
}

func classifyToken(tok string) Kind {
	switch {
	case strings.HasPrefix(tok, ":") && len(tok) > 1:
		return KindKeyword
	case tok == "nil" || tok == "true" || tok == "false":
		return KindLiteral
	case isNumber(tok):
		return KindNumber
	default:
		return KindSymbol
	}
}

func isNumber(tok string) bool {
	s := tok
	if len(s) > 1 && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func isCloser(c byte) bool {
	return c == ')' || c == ']' || c == '}'
}

func isTerminator(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '(', ')', '[', ']', '{', '}', '"', ';', ',':
		return true
	}
	return false
}

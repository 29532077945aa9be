package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"phelnav/internal/engine/parser"
	"phelnav/internal/shared/util"

	"github.com/gobwas/glob"
)

// Source enumerates a project's source files and supplies their trees.
type Source interface {
	Files(ctx context.Context) ([]string, error)
	Load(path string) (*parser.File, error)
}

// DirSource walks project roots on disk.
type DirSource struct {
	roots        []string
	parser       *parser.Parser
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

func NewDirSource(roots []string, p *parser.Parser, excludeDirs, excludeFiles []string) (*DirSource, error) {
	dirs, err := util.CompileGlobs(excludeDirs)
	if err != nil {
		return nil, err
	}
	files, err := util.CompileGlobs(excludeFiles)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = parser.NewParser(nil)
	}
	return &DirSource{roots: roots, parser: p, excludeDirs: dirs, excludeFiles: files}, nil
}

// Files returns canonical paths of every recognised source file, sorted.
func (s *DirSource) Files(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if path != root && util.MatchesAny(s.excludeDirs, path) {
					return filepath.SkipDir
				}
				return nil
			}
			if s.Accepts(path) {
				seen[util.CanonicalPath(path)] = true
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return util.SortedStringKeys(seen), nil
}

// Accepts reports whether path is a source file that is not excluded.
func (s *DirSource) Accepts(path string) bool {
	return s.parser.IsSourceFile(path) && !util.MatchesAny(s.excludeFiles, path)
}

func (s *DirSource) Load(path string) (*parser.File, error) {
	return s.parser.ReadFile(path)
}

// Overlay serves in-memory documents open in an editor ahead of the files
// on disk.
type Overlay struct {
	base   Source
	parser *parser.Parser

	mu   sync.RWMutex
	docs map[string]*parser.File
	errs map[string]error
}

func NewOverlay(base Source, p *parser.Parser) *Overlay {
	if p == nil {
		p = parser.NewParser(nil)
	}
	return &Overlay{
		base:   base,
		parser: p,
		docs:   make(map[string]*parser.File),
		errs:   make(map[string]error),
	}
}

// Set stores the current text of an open document and returns its tree.
func (o *Overlay) Set(path string, src []byte) (*parser.File, error) {
	file, err := o.parser.ParseFile(path, src)
	o.mu.Lock()
	o.docs[path] = file
	o.errs[path] = err
	o.mu.Unlock()
	return file, err
}

// Drop forgets an open document so the disk version is served again.
func (o *Overlay) Drop(path string) {
	o.mu.Lock()
	delete(o.docs, path)
	delete(o.errs, path)
	o.mu.Unlock()
}

func (o *Overlay) IsOpen(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.docs[path]
	return ok
}

// Files adds open documents that do not exist on disk yet.
func (o *Overlay) Files(ctx context.Context) ([]string, error) {
	files, err := o.base.Files(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.docs) == 0 {
		return files, nil
	}
	merged := make(map[string]bool, len(files)+len(o.docs))
	for _, f := range files {
		merged[f] = true
	}
	for f := range o.docs {
		merged[f] = true
	}
	return util.SortedStringKeys(merged), nil
}

func (o *Overlay) Load(path string) (*parser.File, error) {
	o.mu.RLock()
	file, ok := o.docs[path]
	err := o.errs[path]
	o.mu.RUnlock()
	if ok {
		return file, err
	}
	return o.base.Load(path)
}

package session

import (
	"context"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/resolver"
	"phelnav/internal/shared/util"
)

// OpenDocument stores the editor text of path and schedules the index
// update. The returned tree is the one queries will see; a syntax error is
// returned alongside the partial tree.
func (s *Session) OpenDocument(path string, text []byte) (*parser.File, error) {
	path = util.CanonicalPath(path)
	file, err := s.Documents.Set(path, text)
	s.Bridge.TreeChanged(path)
	return file, err
}

// CloseDocument drops the editor text so the file on disk is served again.
func (s *Session) CloseDocument(path string) {
	path = util.CanonicalPath(path)
	s.Documents.Drop(path)
	s.Bridge.TreeChanged(path)
}

// CurrentTree returns the freshest tree of path: the open document when
// there is one, the file on disk otherwise.
func (s *Session) CurrentTree(path string) (*parser.File, error) {
	path = util.CanonicalPath(path)
	file, err := s.Documents.Load(path)
	if file == nil {
		if err == nil {
			err = errs.New(errs.CodeNotFound, "no tree")
		}
		return nil, errs.AddContext(errs.Wrap(err, errs.CodeNotFound, "load file"), errs.CtxPath, path)
	}
	if err != nil {
		s.logger.Debug("serving partial tree", "path", path, "error", err)
	}
	return file, nil
}

// OccurrenceAt locates the symbol under a 1-based line and column after
// making sure the index is built.
func (s *Session) OccurrenceAt(ctx context.Context, path string, line, column int) (resolver.Occurrence, error) {
	if err := s.Index.EnsureBuilt(ctx); err != nil {
		return resolver.Occurrence{}, err
	}
	file, err := s.CurrentTree(path)
	if err != nil {
		return resolver.Occurrence{}, err
	}
	occ, ok := resolver.At(file, line, column)
	if !ok {
		err := errs.New(errs.CodeNotFound, "no symbol at position")
		err = errs.AddContext(err, errs.CtxPath, file.Path)
		return resolver.Occurrence{}, errs.AddContext(err, errs.CtxLine, line)
	}
	return occ, nil
}

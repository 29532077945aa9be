package lsp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/core/session"
	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/resolver"
	"phelnav/internal/engine/symbols"
)

// Service answers editor requests from one project session.
type Service struct {
	session *session.Session
	version string
	logger  *slog.Logger
}

func NewService(s *session.Session, version string) *Service {
	return &Service{session: s, version: version, logger: slog.Default()}
}

// Register wires all LSP handlers onto a Server.
func (s *Service) Register(srv *Server) {
	srv.Handle("initialize", s.handleInitialize)
	srv.Handle("shutdown", s.handleShutdown)
	srv.Handle("textDocument/definition", s.handleDefinition)
	srv.Handle("textDocument/references", s.handleReferences)
	srv.Handle("textDocument/rename", s.handleRename)
	srv.Handle("textDocument/completion", s.handleCompletion)

	srv.OnNotify("initialized", func(ctx context.Context, _ json.RawMessage) {
		go func() {
			if err := s.session.Build(ctx); err != nil && !errs.IsCancellation(err) {
				s.logger.Warn("initial index build failed", "error", err)
			}
		}()
	})
	srv.OnNotify("textDocument/didOpen", s.handleDidOpen)
	srv.OnNotify("textDocument/didChange", s.handleDidChange)
	srv.OnNotify("textDocument/didClose", s.handleDidClose)
}

func (s *Service) handleInitialize(_ context.Context, params json.RawMessage) (any, error) {
	var p InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	s.logger.Info("editor connected", "root", uriToPath(p.RootURI))

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:   SyncFull,
			DefinitionProvider: true,
			ReferencesProvider: true,
			RenameProvider:     true,
			CompletionProvider: &CompletionOptions{TriggerCharacters: []string{"/"}},
		},
		ServerInfo: &ServerInfo{Name: "phelnav", Version: s.version},
	}, nil
}

func (s *Service) handleShutdown(context.Context, json.RawMessage) (any, error) {
	return nil, nil
}

func (s *Service) handleDidOpen(_ context.Context, params json.RawMessage) {
	var p DidOpenParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didOpen params", "error", err)
		return
	}
	s.setDocument(p.TextDocument.URI, p.TextDocument.Text)
}

func (s *Service) handleDidChange(_ context.Context, params json.RawMessage) {
	var p DidChangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didChange params", "error", err)
		return
	}
	if len(p.ContentChanges) == 0 {
		return
	}
	s.setDocument(p.TextDocument.URI, p.ContentChanges[len(p.ContentChanges)-1].Text)
}

func (s *Service) setDocument(uri, text string) {
	if _, err := s.session.OpenDocument(uriToPath(uri), []byte(text)); err != nil {
		s.logger.Debug("document has syntax errors", "uri", uri, "error", err)
	}
}

func (s *Service) handleDidClose(_ context.Context, params json.RawMessage) {
	var p DidCloseParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didClose params", "error", err)
		return
	}
	s.session.CloseDocument(uriToPath(p.TextDocument.URI))
}

// occurrence maps an editor position onto the symbol under it. A position
// without a symbol yields ok=false and no error.
func (s *Service) occurrence(ctx context.Context, p TextDocumentPositionParams) (resolver.Occurrence, bool, error) {
	occ, err := s.session.OccurrenceAt(ctx, uriToPath(p.TextDocument.URI), p.Position.Line+1, p.Position.Character+1)
	if errs.IsCode(err, errs.CodeNotFound) {
		return resolver.Occurrence{}, false, nil
	}
	if err != nil {
		return resolver.Occurrence{}, false, err
	}
	return occ, true, nil
}

func (s *Service) handleDefinition(ctx context.Context, params json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	occ, ok, err := s.occurrence(ctx, p)
	if err != nil || !ok {
		return []Location{}, err
	}
	r := s.session.Resolver
	if r.Classify(occ) == resolver.ModeDefinitionToUsages {
		return []Location{locationOf(occ.File.Path, occ.Node)}, nil
	}
	targets, err := r.MultiResolve(ctx, occ)
	if err != nil {
		return nil, err
	}
	return locations(targets), nil
}

func (s *Service) handleReferences(ctx context.Context, params json.RawMessage) (any, error) {
	var p ReferenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	occ, ok, err := s.occurrence(ctx, p.TextDocumentPositionParams)
	if err != nil || !ok {
		return []Location{}, err
	}

	r := s.session.Resolver
	def := occ
	if r.Classify(occ) == resolver.ModeUsageToDefinitions {
		defs, err := r.Definitions(ctx, occ)
		if err != nil {
			return nil, err
		}
		if len(defs) == 0 {
			return []Location{}, nil
		}
		def = defs[0].Occurrence()
	}
	usages, err := r.MultiResolve(ctx, def)
	if err != nil {
		return nil, err
	}
	out := locations(usages)
	if p.Context.IncludeDeclaration {
		out = append([]Location{locationOf(def.File.Path, def.Node)}, out...)
	}
	return out, nil
}

func (s *Service) handleRename(ctx context.Context, params json.RawMessage) (any, error) {
	var p RenameParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	occ, ok, err := s.occurrence(ctx, p.TextDocumentPositionParams)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rpcError{Code: codeRequestFailed, Message: "no symbol at position"}
	}

	edits, err := s.session.Resolver.RenameEdits(ctx, occ, p.NewName)
	switch {
	case errs.IsCode(err, errs.CodeValidationError):
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errs.IsCode(err, errs.CodeNotFound), errs.IsCode(err, errs.CodeNotSupported):
		return nil, &rpcError{Code: codeRequestFailed, Message: err.Error()}
	case err != nil:
		return nil, err
	}

	changes := make(map[string][]TextEdit)
	for _, e := range edits {
		uri := pathToURI(e.Path)
		changes[uri] = append(changes[uri], TextEdit{
			Range:   Range{Start: toPosition(e.Start), End: toPosition(e.End)},
			NewText: e.NewText,
		})
	}
	return WorkspaceEdit{Changes: changes}, nil
}

func (s *Service) handleCompletion(ctx context.Context, params json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	occ, ok, err := s.occurrence(ctx, p)
	if err != nil || !ok {
		return CompletionList{Items: []CompletionItem{}}, err
	}
	variants, err := s.session.Resolver.Variants(ctx, occ)
	if err != nil {
		return nil, err
	}
	items := make([]CompletionItem, 0, len(variants))
	for _, v := range variants {
		items = append(items, CompletionItem{
			Label:  v.Label,
			Kind:   completionKind(v.Kind),
			Detail: strings.ReplaceAll(v.Signature, "\n", " "),
		})
	}
	limit := s.session.Config().Resolver.MaxVariants
	return CompletionList{IsIncomplete: len(items) >= limit, Items: items}, nil
}

func completionKind(kind string) int {
	switch kind {
	case symbols.KindFunction.String(), symbols.KindMacro.String():
		return CIKFunction
	case symbols.KindStruct.String():
		return CIKStruct
	case symbols.KindInterface.String():
		return CIKClass
	case "local":
		return CIKVariable
	default:
		return CIKConstant
	}
}

func locations(targets []resolver.Target) []Location {
	out := make([]Location, 0, len(targets))
	for _, t := range targets {
		out = append(out, locationOf(t.Path, t.Node))
	}
	return out
}

func locationOf(path string, n *parser.Node) Location {
	return Location{
		URI:   pathToURI(path),
		Range: Range{Start: toPosition(n.Start), End: toPosition(n.End)},
	}
}

func toPosition(p parser.Position) Position {
	return Position{Line: p.Line - 1, Character: p.Column - 1}
}

// --- Helpers ---

func uriToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}

func pathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

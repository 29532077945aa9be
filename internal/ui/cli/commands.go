package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/engine/resolver"
	"phelnav/internal/engine/symbols"
	"phelnav/internal/shared/util"

	"github.com/spf13/cobra"
)

// location is the printed form of one resolver target.
type location struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Text      string `json:"text"`
	Namespace string `json:"namespace,omitempty"`
	Local     bool   `json:"local,omitempty"`
}

func toLocations(targets []resolver.Target) []location {
	out := make([]location, 0, len(targets))
	for _, t := range targets {
		out = append(out, location{
			Path:      t.Path,
			Line:      t.Node.Start.Line,
			Column:    t.Node.Start.Column,
			Text:      t.Node.Text,
			Namespace: t.Namespace,
			Local:     t.Local,
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func runIndex(cmd *cobra.Command, opts *globalOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	if err := rt.session.Build(ctx); err != nil {
		return err
	}
	stats := rt.session.Index.Stats()
	if jsonFlag(cmd) {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files: %d symbols in %d namespaces (%s)\n",
		stats.Files, stats.Symbols, stats.Namespaces, time.Since(start).Round(time.Millisecond))
	return nil
}

func runSymbols(cmd *cobra.Command, opts *globalOptions, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.session.Build(ctx); err != nil {
		return err
	}

	var defs []symbols.Definition
	if len(args) == 1 {
		defs = rt.session.Index.SymbolsForNamespace(args[0])
	} else {
		defs = rt.session.Index.AllSymbols()
	}
	if jsonFlag(cmd) {
		return writeJSON(cmd.OutOrStdout(), defs)
	}
	printDefinitions(cmd.OutOrStdout(), defs)
	return nil
}

func printDefinitions(w io.Writer, defs []symbols.Definition) {
	if len(defs) == 0 {
		fmt.Fprintln(w, "No symbols found.")
		return
	}
	for _, d := range defs {
		fmt.Fprintf(w, "%-9s %s\t%s:%d:%d\n", d.Kind, d.QualifiedName(), d.File, d.Location.Line, d.Location.Column)
	}
}

func runFind(cmd *cobra.Command, opts *globalOptions, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.session.Build(ctx); err != nil {
		return err
	}

	d, ok := rt.session.Index.FindSymbol(args[0], args[1])
	if !ok {
		err := errs.AddContext(errs.New(errs.CodeNotFound, "symbol not found"), errs.CtxNamespace, args[0])
		return errs.AddContext(err, errs.CtxSymbol, args[1])
	}
	if jsonFlag(cmd) {
		return writeJSON(cmd.OutOrStdout(), d)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n", d.Kind, d.QualifiedName())
	fmt.Fprintf(w, "  %s:%d:%d\n", d.File, d.Location.Line, d.Location.Column)
	if d.Signature != "" {
		fmt.Fprintf(w, "  %s\n", d.Signature)
	}
	if d.Docstring != "" {
		fmt.Fprintf(w, "\n  %s\n", d.Docstring)
	}
	return nil
}

// position parses the <file> <line> <column> arguments.
func position(args []string) (string, int, int, error) {
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return "", 0, 0, errs.AddContext(errs.New(errs.CodeValidationError, "line must be a positive number"), errs.CtxLine, args[1])
	}
	column, err := strconv.Atoi(args[2])
	if err != nil || column < 1 {
		return "", 0, 0, errs.New(errs.CodeValidationError, "column must be a positive number")
	}
	return util.CanonicalPath(args[0]), line, column, nil
}

func runDefinition(cmd *cobra.Command, opts *globalOptions, args []string) error {
	path, line, column, err := position(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	targets, err := definitionsAt(ctx, rt, path, line, column)
	if err != nil {
		return err
	}
	return printLocations(cmd, toLocations(targets), "No definition found.")
}

// definitionsAt resolves a usage to its candidates; a definition stands for
// itself.
func definitionsAt(ctx context.Context, rt *runtime, path string, line, column int) ([]resolver.Target, error) {
	occ, err := rt.session.OccurrenceAt(ctx, path, line, column)
	if err != nil {
		return nil, err
	}
	r := rt.session.Resolver
	if r.Classify(occ) == resolver.ModeDefinitionToUsages {
		return []resolver.Target{{Path: occ.File.Path, Node: occ.Node}}, nil
	}
	return r.MultiResolve(ctx, occ)
}

func runUsages(cmd *cobra.Command, opts *globalOptions, args []string) error {
	path, line, column, err := position(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	occ, err := rt.session.OccurrenceAt(ctx, path, line, column)
	if err != nil {
		return err
	}
	r := rt.session.Resolver
	if r.Classify(occ) == resolver.ModeUsageToDefinitions {
		defs, err := r.Definitions(ctx, occ)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			return printLocations(cmd, nil, "No definition found.")
		}
		occ = defs[0].Occurrence()
	}
	targets, err := r.MultiResolve(ctx, occ)
	if err != nil {
		return err
	}
	return printLocations(cmd, toLocations(targets), "No usages found.")
}

func printLocations(cmd *cobra.Command, locs []location, empty string) error {
	if jsonFlag(cmd) {
		if locs == nil {
			locs = []location{}
		}
		return writeJSON(cmd.OutOrStdout(), locs)
	}
	w := cmd.OutOrStdout()
	if len(locs) == 0 {
		fmt.Fprintln(w, empty)
		return nil
	}
	for _, l := range locs {
		fmt.Fprintf(w, "%s:%d:%d\t%s\n", l.Path, l.Line, l.Column, l.Text)
	}
	return nil
}

func runRename(cmd *cobra.Command, opts *globalOptions, args []string) error {
	path, line, column, err := position(args[:3])
	if err != nil {
		return err
	}
	newName := args[3]
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, logToStderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	occ, err := rt.session.OccurrenceAt(ctx, path, line, column)
	if err != nil {
		return err
	}
	edits, err := rt.session.Resolver.RenameEdits(ctx, occ, newName)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonFlag(cmd) {
		if err := writeJSON(w, edits); err != nil {
			return err
		}
	} else {
		for _, e := range edits {
			fmt.Fprintf(w, "%s:%d:%d-%d:%d\t%s\n", e.Path, e.Start.Line, e.Start.Column, e.End.Line, e.End.Column, e.NewText)
		}
	}

	if write, _ := cmd.Flags().GetBool("write"); write {
		files, err := applyEdits(edits)
		if err != nil {
			return err
		}
		if !jsonFlag(cmd) {
			fmt.Fprintf(w, "Updated %d files.\n", files)
		}
	}
	return nil
}

// applyEdits rewrites every file touched by edits in place.
func applyEdits(edits []resolver.Edit) (int, error) {
	seen := make(map[string]bool)
	for _, e := range edits {
		seen[e.Path] = true
	}
	paths := util.SortedStringKeys(seen)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(path, resolver.ApplyEdits(path, src, edits), info.Mode().Perm()); err != nil {
			return 0, errs.AddContext(err, errs.CtxPath, path)
		}
	}
	return len(paths), nil
}

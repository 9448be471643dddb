package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?is)^\s*(select\b.*\bfrom\b|insert\s+into\b|update\s+\w+\s+set\b|delete\s+from\b|with\s+\w+\s+as\b)`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
}

type markerSite struct {
	file string
	line int
	name string
}

// lintTargets lints every .go file under the given files or directories and
// reports missing, malformed and duplicated markers.
func lintTargets(targets []string) ([]violation, error) {
	var (
		violations []violation
		seen       = map[string]markerSite{}
	)
	visit := func(path string) error {
		vs, err := lintFile(path, seen)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		return nil
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				if err := visit(target); err != nil {
					return nil, err
				}
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			return visit(path)
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	return violations, nil
}

func lintFile(path string, seen map[string]markerSite) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var violations []violation
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil {
				continue
			}
			marker, body := splitMarker(raw)
			if !sqlKeywordPattern.MatchString(body) {
				continue
			}
			site := markerSite{file: path, line: fset.Position(bl.Pos()).Line, name: specName(vs, i)}
			if !uuidMarkerPattern.MatchString(marker) {
				violations = append(violations, violation{file: site.file, line: site.line, name: site.name, message: "missing or invalid --sql <uuid> marker"})
				continue
			}
			if prev, dup := seen[marker]; dup {
				violations = append(violations, violation{
					file: site.file, line: site.line, name: site.name,
					message: fmt.Sprintf("marker already used by %s at %s:%d", prev.name, prev.file, prev.line),
				})
				continue
			}
			seen[marker] = site
		}
		return true
	})
	return violations, nil
}

// splitMarker returns the first line when it is a comment, and the rest.
func splitMarker(s string) (string, string) {
	s = strings.TrimLeft(s, "\n\r \t")
	if !strings.HasPrefix(s, "--") {
		return "", s
	}
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx]), s[idx+1:]
	}
	return strings.TrimSpace(s), ""
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func specName(vs *ast.ValueSpec, i int) string {
	if i < len(vs.Names) && vs.Names[i] != nil {
		return vs.Names[i].Name
	}
	return "_"
}

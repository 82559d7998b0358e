// sqllint checks every inline SQL string for the --sql <uuid> audit marker
// that SQLRunner logs queries under. A query without a marker is rejected at
// runtime; a duplicated marker silently misattributes audit log lines. Both
// are cheaper to catch here than in production.
//
// Usage: sqllint [path ...]  (defaults to the current directory)
package main

import (
	"flag"
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
	sqlPattern    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type sqlConst struct {
	file   string
	line   int
	name   string
	marker string
}

func main() {
	flag.Parse()
	roots := flag.Args()
	if len(roots) == 0 {
		roots = []string{"."}
	}

	var consts []sqlConst
	for _, root := range roots {
		found, err := scan(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		consts = append(consts, found...)
	}

	failed := false
	for _, c := range consts {
		if c.marker == "" {
			if !failed {
				fmt.Fprintln(os.Stderr, "sqllint: missing SQL audit markers")
				failed = true
			}
			fmt.Fprintf(os.Stderr, "  %s:%d %s has no --sql <uuid> first line\n", c.file, c.line, c.name)
		}
	}

	byMarker := map[string][]sqlConst{}
	for _, c := range consts {
		if c.marker != "" {
			byMarker[c.marker] = append(byMarker[c.marker], c)
		}
	}
	markers := make([]string, 0, len(byMarker))
	for m := range byMarker {
		markers = append(markers, m)
	}
	sort.Strings(markers)
	for _, m := range markers {
		dupes := byMarker[m]
		if len(dupes) < 2 {
			continue
		}
		if !failed {
			failed = true
		}
		fmt.Fprintf(os.Stderr, "sqllint: marker %s is shared by %d queries\n", m, len(dupes))
		for _, c := range dupes {
			fmt.Fprintf(os.Stderr, "  %s:%d %s\n", c.file, c.line, c.name)
		}
	}

	if failed {
		os.Exit(1)
	}
}

// scan walks a file or directory tree and collects every SQL-looking string
// constant. Hidden, underscore-prefixed, vendor, and testdata directories are
// skipped.
func scan(root string) ([]sqlConst, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(root) != ".go" {
			return nil, nil
		}
		return lintFile(root)
	}

	var consts []sqlConst
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "node_modules" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		found, err := lintFile(path)
		if err != nil {
			return err
		}
		consts = append(consts, found...)
		return nil
	})
	return consts, err
}

func lintFile(path string) ([]sqlConst, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var consts []sqlConst
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !sqlPattern.MatchString(raw) {
				continue
			}
			pos := fset.Position(lit.Pos())
			consts = append(consts, sqlConst{
				file:   path,
				line:   pos.Line,
				name:   specName(spec),
				marker: extractMarker(raw),
			})
		}
		return true
	})
	return consts, nil
}

// extractMarker returns the uuid from the first line, or "" when the line is
// not a valid marker.
func extractMarker(sql string) string {
	first := strings.TrimLeft(sql, "\n\r \t")
	if idx := strings.IndexAny(first, "\n\r"); idx >= 0 {
		first = first[:idx]
	}
	m := markerPattern.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return ""
	}
	return m[1]
}

func unquote(v string) (string, error) {
	if len(v) > 1 && v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func specName(spec *ast.ValueSpec) string {
	names := make([]string, 0, len(spec.Names))
	for _, ident := range spec.Names {
		if ident != nil {
			names = append(names, ident.Name)
		}
	}
	return strings.Join(names, ",")
}

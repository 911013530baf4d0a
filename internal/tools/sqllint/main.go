// sqllint walks Go sources and reports SQL string constants that lack the
// `--sql <uuid>` audit marker required in the sqlinline package.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlPattern    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|create|with)\b`)
	markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	bad := 0
	for _, target := range targets {
		err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor" {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			bad += lintFile(path)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	if bad > 0 {
		os.Exit(1)
	}
}

// lintFile prints a line per unmarked SQL constant and returns the count.
func lintFile(path string) int {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		return 1
	}
	bad := 0
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
			text, err := unquote(lit.Value)
			if err != nil || !sqlPattern.MatchString(text) {
				continue
			}
			if markerPattern.MatchString(firstLine(text)) {
				continue
			}
			pos := fset.Position(lit.Pos())
			fmt.Fprintf(os.Stderr, "%s:%d: SQL constant %s has no --sql <uuid> marker\n",
				pos.Filename, pos.Line, specName(spec))
			bad++
		}
		return true
	})
	return bad
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}

func specName(spec *ast.ValueSpec) string {
	if len(spec.Names) == 0 {
		return "<anonymous>"
	}
	return spec.Names[0].Name
}

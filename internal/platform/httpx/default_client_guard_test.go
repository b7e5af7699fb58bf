package httpx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// implicitDefaultClient lists net/http selectors that send through
// http.DefaultClient, which has no timeouts and no tracing.
var implicitDefaultClient = map[string]bool{
	"DefaultClient": true,
	"Get":           true,
	"Head":          true,
	"Post":          true,
	"PostForm":      true,
}

func TestNoImplicitDefaultClient(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", "..", ".."))
	httpxDir := filepath.Join(repoRoot, "internal", "platform", "httpx")
	var violations []string
	fset := token.NewFileSet()

	for _, root := range []string{filepath.Join(repoRoot, "internal"), filepath.Join(repoRoot, "cmd")} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			file, parseErr := parser.ParseFile(fset, path, nil, 0)
			if parseErr != nil {
				return parseErr
			}
			inHTTPX := filepath.Dir(path) == httpxDir
			ast.Inspect(file, func(n ast.Node) bool {
				// Bare clients carry no dial or header timeouts.
				if lit, ok := n.(*ast.CompositeLit); ok && !inHTTPX && isHTTPSelector(lit.Type, "Client") {
					violations = append(violations, fset.Position(lit.Pos()).String()+" http.Client{}")
					return true
				}
				sel, ok := n.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				ident, ok := sel.X.(*ast.Ident)
				if ok && ident.Name == "http" && implicitDefaultClient[sel.Sel.Name] {
					violations = append(violations, fset.Position(sel.Pos()).String()+" http."+sel.Sel.Name)
				}
				return true
			})
			return nil
		})
		if err != nil {
			t.Fatalf("scan %s: %v", root, err)
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("requests must go through an httpx client:\n%s", strings.Join(violations, "\n"))
	}
}

func isHTTPSelector(expr ast.Expr, name string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == "http" && sel.Sel.Name == name
}

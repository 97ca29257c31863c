package runner

// tags.go scans test sources for retry tag directives, the Go counterpart
// of annotations on test classes and methods.

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
)

// TagDirective marks a comment line carrying tags:
//
//	//testretry:tag Flaky org.acme.Slow
const TagDirective = "//testretry:tag"

// Tags holds the tags found in a package's test files.
type Tags struct {
	pkg   []string
	tests map[string][]string
}

// ScanTags parses the _test.go files in dir. Directives in a file's package
// doc comment tag every test of the package; directives in a test
// function's doc comment tag that test only.
func ScanTags(dir string) (*Tags, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*_test.go"))
	if err != nil {
		return nil, err
	}

	tags := &Tags{tests: make(map[string][]string)}
	fset := token.NewFileSet()
	for _, path := range files {
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		tags.pkg = append(tags.pkg, directiveTags(f.Doc)...)
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !isTestFunc(fn.Name.Name) {
				continue
			}
			if t := directiveTags(fn.Doc); len(t) > 0 {
				tags.tests[fn.Name.Name] = append(tags.tests[fn.Name.Name], t...)
			}
		}
	}
	return tags, nil
}

// Package returns the package-level tags.
func (t *Tags) Package() []string {
	if t == nil {
		return nil
	}
	return t.pkg
}

// Test returns the tags of a top-level test.
func (t *Tags) Test(name string) []string {
	if t == nil {
		return nil
	}
	return t.tests[name]
}

func isTestFunc(name string) bool {
	for _, prefix := range []string{"Test", "Example", "Fuzz"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// CommentGroup.Text drops directive lines, so the raw comments are walked.
func directiveTags(cg *ast.CommentGroup) []string {
	if cg == nil {
		return nil
	}
	var out []string
	for _, c := range cg.List {
		rest, ok := strings.CutPrefix(c.Text, TagDirective)
		if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		out = append(out, strings.Fields(rest)...)
	}
	return out
}

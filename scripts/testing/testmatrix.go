// Copyright 2026 The CredVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command testmatrix scans _test.go files for the annotation blocks on
// test functions (TestPurpose, Scope, Security, Expected, Test Case ID)
// and renders a markdown test matrix grouped by test case prefix. Used to
// keep the security review matrix in sync with the actual test suite.
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
	"sort"
	"strings"
)

type testCase struct {
	ID       string
	Name     string
	Package  string
	Purpose  string
	Scope    string
	Security string
	Expected string
}

func main() {
	root := flag.String("root", ".", "Repository root to scan")
	out := flag.String("out", "", "Output markdown file (stdout when empty)")
	flag.Parse()

	cases, err := scan(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}

	md := render(cases)
	if *out == "" {
		fmt.Print(md)
		return
	}
	if err := os.WriteFile(*out, []byte(md), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
}

func scan(root string) ([]testCase, error) {
	var cases []testCase
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == ".git" || strings.HasPrefix(name, "_") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Doc == nil || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}

			tc := testCase{Name: fn.Name.Name, Package: filepath.Dir(path)}
			for _, line := range fn.Doc.List {
				text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
				switch {
				case strings.HasPrefix(text, "TestPurpose:"):
					tc.Purpose = strings.TrimSpace(strings.TrimPrefix(text, "TestPurpose:"))
				case strings.HasPrefix(text, "Scope:"):
					tc.Scope = strings.TrimSpace(strings.TrimPrefix(text, "Scope:"))
				case strings.HasPrefix(text, "Security:"):
					tc.Security = strings.TrimSpace(strings.TrimPrefix(text, "Security:"))
				case strings.HasPrefix(text, "Expected:"):
					tc.Expected = strings.TrimSpace(strings.TrimPrefix(text, "Expected:"))
				case strings.HasPrefix(text, "Test Case ID:"):
					tc.ID = strings.TrimSpace(strings.TrimPrefix(text, "Test Case ID:"))
				}
			}
			if tc.ID != "" {
				cases = append(cases, tc)
			}
		}
		return nil
	})
	return cases, err
}

func render(cases []testCase) string {
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })

	groups := make(map[string][]testCase)
	var order []string
	for _, tc := range cases {
		prefix := tc.ID
		if idx := strings.Index(tc.ID, "-"); idx > 0 {
			prefix = tc.ID[:idx]
		}
		if _, seen := groups[prefix]; !seen {
			order = append(order, prefix)
		}
		groups[prefix] = append(groups[prefix], tc)
	}
	sort.Strings(order)

	var b strings.Builder
	b.WriteString("# Test Matrix\n")
	for _, prefix := range order {
		fmt.Fprintf(&b, "\n## %s\n\n", prefix)
		b.WriteString("| ID | Test | Purpose | Security |\n")
		b.WriteString("|----|------|---------|----------|\n")
		for _, tc := range groups[prefix] {
			fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", tc.ID, tc.Name, cell(tc.Purpose), cell(tc.Security))
		}
	}
	fmt.Fprintf(&b, "\nTotal annotated tests: %d\n", len(cases))
	return b.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

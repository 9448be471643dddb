package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QOne = `\n--sql 11111111-1111-4111-8111-111111111111\nselect 1 from accounts;\n`\n\nconst QBare = `select id from accounts;`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QTwo = `\n--sql 11111111-1111-4111-8111-111111111111\nupdate t set x = 1;\n`\n\nconst Greeting = \"select your model\"\n")

	violations, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("violations = %v, want 2", violations)
	}
	if violations[0].name != "QBare" || !strings.Contains(violations[0].message, "missing") {
		t.Fatalf("unexpected first violation: %v", violations[0])
	}
	if violations[1].name != "QTwo" || !strings.Contains(violations[1].message, "QOne") {
		t.Fatalf("unexpected second violation: %v", violations[1])
	}
}

func TestLintIgnoresProse(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "msg.go", "package q\n\nvar Hint = \"Please select a package\"\n")

	violations, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}

func TestInlineQueriesAreMarked(t *testing.T) {
	violations, err := lintTargets([]string{filepath.Join("..", "..", "sqlinline")})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s", v)
	}
}

// Package testutil provides helpers for testing pyqc components against
// fake external tools written as POSIX shell scripts.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FileToken in fake tool output is replaced by the last argument (the file)
const FileToken = "{file}"

// RuffScript is a fake ruff answering both "ruff check" and "ruff format".
// A file containing a double space is unformatted; a file containing
// "import os" has an unused import. Fixes rewrite the file to its clean
// form.
const RuffScript = `
case "$1" in
format)
  case "$*" in
  *--check*)
    if grep -q "  " "$last"; then echo "Would reformat: $last"; exit 1; fi
    echo "1 file already formatted"; exit 0;;
  *)
    if grep -q "  " "$last"; then printf 'x = 1\n' > "$last"; fi
    exit 0;;
  esac;;
check)
  case "$*" in
  *--fix*)
    if grep -q "import os" "$last"; then grep -v "import os" "$last" > "$last.tmp"; mv "$last.tmp" "$last"; fi
    exit 0;;
  esac
  if grep -q "import os" "$last"; then
    echo "[{\"code\":\"F401\",\"message\":\"os imported but unused\",\"filename\":\"$last\",\"location\":{\"row\":1,\"column\":8},\"fix\":{\"applicability\":\"safe\"}}]"
    exit 1
  fi
  echo "[]"; exit 0;;
esac
exit 2
`

// FakeTool describes a shell script standing in for an external tool
type FakeTool struct {
	// Stdout is printed verbatim, with FileToken substituted
	Stdout string
	// Stderr is printed to standard error
	Stderr string
	// ExitCode is the script's exit status
	ExitCode int
	// Sleep delays the script, in seconds (fractions allowed)
	Sleep string
	// Script replaces the generated body entirely when set
	Script string
}

// WriteFakeTool writes an executable script named name into dir. Every
// invocation appends one line to the returned counter file.
func WriteFakeTool(t testing.TB, dir, name string, tool FakeTool) (path, counter string) {
	t.Helper()
	path = filepath.Join(dir, name)
	counter = filepath.Join(dir, name+".calls")

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo \"$*\" >> %q\n", counter)
	b.WriteString("for last; do :; done\n")
	if tool.Script != "" {
		b.WriteString(tool.Script)
		b.WriteString("\n")
	} else {
		if tool.Sleep != "" {
			fmt.Fprintf(&b, "sleep %s\n", tool.Sleep)
		}
		if tool.Stdout != "" {
			b.WriteString("sed \"s|" + FileToken + "|$last|g\" <<'PYQC_EOF'\n")
			b.WriteString(tool.Stdout)
			if !strings.HasSuffix(tool.Stdout, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("PYQC_EOF\n")
		}
		if tool.Stderr != "" {
			b.WriteString("cat >&2 <<'PYQC_EOF'\n")
			b.WriteString(tool.Stderr)
			b.WriteString("\nPYQC_EOF\n")
		}
		fmt.Fprintf(&b, "exit %d\n", tool.ExitCode)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		t.Fatalf("Failed to write fake tool %s: %v", name, err)
	}
	return path, counter
}

// Invocations returns how many times a fake tool ran
func Invocations(t testing.TB, counter string) int {
	t.Helper()
	data, err := os.ReadFile(counter)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("Failed to read counter %s: %v", counter, err)
	}
	return strings.Count(string(data), "\n")
}

// InvocationArgs returns the argument lines recorded for a fake tool
func InvocationArgs(t testing.TB, counter string) []string {
	t.Helper()
	data, err := os.ReadFile(counter)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read counter %s: %v", counter, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// WritePythonFile writes a source file under dir and returns its path
func WritePythonFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

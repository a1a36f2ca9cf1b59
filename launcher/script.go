package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/text/encoding/charmap"
)

const posixScriptTemplate = `#!/bin/sh
set -o errexit
exec '{{.JavaExecutable}}' '@{{.ArgFile}}'
`

const windowsScriptTemplate = `@echo off
"{{.JavaExecutable}}" @{{.ArgFile}}
`

type scriptVars struct {
	JavaExecutable string
	ArgFile        string
}

// writeLauncherScript renders the POSIX or Windows launcher template for
// p and writes it atomically to scriptPath, marking it executable on
// POSIX. The Java executable path is POSIX-quoted when embedded in the
// shell script, and double-quoted for the batch file.
func writeLauncherScript(scriptPath string, p Plugin, argFilePath string) error {
	var tmplSrc string
	if p.Windows {
		tmplSrc = windowsScriptTemplate
	} else {
		tmplSrc = posixScriptTemplate
	}
	tmpl, err := template.New("launcher").Parse(tmplSrc)
	if err != nil {
		return fmt.Errorf("bad launcher template: %w", err)
	}

	vars := scriptVars{
		JavaExecutable: p.JavaExecutable,
		ArgFile:        argFilePath,
	}
	if !p.Windows {
		vars.JavaExecutable = posixQuoteInner(vars.JavaExecutable)
		vars.ArgFile = posixQuoteInner(vars.ArgFile)
	} else {
		vars.JavaExecutable = windowsQuoteInner(vars.JavaExecutable)
		vars.ArgFile = windowsQuoteInner(vars.ArgFile)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return fmt.Errorf("cannot render launcher template: %w", err)
	}

	if err := writeTextFile(scriptPath, b.String(), p.Windows); err != nil {
		return err
	}
	if !p.Windows {
		if err := os.Chmod(scriptPath, 0o755); err != nil {
			return fmt.Errorf("cannot mark launcher executable: %w", err)
		}
	}
	return nil
}

// posixQuoteInner escapes a value destined for the inside of single
// quotes in the POSIX template: each embedded single quote becomes
// '"'"', and \n, \r, \t are re-encoded with ANSI-C-style substrings
// concatenated back into the single-quoted run. Backslashes are doubled.
func posixQuoteInner(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`'"'"'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`'$'\n''`)
		case '\r':
			b.WriteString(`'$'\r''`)
		case '\t':
			b.WriteString(`'$'\t''`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// windowsQuoteInner escapes a value destined for the inside of a
// double-quoted batch-file token: embedded double quotes are doubled.
func windowsQuoteInner(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// writeTextFile writes content to path atomically (write to a temp file
// in the same directory, then rename into place), encoding it as
// ISO-8859-1 with CRLF line endings when windows is true, or UTF-8 with
// LF endings otherwise.
func writeTextFile(path, content string, windows bool) error {
	var encoded []byte
	if windows {
		crlf := strings.ReplaceAll(content, "\n", "\r\n")
		out, err := charmap.ISO8859_1.NewEncoder().String(crlf)
		if err != nil {
			return fmt.Errorf("cannot encode as ISO-8859-1: %w", err)
		}
		encoded = []byte(out)
	} else {
		encoded = []byte(content)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".launcher-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Package assets embeds the default token list and the SQL migrations.
package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed tokens.txt migrations/*.sql
var FS embed.FS

// readLines returns the trimmed, non-comment lines of an embedded file.
func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	return out, sc.Err()
}

// TokenList returns the default token identifiers.
func TokenList() ([]string, error) {
	return readLines("tokens.txt")
}

// Migrations exposes the migrations directory rooted at its *.sql files.
func Migrations() (fs.FS, error) {
	return fs.Sub(FS, "migrations")
}

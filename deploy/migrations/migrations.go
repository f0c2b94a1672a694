// Package migrations embeds the record store schema, one file set per SQL
// dialect. Files are named <dialect>_<version>_<name>.sql and applied in
// lexical order.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Files exposes every embedded migration.
//
//go:embed *.sql
var Files embed.FS

// Statements returns the SQL statements for dialect in application order.
func Statements(dialect string) ([]string, error) {
	names, err := fs.Glob(Files, dialect+"_*.sql")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		raw, err := Files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(raw), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out, nil
}

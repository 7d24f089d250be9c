// Package migrations embeds the schema files applied by `migrate`.
package migrations

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed *.sql clickhouse/*.sql
var files embed.FS

// MySQL returns the statements of every MySQL migration in file order.
func MySQL() ([]string, error) { return load(".") }

// ClickHouse returns the statements of every ClickHouse migration in file order.
func ClickHouse() ([]string, error) { return load("clickhouse") }

func load(dir string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var stmts []string
	for _, n := range names {
		b, err := fs.ReadFile(files, path.Join(dir, n))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Split(string(b))...)
	}
	return stmts, nil
}

// Split breaks a script into statements on semicolons that end a line.
func Split(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";\n") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

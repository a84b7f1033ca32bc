// Package migrations embeds the SQL schema files so the binary is
// self-contained; an on-disk migrations directory is only consulted when
// migrations_path is set in the config.
package migrations

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

// FS contains all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS

// Schema returns the embedded migration files concatenated in lexical order,
// ready to feed to the repository's migration runner.
func Schema() (string, error) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return "", fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := FS.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("read embedded migration %s: %w", name, err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Package assets embeds the SQL migrations and the demo seed data.
package assets

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed sql/*.sql seed/*.json
var FS embed.FS

// Migration is one embedded SQL script.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded scripts in lexical order.
func Migrations() ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(FS, "sql", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		b, err := FS.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, Migration{Name: path.Base(p), SQL: string(b)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DemoSeed returns the embedded demo family and puzzle.
func DemoSeed() ([]byte, error) {
	return FS.ReadFile("seed/demo.json")
}

// ABOUTME: Loads migration script sets from TOML files, .sql files or directories
// ABOUTME: Scripts are split per statement so failures name the exact statement

package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2389/warden/internal/sqlscript"
)

// versionedFile matches script names such as 0003_add_karma.sql.
var versionedFile = regexp.MustCompile(`^(\d+)[_-](.+)\.sql$`)

// Load reads a script set from path:
//
//   - a .toml file of [[migration]] tables,
//   - a directory of NNNN_name.sql files (files without a numeric prefix
//     are unversioned and run after the versioned ones, in name order),
//   - a single .sql file, versioned when its name has a numeric prefix.
func Load(path string) ([]Migration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading script set: %w", err)
	}

	if info.IsDir() {
		return loadDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return loadTOML(path)
	case ".sql":
		m, err := loadSQLFile(path)
		if err != nil {
			return nil, err
		}
		return []Migration{m}, nil
	default:
		return nil, fmt.Errorf("unsupported script set %s: expected .toml, .sql or a directory", path)
	}
}

type tomlScriptSet struct {
	Migration []tomlMigration `toml:"migration"`
}

type tomlMigration struct {
	Version int        `toml:"version"`
	Name    string     `toml:"name"`
	Step    []tomlStep `toml:"step"`
}

type tomlStep struct {
	SQL     string       `toml:"sql"`
	Rewrite *tomlRewrite `toml:"rewrite"`
}

type tomlRewrite struct {
	Table    string   `toml:"table"`
	NewTable string   `toml:"new_table"`
	Schema   string   `toml:"schema"`
	Columns  []string `toml:"columns"`
	Select   string   `toml:"select"`
	Indexes  []string `toml:"indexes"`
}

func loadTOML(path string) ([]Migration, error) {
	var set tomlScriptSet
	md, err := toml.DecodeFile(path, &set)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing %s: unknown keys %v", path, undecoded)
	}

	migrations := make([]Migration, 0, len(set.Migration))
	for i, tm := range set.Migration {
		m := Migration{Version: tm.Version, Name: tm.Name}
		if m.Name == "" {
			m.Name = fmt.Sprintf("migration-%d", i+1)
		}

		for j, ts := range tm.Step {
			switch {
			case ts.SQL != "" && ts.Rewrite != nil:
				return nil, fmt.Errorf("%s: migration %q step %d sets both sql and rewrite", path, m.Name, j+1)
			case ts.Rewrite != nil:
				rw := ts.Rewrite
				if rw.Table == "" || rw.Schema == "" {
					return nil, fmt.Errorf("%s: migration %q step %d: rewrite needs table and schema", path, m.Name, j+1)
				}
				m.Steps = append(m.Steps, Rewrite{
					Table:    rw.Table,
					NewTable: rw.NewTable,
					Schema:   rw.Schema,
					Columns:  rw.Columns,
					Select:   rw.Select,
					Indexes:  rw.Indexes,
				})
			case ts.SQL != "":
				for _, stmt := range sqlscript.StripTransaction(sqlscript.Split(ts.SQL)) {
					m.Steps = append(m.Steps, SQL(stmt))
				}
			default:
				return nil, fmt.Errorf("%s: migration %q step %d is empty", path, m.Name, j+1)
			}
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

func loadDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading script directory: %w", err)
	}

	var versioned, unversioned []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		m, err := loadSQLFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if m.Version == 0 {
			unversioned = append(unversioned, m)
		} else {
			versioned = append(versioned, m)
		}
	}

	sort.SliceStable(versioned, func(i, j int) bool { return versioned[i].Version < versioned[j].Version })
	return append(versioned, unversioned...), nil
}

func loadSQLFile(path string) (Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Migration{}, fmt.Errorf("reading %s: %w", path, err)
	}

	base := filepath.Base(path)
	m := Migration{Name: strings.TrimSuffix(base, filepath.Ext(base))}
	if match := versionedFile.FindStringSubmatch(base); match != nil {
		v, err := strconv.Atoi(match[1])
		if err != nil {
			return Migration{}, fmt.Errorf("parsing version of %s: %w", base, err)
		}
		m.Version = v
		m.Name = match[2]
	}

	// Scripts written to run on their own may wrap themselves in
	// BEGIN/COMMIT; the engine supplies the transaction instead.
	for _, stmt := range sqlscript.StripTransaction(sqlscript.Split(string(data))) {
		m.Steps = append(m.Steps, SQL(stmt))
	}
	return m, nil
}

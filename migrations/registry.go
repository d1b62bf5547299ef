// Package migrations resolves the login store schema for each SQL dialect.
//
// The tree keeps postgres files at its root and sqlite alternatives under
// sqlite/. Callers pass either the full embedded tree or its
// data/sql/migrations subtree.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	treePath   = "data/sql/migrations"
	sqliteDir  = "sqlite"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Set is the schema of one dialect.
type Set struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions lists the migration names without their up/down suffix,
	// in apply order.
	Versions []string
}

// RegisterFunc hands one dialect's set to a persistence client.
type RegisterFunc func(ctx context.Context, set Set) error

type Option func(*registration)

type registration struct {
	targets []string
}

// WithTargets limits Register to the named dialects.
func WithTargets(dialects ...string) Option {
	return func(r *registration) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			if normalized := NormalizeDialect(dialect); normalized != "" {
				next = append(next, normalized)
			}
		}
		if len(next) > 0 {
			r.targets = dedupe(next)
		}
	}
}

// NormalizeDialect maps driver and dialect names to DialectPostgres or
// DialectSQLite. Unknown names come back lowercased.
func NormalizeDialect(name string) string {
	switch normalized := strings.TrimSpace(strings.ToLower(name)); normalized {
	case "sqlite3", "sqlite":
		return DialectSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres
	default:
		return normalized
	}
}

// Sets returns the postgres and sqlite sets found under root. Every up
// migration must have a matching down migration.
func Sets(root fs.FS) ([]Set, error) {
	if root == nil {
		return nil, fmt.Errorf("migrations: filesystem is required")
	}
	base, basePath, err := schemaRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	sets := []Set{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, sqliteDir), FS: sqliteFS},
	}
	for i := range sets {
		versions, err := versions(sets[i])
		if err != nil {
			return nil, err
		}
		sets[i].Versions = versions
	}
	return sets, nil
}

// ForDialect returns the set for dialect, which may also be a driver name
// such as "sqlite3".
func ForDialect(root fs.FS, dialect string) (Set, error) {
	sets, err := Sets(root)
	if err != nil {
		return Set{}, err
	}
	wanted := NormalizeDialect(dialect)
	for _, set := range sets {
		if set.Dialect == wanted {
			return set, nil
		}
	}
	return Set{}, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

// Register calls fn for every targeted dialect, postgres first.
func Register(ctx context.Context, root fs.FS, fn RegisterFunc, opts ...Option) ([]Set, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	reg := registration{targets: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	sets, err := Sets(root)
	if err != nil {
		return nil, err
	}
	registered := make([]Set, 0, len(sets))
	for _, set := range sets {
		if !slices.Contains(reg.targets, set.Dialect) {
			continue
		}
		if err := fn(ctx, set); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", set.Dialect, set.Path, err)
		}
		registered = append(registered, set)
	}
	return registered, nil
}

func versions(set Set) ([]string, error) {
	ups, err := fs.Glob(set.FS, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s %s: %w", set.Dialect, set.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s schema %q has no *%s files", set.Dialect, set.Path, upSuffix)
	}
	slices.Sort(ups)
	out := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(set.FS, version+downSuffix); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %q has no down file", set.Dialect, version)
		}
		out = append(out, version)
	}
	return out, nil
}

func schemaRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, treePath); err == nil {
		sub, err := fs.Sub(root, treePath)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: open %s: %w", treePath, err)
		}
		return sub, treePath, nil
	}
	if matches, _ := fs.Glob(root, "*"+upSuffix); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", treePath)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func joinPath(base, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + suffix
}

// Package migrations exposes the embedded schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	maid "github.com/slack-lackey/maid-server"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath = "data/sql/migrations"
)

// Source is the migration directory for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, src Source) error

// DialectFor maps a persistence driver name to its migration dialect.
func DialectFor(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: driver %q has no schema", driver)
	}
}

// Sources returns the postgres and sqlite directories under root. A nil root
// means the embedded schema.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = maid.GetMigrationsFS()
	}
	postgres, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqlite, err := fs.Sub(postgres, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: postgres},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqlite},
	}
	for _, src := range sources {
		versions, err := versions(src.FS)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("migrations: %s schema at %q has no *.up.sql files", src.Dialect, src.Path)
		}
	}
	return sources, nil
}

// Register hands each requested dialect's embedded source to fn. With no
// dialects every source is registered.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) ([]Source, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources(nil)
	if err != nil {
		return nil, err
	}

	wanted := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		if dialect = strings.ToLower(strings.TrimSpace(dialect)); dialect != "" {
			wanted = append(wanted, dialect)
		}
	}

	registered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if len(wanted) > 0 && !slices.Contains(wanted, src.Dialect) {
			continue
		}
		if err := fn(ctx, src); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", src.Dialect, err)
		}
		registered = append(registered, src)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no schema for dialects %v", wanted)
	}
	return registered, nil
}

// Versions lists the up migrations shipped for dialect, oldest first.
func Versions(dialect string) ([]string, error) {
	sources, err := Sources(nil)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if src.Dialect == strings.ToLower(strings.TrimSpace(dialect)) {
			return versions(src.FS)
		}
	}
	return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

func versions(fsys fs.FS) ([]string, error) {
	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list schema: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, strings.TrimSuffix(match, ".up.sql"))
	}
	slices.Sort(out)
	return out, nil
}

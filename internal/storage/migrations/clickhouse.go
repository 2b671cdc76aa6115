package migrations

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	chstore "solana-sniper/internal/storage/clickhouse"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RunClickhouseMigrations ensures the DSN's database exists, applies the
// price tick schema and returns a connection bound to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	cfg, err := chstore.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if !identifier.MatchString(cfg.Database) {
		return nil, fmt.Errorf("clickhouse dsn: database name %q is not a plain identifier", cfg.Database)
	}

	server := cfg
	server.Database = ""
	admin, err := chstore.Open(ctx, server)
	if err != nil {
		return nil, err
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.Database)
	_ = admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create clickhouse database %s: %w", cfg.Database, err)
	}

	conn, err := chstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := applyClickhouse(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// applyClickhouse runs every embedded file one statement at a time since
// the native protocol rejects multi-statement queries. Files must be
// idempotent.
func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, f := range files {
		for i, stmt := range splitStatements(f.sql) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s statement %d: %w", f.name, i+1, err)
			}
		}
	}
	return nil
}

// splitStatements breaks a script on top-level semicolons. Single-quoted
// literals (with '' escapes) are kept intact and -- comments are dropped.
func splitStatements(script string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
				cur.WriteByte(c)
			}
		case quoted:
			cur.WriteByte(c)
			if c == '\'' {
				if i+1 < len(script) && script[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
				} else {
					quoted = false
				}
			}
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			comment = true
			i++
		case c == '\'':
			quoted = true
			cur.WriteByte(c)
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts
}

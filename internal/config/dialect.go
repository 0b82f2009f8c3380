package config

import (
	"fmt"
	"strings"
)

// Dialect names a supported SQL backend for the credential store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// ddl expands the column type placeholders used by the migrations.
func (d Dialect) ddl(stmt string) string {
	var r *strings.Replacer
	switch d {
	case DialectPostgres:
		r = strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{ref}}", "BIGINT",
			"{{int}}", "BIGINT",
			"{{bool}}", "BOOLEAN",
			"{{float}}", "DOUBLE PRECISION",
			"{{ts}}", "TIMESTAMPTZ",
		)
	case DialectMySQL:
		r = strings.NewReplacer(
			"{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{ref}}", "BIGINT",
			"{{int}}", "BIGINT",
			"{{bool}}", "BOOLEAN",
			"{{float}}", "DOUBLE",
			"{{ts}}", "DATETIME(6)",
		)
	default:
		r = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{ref}}", "INTEGER",
			"{{int}}", "INTEGER",
			"{{bool}}", "INTEGER",
			"{{float}}", "REAL",
			"{{ts}}", "DATETIME",
		)
	}
	return r.Replace(stmt)
}

// upsertClause returns the conflict clause for an insert into table keyed by
// the given conflict columns. set holds "column = expression" assignments in
// which NEW(col) refers to the incoming value and OLD(col) to the stored one.
func (d Dialect) upsertClause(table string, conflict []string, set []string) string {
	var b strings.Builder
	if d == DialectMySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	} else {
		b.WriteString(" ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO UPDATE SET ")
	}
	for i, assign := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.expandRefs(table, assign))
	}
	return b.String()
}

// expandRefs rewrites NEW(col) and OLD(col) markers for the dialect.
func (d Dialect) expandRefs(table, expr string) string {
	for {
		i := strings.Index(expr, "NEW(")
		if i < 0 {
			break
		}
		j := strings.Index(expr[i:], ")") + i
		col := expr[i+4 : j]
		repl := "excluded." + col
		if d == DialectMySQL {
			repl = "VALUES(" + col + ")"
		}
		expr = expr[:i] + repl + expr[j+1:]
	}
	for {
		i := strings.Index(expr, "OLD(")
		if i < 0 {
			break
		}
		j := strings.Index(expr[i:], ")") + i
		col := expr[i+4 : j]
		repl := table + "." + col
		if d == DialectMySQL {
			repl = col
		}
		expr = expr[:i] + repl + expr[j+1:]
	}
	return expr
}

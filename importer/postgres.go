package importer

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
)

func init() {
	Register(dialect.Postgres, func(drv dialect.Driver, database string) Inspector {
		return &postgresInspector{drv: drv, schema: "public"}
	}, postgresTypes)
}

// postgresInspector introspects PostgreSQL through information_schema and
// pg_catalog. It inspects the public schema of the connected database.
type postgresInspector struct {
	drv    dialect.Driver
	schema string
}

func (p *postgresInspector) Tables(ctx context.Context) ([]RawTable, error) {
	query := "SELECT table_name, table_type FROM information_schema.tables " +
		"WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW') ORDER BY table_name"
	var tables []RawTable
	err := queryRows(ctx, p.drv, query, []any{p.schema}, func(rows *fsql.Rows) error {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return err
		}
		tables = append(tables, RawTable{Name: name, View: typ == "VIEW"})
		return nil
	})
	return tables, err
}

func (p *postgresInspector) Columns(ctx context.Context, table string) ([]RawColumn, error) {
	// format_type yields the raw type with its modifiers, e.g.
	// "character varying(255)" or "numeric(10,2)".
	query := `SELECT a.attname,
       format_type(a.atttypid, a.atttypmod),
       a.attnotnull,
       pg_get_expr(d.adbin, d.adrelid),
       COALESCE(a.attnum = ANY (i.indkey), false),
       COALESCE(pg_get_expr(d.adbin, d.adrelid) LIKE 'nextval%', false) OR a.attidentity IN ('a', 'd')
  FROM pg_attribute a
  JOIN pg_class c ON c.oid = a.attrelid
  JOIN pg_namespace n ON n.oid = c.relnamespace
  LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
  LEFT JOIN pg_index i ON i.indrelid = a.attrelid AND i.indisprimary
 WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
 ORDER BY a.attnum`
	var columns []RawColumn
	err := queryRows(ctx, p.drv, query, []any{p.schema, table}, func(rows *fsql.Rows) error {
		var (
			name, typ                 string
			notNull, primary, autoinc bool
			defaults                  sql.NullString
		)
		if err := rows.Scan(&name, &typ, &notNull, &defaults, &primary, &autoinc); err != nil {
			return err
		}
		col := RawColumn{
			Name:          name,
			Type:          typ,
			NotNull:       notNull,
			Primary:       primary,
			AutoIncrement: autoinc,
		}
		if defaults.Valid && !strings.HasPrefix(defaults.String, "nextval") {
			col.Default = defaults.String
		}
		columns = append(columns, col)
		return nil
	})
	return columns, err
}

func (p *postgresInspector) Indexes(ctx context.Context, table string) ([]RawIndex, error) {
	query := `SELECT ic.relname, a.attname, ix.indisunique
  FROM pg_index ix
  JOIN pg_class c ON c.oid = ix.indrelid
  JOIN pg_class ic ON ic.oid = ix.indexrelid
  JOIN pg_namespace n ON n.oid = c.relnamespace
  JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY (ix.indkey)
 WHERE n.nspname = $1 AND c.relname = $2 AND NOT ix.indisprimary
 ORDER BY ic.relname, array_position(ix.indkey, a.attnum)`
	var indexes []RawIndex
	err := queryRows(ctx, p.drv, query, []any{p.schema, table}, func(rows *fsql.Rows) error {
		var (
			name, column string
			unique       bool
		)
		if err := rows.Scan(&name, &column, &unique); err != nil {
			return err
		}
		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Fields = append(indexes[n-1].Fields, column)
			return nil
		}
		indexes = append(indexes, RawIndex{Name: name, Fields: []string{column}, Unique: unique})
		return nil
	})
	return indexes, err
}

func (p *postgresInspector) ForeignKeys(ctx context.Context, table string) ([]RawForeignKey, error) {
	query := `SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
  FROM information_schema.table_constraints tc
  JOIN information_schema.key_column_usage kcu
    ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
  JOIN information_schema.constraint_column_usage ccu
    ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
 WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'FOREIGN KEY'
 ORDER BY tc.constraint_name`
	var fks []RawForeignKey
	err := queryRows(ctx, p.drv, query, []any{p.schema, table}, func(rows *fsql.Rows) error {
		var name, column, refTable, refColumn string
		if err := rows.Scan(&name, &column, &refTable, &refColumn); err != nil {
			return err
		}
		fks = append(fks, RawForeignKey{
			Name:         name,
			Table:        table,
			Field:        column,
			ForeignTable: refTable,
			ForeignField: refColumn,
		})
		return nil
	})
	return fks, err
}

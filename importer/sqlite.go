package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
)

func init() {
	Register(dialect.SQLite, func(drv dialect.Driver, database string) Inspector {
		return &sqliteInspector{drv: drv}
	}, sqliteTypes)
}

// sqliteInspector introspects SQLite through sqlite_master and the table
// pragmas. PRAGMA statements cannot take bound parameters, so table names
// are interpolated as quoted identifiers.
type sqliteInspector struct {
	drv dialect.Driver
}

func pragma(name, table string) string {
	return fmt.Sprintf("PRAGMA %s(%s)", name, pq.QuoteIdentifier(table))
}

func (s *sqliteInspector) Tables(ctx context.Context) ([]RawTable, error) {
	query := "SELECT `name`, `type` FROM `sqlite_master` WHERE `type` IN ('table', 'view') " +
		"AND `name` NOT LIKE 'sqlite_%' ORDER BY `name`"
	var tables []RawTable
	err := queryRows(ctx, s.drv, query, nil, func(rows *fsql.Rows) error {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return err
		}
		tables = append(tables, RawTable{Name: name, View: typ == "view"})
		return nil
	})
	return tables, err
}

func (s *sqliteInspector) Columns(ctx context.Context, table string) ([]RawColumn, error) {
	var columns []RawColumn
	pks := 0
	err := queryRows(ctx, s.drv, pragma("table_info", table), nil, func(rows *fsql.Rows) error {
		var (
			cid, pk   int
			name, typ string
			notNull   bool
			defaults  sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaults, &pk); err != nil {
			return err
		}
		col := RawColumn{
			Name:    name,
			Type:    typ,
			NotNull: notNull || pk > 0,
			Primary: pk > 0,
		}
		if pk > 0 {
			pks++
		}
		if defaults.Valid {
			col.Default = defaults.String
		}
		columns = append(columns, col)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A single INTEGER primary key is an alias for the rowid and
	// auto-increments on insert.
	if pks == 1 {
		for i, col := range columns {
			if col.Primary && strings.EqualFold(col.Type, "integer") {
				columns[i].AutoIncrement = true
			}
		}
	}
	return columns, nil
}

func (s *sqliteInspector) Indexes(ctx context.Context, table string) ([]RawIndex, error) {
	var indexes []RawIndex
	err := queryRows(ctx, s.drv, pragma("index_list", table), nil, func(rows *fsql.Rows) error {
		var (
			seq, partial   int
			name, origin   string
			unique         bool
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return err
		}
		// Skip the implicit index backing the primary key.
		if origin == "pk" {
			return nil
		}
		indexes = append(indexes, RawIndex{Name: name, Unique: unique})
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range indexes {
		err := queryRows(ctx, s.drv, pragma("index_info", indexes[i].Name), nil, func(rows *fsql.Rows) error {
			var (
				seqno, cid int
				column     sql.NullString
			)
			if err := rows.Scan(&seqno, &cid, &column); err != nil {
				return err
			}
			if column.Valid {
				indexes[i].Fields = append(indexes[i].Fields, column.String)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return indexes, nil
}

func (s *sqliteInspector) ForeignKeys(ctx context.Context, table string) ([]RawForeignKey, error) {
	var fks []RawForeignKey
	err := queryRows(ctx, s.drv, pragma("foreign_key_list", table), nil, func(rows *fsql.Rows) error {
		var (
			id, seq                       int
			refTable, from                string
			to                            sql.NullString
			onUpdate, onDelete, matchType string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &matchType); err != nil {
			return err
		}
		fk := RawForeignKey{
			// SQLite has no constraint names, so synthesize stable ones.
			Name:         fmt.Sprintf("fk_%s_%s", table, from),
			Table:        table,
			Field:        from,
			ForeignTable: refTable,
			// A missing target column means the referenced table's rowid alias.
			ForeignField: "id",
		}
		if to.Valid {
			fk.ForeignField = to.String
		}
		fks = append(fks, fk)
		return nil
	})
	return fks, err
}

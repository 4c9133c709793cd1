package importer

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
)

func init() {
	Register(dialect.MySQL, func(drv dialect.Driver, database string) Inspector {
		return &mysqlInspector{drv: drv, database: database}
	}, mysqlTypes)
}

// mysqlInspector introspects MySQL/MariaDB through information_schema.
// An empty database name falls back to the connection default.
type mysqlInspector struct {
	drv      dialect.Driver
	database string
}

const mysqlSchema = "COALESCE(NULLIF(?, ''), DATABASE())"

func (m *mysqlInspector) Tables(ctx context.Context) ([]RawTable, error) {
	query := "SELECT `table_name`, `table_type` FROM `information_schema`.`tables` " +
		"WHERE `table_schema` = " + mysqlSchema + " ORDER BY `table_name`"
	var tables []RawTable
	err := queryRows(ctx, m.drv, query, []any{m.database}, func(rows *fsql.Rows) error {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return err
		}
		tables = append(tables, RawTable{Name: name, View: typ == "VIEW"})
		return nil
	})
	return tables, err
}

func (m *mysqlInspector) Columns(ctx context.Context, table string) ([]RawColumn, error) {
	query := "SELECT `column_name`, `column_type`, `is_nullable`, `column_default`, `column_key`, `extra` " +
		"FROM `information_schema`.`columns` WHERE `table_schema` = " + mysqlSchema +
		" AND `table_name` = ? ORDER BY `ordinal_position`"
	var columns []RawColumn
	err := queryRows(ctx, m.drv, query, []any{m.database, table}, func(rows *fsql.Rows) error {
		var (
			name, typ, nullable, key, extra string
			defaults                        sql.NullString
		)
		if err := rows.Scan(&name, &typ, &nullable, &defaults, &key, &extra); err != nil {
			return err
		}
		col := RawColumn{
			Name:          name,
			Type:          typ,
			NotNull:       nullable == "NO",
			Primary:       key == "PRI",
			AutoIncrement: strings.Contains(extra, "auto_increment"),
		}
		if defaults.Valid {
			col.Default = defaults.String
		}
		columns = append(columns, col)
		return nil
	})
	return columns, err
}

func (m *mysqlInspector) Indexes(ctx context.Context, table string) ([]RawIndex, error) {
	query := "SELECT `index_name`, `column_name`, `non_unique` FROM `information_schema`.`statistics` " +
		"WHERE `table_schema` = " + mysqlSchema + " AND `table_name` = ? AND `index_name` <> 'PRIMARY' " +
		"ORDER BY `index_name`, `seq_in_index`"
	var indexes []RawIndex
	err := queryRows(ctx, m.drv, query, []any{m.database, table}, func(rows *fsql.Rows) error {
		var (
			name, column string
			nonUnique    bool
		)
		if err := rows.Scan(&name, &column, &nonUnique); err != nil {
			return err
		}
		// Rows arrive ordered by index name, so multi-column indexes
		// extend the last entry.
		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Fields = append(indexes[n-1].Fields, column)
			return nil
		}
		indexes = append(indexes, RawIndex{Name: name, Fields: []string{column}, Unique: !nonUnique})
		return nil
	})
	return indexes, err
}

func (m *mysqlInspector) ForeignKeys(ctx context.Context, table string) ([]RawForeignKey, error) {
	query := "SELECT `constraint_name`, `column_name`, `referenced_table_name`, `referenced_column_name` " +
		"FROM `information_schema`.`key_column_usage` WHERE `table_schema` = " + mysqlSchema +
		" AND `table_name` = ? AND `referenced_table_name` IS NOT NULL " +
		"ORDER BY `constraint_name`, `ordinal_position`"
	var fks []RawForeignKey
	err := queryRows(ctx, m.drv, query, []any{m.database, table}, func(rows *fsql.Rows) error {
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

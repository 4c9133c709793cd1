package importer

import (
	"context"

	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
)

// queryRows runs a query and invokes scan once per row.
func queryRows(ctx context.Context, drv dialect.Driver, query string, args []any, scan func(*fsql.Rows) error) error {
	rows := &fsql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Package dialect provides the database dialect abstraction used by the
// fixtura importer and record manager.
//
// The package defines the Driver, Tx and ExecQuerier interfaces together
// with the dialect name constants for the supported backends:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// A database/sql-backed implementation lives in the dialect/sql
// sub-package:
//
//	drv, err := sql.Open(dialect.SQLite, "file:fixtures.db")
//	if err != nil {
//		...
//	}
//	defer drv.Close()
//
// Wrap any driver with dialect.Debug to log outgoing operations during
// development.
package dialect

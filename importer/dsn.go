package importer

import (
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/dialect"
)

// databaseFromDSN extracts the database name from a data source name
// using the dialect's own DSN syntax.
func databaseFromDSN(dialectName, dsn string) (string, error) {
	switch dialectName {
	case dialect.MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fixtura.NewSchemaErrorWrap(err, "parse mysql dsn")
		}
		return cfg.DBName, nil
	case dialect.Postgres:
		conn := dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			parsed, err := pq.ParseURL(dsn)
			if err != nil {
				return "", fixtura.NewSchemaErrorWrap(err, "parse postgres dsn")
			}
			conn = parsed
		}
		for _, kv := range strings.Fields(conn) {
			if name, ok := strings.CutPrefix(kv, "dbname="); ok {
				return strings.Trim(name, "'"), nil
			}
		}
		return "", nil
	case dialect.SQLite:
		name := dsn
		if i := strings.IndexByte(name, '?'); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimPrefix(name, "file:")
		name = filepath.Base(name)
		return strings.TrimSuffix(name, filepath.Ext(name)), nil
	default:
		return "", fixtura.NewSchemaError("cannot parse dsn for dialect %q", dialectName)
	}
}

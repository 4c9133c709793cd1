package importer

import (
	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/schema"
)

// TypeMapper maps the parsed base name of a raw column type to its
// canonical ORM type.
type TypeMapper interface {
	// HasDataType reports whether the base type name is known.
	HasDataType(name string) bool
	// OrmType returns the canonical type for a base type name. Unknown
	// names are a schema error: the importer aborts the whole import.
	OrmType(name string) (schema.OrmType, error)
}

// typeMap is a plain table-driven TypeMapper.
type typeMap map[string]schema.OrmType

func (m typeMap) HasDataType(name string) bool {
	_, ok := m[name]
	return ok
}

func (m typeMap) OrmType(name string) (schema.OrmType, error) {
	t, ok := m[name]
	if !ok {
		return "", fixtura.NewSchemaError("unknown column type %q", name)
	}
	return t, nil
}

var mysqlTypes = typeMap{
	"bit":        schema.TypeBoolean,
	"tinyint":    schema.TypeBoolean,
	"bool":       schema.TypeBoolean,
	"boolean":    schema.TypeBoolean,
	"smallint":   schema.TypeInteger,
	"mediumint":  schema.TypeInteger,
	"int":        schema.TypeInteger,
	"integer":    schema.TypeInteger,
	"bigint":     schema.TypeInteger,
	"year":       schema.TypeInteger,
	"decimal":    schema.TypeDecimal,
	"numeric":    schema.TypeDecimal,
	"float":      schema.TypeFloat,
	"double":     schema.TypeFloat,
	"real":       schema.TypeFloat,
	"char":       schema.TypeString,
	"varchar":    schema.TypeString,
	"tinytext":   schema.TypeClob,
	"text":       schema.TypeClob,
	"mediumtext": schema.TypeClob,
	"longtext":   schema.TypeClob,
	"json":       schema.TypeClob,
	"tinyblob":   schema.TypeBlob,
	"blob":       schema.TypeBlob,
	"mediumblob": schema.TypeBlob,
	"longblob":   schema.TypeBlob,
	"binary":     schema.TypeBlob,
	"varbinary":  schema.TypeBlob,
	"date":       schema.TypeDate,
	"time":       schema.TypeTime,
	"datetime":   schema.TypeTimestamp,
	"timestamp":  schema.TypeTimestamp,
	"enum":       schema.TypeEnum,
	"set":        schema.TypeEnum,
}

var postgresTypes = typeMap{
	"smallint":          schema.TypeInteger,
	"integer":           schema.TypeInteger,
	"bigint":            schema.TypeInteger,
	"smallserial":       schema.TypeInteger,
	"serial":            schema.TypeInteger,
	"bigserial":         schema.TypeInteger,
	"numeric":           schema.TypeDecimal,
	"decimal":           schema.TypeDecimal,
	"real":              schema.TypeFloat,
	"double":            schema.TypeFloat,
	"double precision":  schema.TypeFloat,
	"money":             schema.TypeDecimal,
	"character varying": schema.TypeString,
	"varchar":           schema.TypeString,
	"character":         schema.TypeString,
	"char":              schema.TypeString,
	"uuid":              schema.TypeString,
	"text":              schema.TypeClob,
	"json":              schema.TypeClob,
	"jsonb":             schema.TypeClob,
	"xml":               schema.TypeClob,
	"bytea":             schema.TypeBlob,
	"boolean":           schema.TypeBoolean,
	"date":              schema.TypeDate,
	"time":              schema.TypeTime,
	"timestamp":         schema.TypeTimestamp,
	"timestamptz":       schema.TypeTimestamp,
}

var sqliteTypes = typeMap{
	"int":              schema.TypeInteger,
	"integer":          schema.TypeInteger,
	"tinyint":          schema.TypeInteger,
	"smallint":         schema.TypeInteger,
	"mediumint":        schema.TypeInteger,
	"bigint":           schema.TypeInteger,
	"unsigned big int": schema.TypeInteger,
	"numeric":          schema.TypeDecimal,
	"decimal":          schema.TypeDecimal,
	"real":             schema.TypeFloat,
	"float":            schema.TypeFloat,
	"double":           schema.TypeFloat,
	"character":        schema.TypeString,
	"varchar":          schema.TypeString,
	"nchar":            schema.TypeString,
	"nvarchar":         schema.TypeString,
	"char":             schema.TypeString,
	"text":             schema.TypeClob,
	"clob":             schema.TypeClob,
	"blob":             schema.TypeBlob,
	"boolean":          schema.TypeBoolean,
	"date":             schema.TypeDate,
	"time":             schema.TypeTime,
	"datetime":         schema.TypeTimestamp,
	"timestamp":        schema.TypeTimestamp,
}

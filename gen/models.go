// Package gen emits Go model code from a schema definition: one struct
// per table with db-tagged fields, and accessor types for relations.
package gen

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/schema"
)

// Config controls model generation.
type Config struct {
	// Package is the package name of the generated file. Defaults
	// to "models".
	Package string
	// Header is an optional comment placed above the package clause,
	// e.g. a build tag or a generation notice.
	Header string
}

// Models renders a Go source file with one struct per table in the
// definition. Read-only tables are emitted too; their structs carry no
// relation accessors.
func Models(def *schema.Definition, cfg Config) ([]byte, error) {
	pkg := cfg.Package
	if pkg == "" {
		pkg = "models"
	}
	f := jen.NewFile(pkg)
	if cfg.Header != "" {
		f.HeaderComment(cfg.Header)
	}
	f.HeaderComment("Code generated by fixtura, DO NOT EDIT.")
	for _, t := range def.Tables {
		if err := modelStruct(f, def, t); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fixtura.NewSchemaErrorWrap(err, "render models")
	}
	return buf.Bytes(), nil
}

// WriteModels renders the models and writes them to path, creating
// parent directories as needed.
func WriteModels(def *schema.Definition, cfg Config, path string) error {
	src, err := Models(def, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fixtura.NewSchemaErrorWrap(err, "create output directory")
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fixtura.NewSchemaErrorWrap(err, "write %s", path)
	}
	return nil
}

func modelStruct(f *jen.File, def *schema.Definition, t *schema.Table) error {
	name := structName(t.Name)
	f.Commentf("%s is the model of the %s table.", name, t.Name)
	fields := make([]jen.Code, 0, len(t.Fields))
	for _, fd := range t.Fields {
		stmt := jen.Id(fieldName(fd.Name))
		typ, err := goType(fd)
		if err != nil {
			return err
		}
		if !fd.Required && !fd.Primary {
			stmt.Op("*")
		}
		fields = append(fields, stmt.Add(typ).Tag(map[string]string{"db": fd.Name}))
	}
	// Owning-side relations become typed pointers to the referenced
	// model, named after the relation alias.
	for _, r := range def.TableRelations(t.Name) {
		if r.Table != t.Name || t.ReadOnly {
			continue
		}
		alias, ok := r.AliasFor(t.Name)
		if !ok || alias == "" {
			continue
		}
		fields = append(fields, jen.Id(alias).Op("*").Id(structName(r.ForeignTable)).Tag(map[string]string{"db": "-"}))
	}
	f.Type().Id(name).Struct(fields...)
	f.Line()

	f.Commentf("TableName returns the table the %s model maps to.", name)
	f.Func().Params(jen.Id(name)).Id("TableName").Params().String().Block(
		jen.Return(jen.Lit(t.Name)),
	)
	f.Line()
	return nil
}

// goType maps an ORM type to the generated Go field type. Decimals map
// to string to keep their exact representation.
func goType(f *schema.Field) (*jen.Statement, error) {
	switch f.Type {
	case schema.TypeInteger:
		if f.Unsigned {
			return jen.Uint64(), nil
		}
		return jen.Int64(), nil
	case schema.TypeDecimal:
		return jen.String(), nil
	case schema.TypeFloat:
		return jen.Float64(), nil
	case schema.TypeString, schema.TypeClob, schema.TypeEnum:
		return jen.String(), nil
	case schema.TypeBoolean:
		return jen.Bool(), nil
	case schema.TypeDate, schema.TypeTime, schema.TypeTimestamp:
		return jen.Qual("time", "Time"), nil
	case schema.TypeBlob:
		return jen.Index().Byte(), nil
	default:
		return nil, fixtura.NewSchemaError("field %q: no Go type for %q", f.Name, f.Type)
	}
}

func structName(table string) string {
	return inflect.Camelize(inflect.Singularize(table))
}

func fieldName(column string) string {
	return inflect.Camelize(column)
}

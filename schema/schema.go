// Package schema defines the relational metadata model produced by the
// importer and consumed by the record and generator engines: table, field,
// index and relation definitions.
//
// Definitions are built once at import time and are immutable afterwards.
package schema

import (
	"sort"

	"github.com/fixtura/fixtura"
)

// OrmType is a canonical column type, independent of the database dialect
// the raw type string came from.
type OrmType string

// Canonical ORM types.
const (
	TypeInteger   OrmType = "integer"
	TypeDecimal   OrmType = "decimal"
	TypeFloat     OrmType = "float"
	TypeString    OrmType = "string"
	TypeBoolean   OrmType = "boolean"
	TypeDate      OrmType = "date"
	TypeTime      OrmType = "time"
	TypeTimestamp OrmType = "timestamp"
	TypeEnum      OrmType = "enum"
	TypeBlob      OrmType = "blob"
	TypeClob      OrmType = "clob"
)

// Field describes a single column of a table definition.
// Every field belongs to exactly one table definition.
type Field struct {
	Name          string   `yaml:"-" msgpack:"name"`
	Type          OrmType  `yaml:"type" msgpack:"type"`
	Length        int      `yaml:"length,omitempty" msgpack:"length"`
	Required      bool     `yaml:"required,omitempty" msgpack:"required"`
	Default       any      `yaml:"default,omitempty" msgpack:"default"`
	Primary       bool     `yaml:"primary,omitempty" msgpack:"primary"`
	AutoIncrement bool     `yaml:"autoincrement,omitempty" msgpack:"autoincrement"`
	Unsigned      bool     `yaml:"unsigned,omitempty" msgpack:"unsigned"`
	Values        []string `yaml:"values,omitempty" msgpack:"values"`

	// Foreign names the relation this field participates in as the
	// foreign-key column, or is empty for plain fields.
	Foreign string `yaml:"foreign,omitempty" msgpack:"foreign"`
}

// Index describes a table index.
type Index struct {
	Name   string   `yaml:"-" msgpack:"name"`
	Fields []string `yaml:"fields" msgpack:"fields"`
	Unique bool     `yaml:"unique,omitempty" msgpack:"unique"`
}

// Table is the definition of a single table or view. Field order follows
// the declaration order in the database, which also fixes the join order
// of composite identifiers.
type Table struct {
	Name     string   `yaml:"-" msgpack:"name"`
	Fields   []*Field `yaml:"fields" msgpack:"fields"`
	Indexes  []*Index `yaml:"indexes,omitempty" msgpack:"indexes"`
	ReadOnly bool     `yaml:"readonly,omitempty" msgpack:"readonly"`
}

// Field returns the field with the given name, or nil.
func (t *Table) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasField reports whether the table defines a field with the given name.
func (t *Table) HasField(name string) bool {
	return t.Field(name) != nil
}

// PrimaryFields returns the identifier fields in declaration order.
func (t *Table) PrimaryFields() []*Field {
	var pks []*Field
	for _, f := range t.Fields {
		if f.Primary {
			pks = append(pks, f)
		}
	}
	return pks
}

// Index returns the index with the given name, or nil.
func (t *Table) Index(name string) *Index {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

// Definition is the full imported schema: tables and relations, each
// sorted by name for deterministic output.
type Definition struct {
	Tables    []*Table    `yaml:"tables" msgpack:"tables"`
	Relations []*Relation `yaml:"relations,omitempty" msgpack:"relations"`
}

// Table returns the table definition with the given name, or nil.
func (d *Definition) Table(name string) *Table {
	for _, t := range d.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Relation returns the relation definition with the given name, or nil.
func (d *Definition) Relation(name string) *Relation {
	for _, r := range d.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// TableRelations returns all relations in which the given table
// participates, on either side.
func (d *Definition) TableRelations(table string) []*Relation {
	var rels []*Relation
	for _, r := range d.Relations {
		if r.Table == table || r.ForeignTable == table {
			rels = append(rels, r)
		}
	}
	return rels
}

// AddTable appends a table definition, replacing any previous definition
// with the same name.
func (d *Definition) AddTable(t *Table) {
	for i, cur := range d.Tables {
		if cur.Name == t.Name {
			d.Tables[i] = t
			return
		}
	}
	d.Tables = append(d.Tables, t)
}

// AddRelation appends a relation definition, replacing any previous
// definition with the same name.
func (d *Definition) AddRelation(r *Relation) {
	for i, cur := range d.Relations {
		if cur.Name == r.Name {
			d.Relations[i] = r
			return
		}
	}
	d.Relations = append(d.Relations, r)
}

// Sort orders tables and relations by name. Imported definitions are
// always sorted so that repeated imports of the same database diff clean.
func (d *Definition) Sort() {
	sort.Slice(d.Tables, func(i, j int) bool { return d.Tables[i].Name < d.Tables[j].Name })
	sort.Slice(d.Relations, func(i, j int) bool { return d.Relations[i].Name < d.Relations[j].Name })
}

// Validate checks definition invariants: relation endpoints must exist and
// alias names must be unique per table.
func (d *Definition) Validate() error {
	for _, r := range d.Relations {
		if d.Table(r.Table) == nil {
			return fixtura.NewSchemaError("relation %s: unknown owning table %q", r.Name, r.Table)
		}
		if d.Table(r.ForeignTable) == nil {
			return fixtura.NewSchemaError("relation %s: unknown referenced table %q", r.Name, r.ForeignTable)
		}
	}
	seen := make(map[string]string) // table/alias -> relation name
	for _, r := range d.Relations {
		for _, ta := range []struct{ table, alias string }{
			{r.Table, r.Alias},
			{r.ForeignTable, r.ForeignAlias},
		} {
			if ta.alias == "" {
				continue
			}
			key := ta.table + "/" + ta.alias
			if prev, ok := seen[key]; ok && prev != r.Name {
				return fixtura.NewSchemaError("alias %q on table %q defined by both %s and %s", ta.alias, ta.table, prev, r.Name)
			}
			seen[key] = r.Name
		}
	}
	return nil
}

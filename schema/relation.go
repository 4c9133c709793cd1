package schema

import (
	"github.com/go-openapi/inflect"
)

// Cardinality is the multiplicity of a relation.
type Cardinality string

// Supported cardinalities.
const (
	OneToOne  Cardinality = "one-to-one"
	OneToMany Cardinality = "one-to-many"
)

// Relation describes a single foreign-key relationship between two tables.
// The owning side holds the foreign-key column; the referenced side is the
// side pointed to.
type Relation struct {
	Name         string      `yaml:"-" msgpack:"name"`
	Table        string      `yaml:"table" msgpack:"table"`
	Field        string      `yaml:"field" msgpack:"field"`
	ForeignTable string      `yaml:"foreignTable" msgpack:"foreignTable"`
	ForeignField string      `yaml:"foreignField" msgpack:"foreignField"`
	Cardinality  Cardinality `yaml:"cardinality" msgpack:"cardinality"`

	// Alias is the name the owning side uses to refer to the referenced
	// record. ForeignAlias is the name the referenced side uses to refer
	// back to the owning records.
	Alias        string `yaml:"alias,omitempty" msgpack:"alias"`
	ForeignAlias string `yaml:"foreignAlias,omitempty" msgpack:"foreignAlias"`
}

// SelfReferencing reports whether the relation points from a table to itself.
func (r *Relation) SelfReferencing() bool {
	return r.Table == r.ForeignTable
}

// AliasFor returns the relation alias visible from the given table: the
// owning table sees Alias, the referenced table sees ForeignAlias. The
// second return value is false if the table is not part of the relation.
func (r *Relation) AliasFor(table string) (string, bool) {
	switch {
	case table == r.Table:
		return r.Alias, true
	case table == r.ForeignTable:
		return r.ForeignAlias, true
	default:
		return "", false
	}
}

// GuessAliases fills in empty alias names. Self-referencing relations get
// "Parent" on the owning side and "Child" or "Children" on the referenced
// side, regardless of field names. Cross-table relations derive the alias
// from the opposite table's name, camel-cased; referenced-side aliases are
// suffixed "HasMany" for one-to-many relations to disambiguate from a
// possible singular relation of the same name.
func (r *Relation) GuessAliases() {
	if r.SelfReferencing() {
		if r.Alias == "" {
			r.Alias = "Parent"
		}
		if r.ForeignAlias == "" {
			if r.Cardinality == OneToMany {
				r.ForeignAlias = "Children"
			} else {
				r.ForeignAlias = "Child"
			}
		}
		return
	}
	if r.Alias == "" {
		r.Alias = inflect.Camelize(r.ForeignTable)
	}
	if r.ForeignAlias == "" {
		r.ForeignAlias = inflect.Camelize(r.Table)
		if r.Cardinality == OneToMany {
			r.ForeignAlias += "HasMany"
		}
	}
}

// Merge copies explicit configuration from other into r for any property
// that r does not set itself. Explicit config always wins over inferred
// introspection data.
func (r *Relation) Merge(other *Relation) {
	if other == nil {
		return
	}
	if r.Alias == "" {
		r.Alias = other.Alias
	}
	if r.ForeignAlias == "" {
		r.ForeignAlias = other.ForeignAlias
	}
	if r.Cardinality == "" {
		r.Cardinality = other.Cardinality
	}
}

package manager

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/fixtura/fixtura"
	fsql "github.com/fixtura/fixtura/dialect/sql"
	"github.com/fixtura/fixtura/record"
	"github.com/fixtura/fixtura/schema"
)

// Table is the runtime accessor for one table definition: metadata
// queries, primary-key lookups and the per-session identity map.
type Table struct {
	def  *schema.Table
	mgr  *Manager
	repo map[string]*record.Record // internal id -> record
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.def.Name
}

// Definition returns the underlying table definition.
func (t *Table) Definition() *schema.Table {
	return t.def
}

// Fields returns the field definitions in declaration order.
func (t *Table) Fields() []*schema.Field {
	return t.def.Fields
}

// IsFieldRequired reports whether the field is declared non-nullable.
func (t *Table) IsFieldRequired(field string) bool {
	f := t.def.Field(field)
	return f != nil && f.Required
}

// Relations returns all relations the table participates in.
func (t *Table) Relations() []*schema.Relation {
	return t.mgr.def.TableRelations(t.def.Name)
}

// Relation returns the relation visible from this table under the given
// alias (or relation name).
func (t *Table) Relation(name string) (*schema.Relation, error) {
	for _, r := range t.Relations() {
		// Compare both sides explicitly: self-referencing relations
		// expose both aliases on the same table.
		switch {
		case r.Table == t.def.Name && r.Alias == name,
			r.ForeignTable == t.def.Name && r.ForeignAlias == name,
			r.Name == name:
			return r, nil
		}
	}
	return nil, fixtura.NewTableError(t.def.Name, "relation %q not defined", name)
}

// HasRelation reports whether the table has a relation visible under the
// given alias or relation name.
func (t *Table) HasRelation(name string) bool {
	_, err := t.Relation(name)
	return err == nil
}

// FromRepository returns the identity-mapped record with the given
// internal id, if the session tracks one.
func (t *Table) FromRepository(id string) (*record.Record, bool) {
	rec, ok := t.repo[id]
	return rec, ok
}

// FindByPk loads the record with the given identifier. The identity map
// is consulted first; a database round trip happens only on a miss. The
// identifier may be a scalar, an ordered value slice, or a composite
// string joined with the identifier separator.
func (t *Table) FindByPk(ctx context.Context, id any) (*record.Record, error) {
	pks := t.def.PrimaryFields()
	if len(pks) == 0 {
		return nil, fixtura.NewTableError(t.def.Name, "no identifier fields")
	}
	idValues, idString, err := splitIdentifier(t.def.Name, pks, id)
	if err != nil {
		return nil, err
	}
	if rec, ok := t.repo[idString]; ok {
		return rec, nil
	}
	cols := make([]string, len(t.def.Fields))
	for i, f := range t.def.Fields {
		cols[i] = f.Name
	}
	eq := make(sq.Eq, len(pks))
	for i, f := range pks {
		eq[f.Name] = idValues[i]
	}
	query, args, err := t.mgr.builder().Select(cols...).From(t.def.Name).Where(eq).ToSql()
	if err != nil {
		return nil, fmt.Errorf("fixtura: find %s: %w", t.def.Name, err)
	}
	rows := &fsql.Rows{}
	if err := t.mgr.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("fixtura: find %s: %w", t.def.Name, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("fixtura: find %s: %w", t.def.Name, err)
		}
		return nil, fixtura.NewNotFoundErrorWithID(t.def.Name, id)
	}
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("fixtura: find %s: %w", t.def.Name, err)
	}
	data := make(map[string]any, len(cols))
	for i, name := range cols {
		data[name] = *(dest[i].(*any))
	}
	rec := record.New(t.def)
	rec.SetData(data)
	rec.MarkPersisted()
	t.repo[rec.InternalID()] = rec
	return rec, nil
}

// splitIdentifier normalizes an identifier argument into one value per
// identifier field, plus its canonical string form.
func splitIdentifier(table string, pks []*schema.Field, id any) ([]any, string, error) {
	var values []any
	switch v := id.(type) {
	case []record.IdentifierPart:
		for _, p := range v {
			values = append(values, p.Value)
		}
	case []any:
		values = v
	case string:
		if len(pks) > 1 {
			for _, part := range strings.Split(v, record.IdentifierSeparator) {
				values = append(values, part)
			}
		} else {
			values = []any{v}
		}
	default:
		values = []any{v}
	}
	if len(values) != len(pks) {
		return nil, "", fixtura.NewTableError(table, "identifier arity mismatch: got %d values for %d fields", len(values), len(pks))
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return values, strings.Join(parts, record.IdentifierSeparator), nil
}

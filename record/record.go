// Package record implements the mutable entity instance bound to a table
// definition: field values, original snapshots, derived modification state
// and identifier computation.
package record

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/schema"
)

// NewRecordMarker prefixes the internal id of records that have not been
// persisted yet. Combined with the per-instance object identity token it
// stays unique across new records before a real identifier exists.
const NewRecordMarker = "@new"

// IdentifierSeparator joins the parts of a composite identifier string.
const IdentifierSeparator = ":"

// IdentifierPart is one field of a composite identifier, in table
// declaration order.
type IdentifierPart struct {
	Field string
	Value any
}

// Record is one entity instance bound to exactly one table definition.
// Records are not safe for concurrent use.
type Record struct {
	table  *schema.Table
	values map[string]any // current field values
	origs  map[string]any // snapshot at load/save time
	mapped map[string]any // ad-hoc values, separate namespace from fields
	exists bool           // persisted vs. new
	oid    string         // object identity token, stable per instance
}

// New returns a new, unpersisted record bound to the given table.
func New(table *schema.Table) *Record {
	return &Record{
		table:  table,
		values: make(map[string]any),
		origs:  make(map[string]any),
		mapped: make(map[string]any),
		oid:    uuid.NewString(),
	}
}

// Table returns the table definition the record is bound to.
func (r *Record) Table() *schema.Table {
	return r.table
}

// Oid returns the object identity token. It is stable for the lifetime of
// the in-memory instance and never reused.
func (r *Record) Oid() string {
	return r.oid
}

// Exists reports whether the record is persisted. It flips to true after a
// successful save and back to false after a successful delete.
func (r *Record) Exists() bool {
	return r.exists
}

// SetData bulk-assigns fields that exist in the table definition and
// snapshots them as original values. Unknown keys are silently ignored;
// this is a deliberately lenient bulk-import contract, distinct from Set.
// The record reports unmodified afterwards regardless of values supplied.
func (r *Record) SetData(values map[string]any) {
	for name, v := range values {
		if !r.table.HasField(name) {
			continue
		}
		r.values[name] = v
		r.origs[name] = v
	}
}

// Set assigns a single field. The field must exist in the table
// definition. Modification state is derived later by comparing against the
// original snapshot, so setting a field back to its original value makes
// the record clean again.
func (r *Record) Set(field string, value any) error {
	if !r.table.HasField(field) {
		return fixtura.NewTableError(r.table.Name, "field %q not defined", field)
	}
	r.values[field] = value
	return nil
}

// Get returns the current value of a field, or nil if unset.
func (r *Record) Get(field string) (any, error) {
	if !r.table.HasField(field) {
		return nil, fixtura.NewTableError(r.table.Name, "field %q not defined", field)
	}
	return r.values[field], nil
}

// Data returns a copy of the current field values.
func (r *Record) Data() map[string]any {
	data := make(map[string]any, len(r.values))
	for k, v := range r.values {
		data[k] = v
	}
	return data
}

// MapValue stores an ad-hoc, non-persisted value. Mapped values occupy a
// separate namespace from table fields; the same name may exist in both
// without collision.
func (r *Record) MapValue(name string, value any) {
	r.mapped[name] = value
}

// HasMappedValue reports whether a mapped value with the given name is set.
func (r *Record) HasMappedValue(name string) bool {
	_, ok := r.mapped[name]
	return ok
}

// MappedValue returns a previously mapped value. Accessing an unset name
// fails with a record error.
func (r *Record) MappedValue(name string) (any, error) {
	v, ok := r.mapped[name]
	if !ok {
		return nil, fixtura.NewRecordError("mapped value %q is not set", name)
	}
	return v, nil
}

// IsModified reports whether any current field value differs from its
// original snapshot. The change-set is recomputed by value comparison, not
// tracked by per-write dirty flags.
func (r *Record) IsModified() bool {
	for name := range r.values {
		if !equalValues(r.table.Field(name), r.values[name], r.origs[name]) {
			return true
		}
	}
	return false
}

// IsFieldModified reports whether the given field differs from its
// original snapshot. Querying an undefined field is a programmer error.
func (r *Record) IsFieldModified(field string) (bool, error) {
	f := r.table.Field(field)
	if f == nil {
		return false, fixtura.NewTableError(r.table.Name, "field %q not defined", field)
	}
	if _, ok := r.values[field]; !ok {
		return false, nil
	}
	return !equalValues(f, r.values[field], r.origs[field]), nil
}

// ModifiedFields returns the names of all modified fields, in table
// declaration order.
func (r *Record) ModifiedFields() []string {
	var modified []string
	for _, f := range r.table.Fields {
		v, ok := r.values[f.Name]
		if !ok {
			continue
		}
		if !equalValues(f, v, r.origs[f.Name]) {
			modified = append(modified, f.Name)
		}
	}
	return modified
}

// OriginalFieldValue returns the original snapshot value of a field.
func (r *Record) OriginalFieldValue(field string) (any, error) {
	if !r.table.HasField(field) {
		return nil, fixtura.NewTableError(r.table.Name, "field %q not defined", field)
	}
	return r.origs[field], nil
}

// Identifier returns nil if any identifier field is unset, the scalar
// value for single-field identifiers, and an ordered []IdentifierPart
// (declaration order) for composite identifiers.
func (r *Record) Identifier() any {
	pks := r.table.PrimaryFields()
	if len(pks) == 0 {
		return nil
	}
	parts := make([]IdentifierPart, 0, len(pks))
	for _, f := range pks {
		v, ok := r.values[f.Name]
		if !ok || v == nil {
			return nil
		}
		parts = append(parts, IdentifierPart{Field: f.Name, Value: v})
	}
	if len(parts) == 1 {
		return parts[0].Value
	}
	return parts
}

// IdentifierString returns the identifier rendered as a string. Composite
// identifiers join their values in declaration order with the identifier
// separator. The empty string is returned while the identifier is unset.
func (r *Record) IdentifierString() string {
	switch id := r.Identifier().(type) {
	case nil:
		return ""
	case []IdentifierPart:
		parts := make([]string, len(id))
		for i, p := range id {
			parts[i] = fmt.Sprint(p.Value)
		}
		return strings.Join(parts, IdentifierSeparator)
	default:
		return fmt.Sprint(id)
	}
}

// InternalID returns the identifier string for persisted records, and a
// synthetic id built from the new-record marker and the object identity
// token otherwise.
func (r *Record) InternalID() string {
	if r.exists {
		return r.IdentifierString()
	}
	return NewRecordMarker + IdentifierSeparator + r.oid
}

// MarkPersisted flags the record as existing and snapshots the current
// values as originals. Called by the record manager after a successful save.
func (r *Record) MarkPersisted() {
	r.exists = true
	for name, v := range r.values {
		r.origs[name] = v
	}
}

// MarkDeleted flags the record as no longer persisted. Called by the
// record manager after a successful delete.
func (r *Record) MarkDeleted() {
	r.exists = false
}

// equalValues compares two field values with an explicit per-type
// comparer: boolean fields compare after canonical bool coercion, numeric
// fields after canonical numeric rendering, everything else by exact value
// equality.
func equalValues(f *schema.Field, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if f != nil {
		switch f.Type {
		case schema.TypeBoolean:
			ab, aok := looseBool(a)
			bb, bok := looseBool(b)
			if aok && bok {
				return ab == bb
			}
		case schema.TypeInteger, schema.TypeDecimal, schema.TypeFloat:
			af, aok := looseFloat(a)
			bf, bok := looseFloat(b)
			if aok && bok {
				return af == bf
			}
		}
	}
	if as, aok := stringValue(a); aok {
		if bs, bok := stringValue(b); bok {
			return as == bs
		}
	}
	if reflect.TypeOf(a) == reflect.TypeOf(b) && reflect.TypeOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// looseBool coerces boolean-ish values: true/1/"1"/"true" are true,
// false/0/"0"/""/"false" are false.
func looseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "1", "t", "true", "y", "yes", "on":
			return true, true
		case "0", "f", "false", "n", "no", "off", "":
			return false, true
		}
		return false, false
	case []byte:
		return looseBool(string(t))
	default:
		if f, ok := looseFloat(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

func looseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		return looseFloat(string(t))
	default:
		return 0, false
	}
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

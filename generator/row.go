package generator

import "sort"

// Row is a declarative row definition: either a structured field map or a
// bare string alias. The string form is shorthand for {mapField: string}
// on tables with a configured map field, and the string doubles as the
// dedup key. The variant is resolved once at the saveRecord entry point.
type Row struct {
	alias  string
	fields map[string]any
	isRef  bool
}

// Fields returns a structured row with the given field values.
func Fields(values map[string]any) Row {
	return Row{fields: values}
}

// Alias returns a string-shorthand row.
func Alias(key string) Row {
	return Row{alias: key, isRef: true}
}

// IsAlias reports whether the row is in string-shorthand form.
func (r Row) IsAlias() bool {
	return r.isRef
}

// Key returns the alias of a string-shorthand row.
func (r Row) Key() string {
	return r.alias
}

// Values returns the field map of a structured row.
func (r Row) Values() map[string]any {
	return r.fields
}

// asRow normalizes the dynamic value of a relation key into a Row.
func asRow(v any) (Row, bool) {
	switch t := v.(type) {
	case Row:
		return t, true
	case string:
		return Alias(t), true
	case map[string]any:
		return Fields(t), true
	default:
		return Row{}, false
	}
}

// keyedRow is a related row together with its dedup key, if any.
type keyedRow struct {
	key string
	row Row
}

// asRows normalizes the dynamic value of a one-to-many relation key into
// an ordered list of related rows. Lists keep their order; alias-keyed
// maps are sorted by alias for determinism.
func asRows(v any) ([]keyedRow, bool) {
	switch t := v.(type) {
	case []Row:
		out := make([]keyedRow, len(t))
		for i, r := range t {
			out[i] = keyedRow{key: r.alias, row: r}
		}
		return out, true
	case []string:
		out := make([]keyedRow, len(t))
		for i, s := range t {
			out[i] = keyedRow{key: s, row: Alias(s)}
		}
		return out, true
	case []any:
		out := make([]keyedRow, 0, len(t))
		for _, e := range t {
			r, ok := asRow(e)
			if !ok {
				return nil, false
			}
			out = append(out, keyedRow{key: r.alias, row: r})
		}
		return out, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]keyedRow, 0, len(keys))
		for _, k := range keys {
			r, ok := asRow(t[k])
			if !ok {
				return nil, false
			}
			out = append(out, keyedRow{key: k, row: r})
		}
		return out, true
	default:
		if r, ok := asRow(v); ok {
			return []keyedRow{{key: r.alias, row: r}}, true
		}
		return nil, false
	}
}

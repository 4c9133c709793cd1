package generator

// CreatedRecord is one entry of the ordered creation log.
type CreatedRecord struct {
	Table string
	ID    any
}

type rowKey struct {
	table string
	key   string
}

// Session carries the mutable state of one fixture run: the declared row
// definitions, the alias-to-identifier map deduplicating already-created
// records, the ordered creation log and the per-table map-field
// configuration. A Session is owned by exactly one Generator and is not
// shared; there is no ambient or package-level state.
type Session struct {
	rowOrder []rowKey                  // declaration order of rows
	rows     map[string]map[string]Row // table -> key -> row definition
	ids      map[string]map[string]any // table -> alias -> identifier
	created  []CreatedRecord           // creation order, parents before deferred children
	mapField map[string]string         // table -> field used for string-shorthand rows
}

// NewSession returns an empty session.
func NewSession() *Session {
	s := &Session{}
	s.Clear()
	return s
}

// Clear resets all session state: row definitions, alias map, map-field
// configuration and the creation log.
func (s *Session) Clear() {
	s.rowOrder = nil
	s.rows = make(map[string]map[string]Row)
	s.ids = make(map[string]map[string]any)
	s.created = nil
	s.mapField = make(map[string]string)
}

// DeclareRow registers a declarative row definition under the given key.
// Declared rows are created by Generate, or on demand when another row
// references their key.
func (s *Session) DeclareRow(table, key string, row Row) {
	if _, ok := s.rows[table]; !ok {
		s.rows[table] = make(map[string]Row)
	}
	if _, ok := s.rows[table][key]; !ok {
		s.rowOrder = append(s.rowOrder, rowKey{table: table, key: key})
	}
	s.rows[table][key] = row
}

// SetMapField configures the field substituted for string-shorthand rows
// of the given table.
func (s *Session) SetMapField(table, field string) {
	s.mapField[table] = field
}

// MappedID returns the identifier recorded for a table/alias pair.
func (s *Session) MappedID(table, alias string) (any, bool) {
	id, ok := s.ids[table][alias]
	return id, ok
}

// Created returns a copy of the ordered creation log.
func (s *Session) Created() []CreatedRecord {
	out := make([]CreatedRecord, len(s.created))
	copy(out, s.created)
	return out
}

func (s *Session) mapID(table, alias string, id any) {
	if _, ok := s.ids[table]; !ok {
		s.ids[table] = make(map[string]any)
	}
	s.ids[table][alias] = id
}

func (s *Session) logCreated(table string, id any) {
	s.created = append(s.created, CreatedRecord{Table: table, ID: id})
}

func (s *Session) declaredRow(table, key string) (Row, bool) {
	row, ok := s.rows[table][key]
	return row, ok
}

// Package generator builds interdependent record graphs from declarative
// row definitions. Forward relation references are resolved before a
// record is persisted so foreign keys are present at insert time; owning-
// side children are deferred until the record has an identifier. Created
// records are logged in order and can be rolled back as a whole.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/manager"
	"github.com/fixtura/fixtura/record"
	"github.com/fixtura/fixtura/schema"
)

// TableAccessor is the table metadata contract the generator consumes.
type TableAccessor interface {
	Name() string
	Fields() []*schema.Field
	HasRelation(name string) bool
	Relation(name string) (*schema.Relation, error)
	Relations() []*schema.Relation
	IsFieldRequired(field string) bool
	FindByPk(ctx context.Context, id any) (*record.Record, error)
	FromRepository(id string) (*record.Record, bool)
}

// UnitOfWork is the persistence contract the generator drives.
type UnitOfWork interface {
	Table(name string) (TableAccessor, error)
	GetOrCreateRecord(table string, fields map[string]any) (*record.Record, error)
	ScheduleSave(rec *record.Record)
	ScheduleDelete(rec *record.Record)
	Commit(ctx context.Context) error
}

// ValueGenerator completes a partial row with generated random-but-valid
// values honoring each field's type and length constraints.
type ValueGenerator interface {
	RandomRecordData(fields []*schema.Field, partial map[string]any) map[string]any
}

// managerUOW adapts *manager.Manager to the UnitOfWork contract.
type managerUOW struct {
	m *manager.Manager
}

func (u managerUOW) Table(name string) (TableAccessor, error) {
	t, err := u.m.Table(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (u managerUOW) GetOrCreateRecord(table string, fields map[string]any) (*record.Record, error) {
	return u.m.GetOrCreateRecord(table, fields)
}

func (u managerUOW) ScheduleSave(rec *record.Record)   { u.m.ScheduleSave(rec) }
func (u managerUOW) ScheduleDelete(rec *record.Record) { u.m.ScheduleDelete(rec) }
func (u managerUOW) Commit(ctx context.Context) error  { return u.m.Commit(ctx) }

// Option configures a Generator.
type Option func(*Generator)

// WithValueGenerator replaces the default random value generator.
func WithValueGenerator(vg ValueGenerator) Option {
	return func(g *Generator) {
		g.values = vg
	}
}

// WithMapField configures the map field of a table, used when one of its
// rows is given as a bare string.
func WithMapField(table, field string) Option {
	return func(g *Generator) {
		g.sess.SetMapField(table, field)
	}
}

// Generator creates fixture records through a unit-of-work. Each saved
// record is committed on its own, so records created later in the same
// run can reference the identifiers of earlier ones. Generators are
// single-threaded; a Generator must not be shared between goroutines.
type Generator struct {
	uow    UnitOfWork
	values ValueGenerator
	sess   *Session
}

// New returns a Generator running against the given record manager.
func New(m *manager.Manager, opts ...Option) *Generator {
	return NewWith(managerUOW{m}, opts...)
}

// NewWith returns a Generator running against a custom unit-of-work.
func NewWith(uow UnitOfWork, opts ...Option) *Generator {
	g := &Generator{
		uow:    uow,
		values: NewValues(0),
		sess:   NewSession(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Session exposes the generator's session state.
func (g *Generator) Session() *Session {
	return g.sess
}

// DeclareRow registers a declarative row definition under the given key.
func (g *Generator) DeclareRow(table, key string, row Row) {
	g.sess.DeclareRow(table, key, row)
}

// SetMapField configures the map field of a table.
func (g *Generator) SetMapField(table, field string) {
	g.sess.SetMapField(table, field)
}

// Generate saves all declared rows in declaration order. Rows already
// created through a relation reference of an earlier row are skipped by
// the alias dedup.
func (g *Generator) Generate(ctx context.Context) error {
	for _, rk := range g.sess.rowOrder {
		row, ok := g.sess.declaredRow(rk.table, rk.key)
		if !ok {
			continue
		}
		if _, err := g.SaveRecord(ctx, rk.table, row, rk.key); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecord creates one record from a row definition and returns its
// identifier. A non-empty key makes the call idempotent: a second call
// with the same key for the same table returns the identifier recorded by
// the first, without touching the database.
func (g *Generator) SaveRecord(ctx context.Context, table string, row Row, key string) (any, error) {
	fields, shorthand, err := g.resolveRow(table, row)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = shorthand
	}
	// Idempotent by alias.
	if key != "" {
		if id, ok := g.sess.MappedID(table, key); ok {
			return id, nil
		}
	}
	t, err := g.uow.Table(table)
	if err != nil {
		return nil, err
	}
	forward, deferred, err := g.partitionRelations(t, fields)
	if err != nil {
		return nil, err
	}
	for _, fr := range forward {
		id, err := g.resolveRelated(ctx, fr.rel, fr.value)
		if err != nil {
			return nil, err
		}
		fields[fr.rel.Field] = fkValue(id, fr.rel.ForeignField)
	}
	if err := g.backfillRequired(ctx, t, fields, forward); err != nil {
		return nil, err
	}
	fields = g.values.RandomRecordData(t.Fields(), fields)
	rec, err := g.uow.GetOrCreateRecord(table, fields)
	if err != nil {
		return nil, err
	}
	g.uow.ScheduleSave(rec)
	// One commit per saved record: dependents processed below need this
	// record's identifier to exist.
	if err := g.uow.Commit(ctx); err != nil {
		return nil, err
	}
	id := rec.Identifier()
	if key != "" {
		g.sess.mapID(table, key, id)
	}
	g.sess.logCreated(table, id)
	for _, df := range deferred {
		if err := g.saveDeferred(ctx, rec, df.rel, df.value); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// RemoveGeneratedRecords rolls back the whole run: every record in the
// creation log is looked up by primary key and scheduled for deletion, in
// reverse creation order, with a single commit at the end. A logged record
// that can no longer be found fails the rollback hard. All session state
// is cleared afterwards.
func (g *Generator) RemoveGeneratedRecords(ctx context.Context) error {
	for i := len(g.sess.created) - 1; i >= 0; i-- {
		cr := g.sess.created[i]
		t, err := g.uow.Table(cr.Table)
		if err != nil {
			return err
		}
		rec, err := t.FindByPk(ctx, cr.ID)
		if err != nil {
			return err
		}
		g.uow.ScheduleDelete(rec)
	}
	if err := g.uow.Commit(ctx); err != nil {
		return err
	}
	g.sess.Clear()
	return nil
}

// resolveRow resolves the string-or-structured row polymorphism once at
// the entry point. String-shorthand rows require a configured map field.
func (g *Generator) resolveRow(table string, row Row) (map[string]any, string, error) {
	if !row.IsAlias() {
		fields := make(map[string]any, len(row.fields))
		for k, v := range row.fields {
			fields[k] = v
		}
		return fields, "", nil
	}
	mf, ok := g.sess.mapField[table]
	if !ok {
		return nil, "", fixtura.NewGeneratorError(table, "no map field configured for string-shorthand row %q", row.alias)
	}
	return map[string]any{mf: row.alias}, row.alias, nil
}

type relValue struct {
	rel   *schema.Relation
	value any
}

// partitionRelations splits the row into forward references (this table
// owns the foreign key, the related record must exist first) and deferred
// owning-side children (they need this record's identifier). Relation keys
// are removed from the row so they never reach the persistence call.
func (g *Generator) partitionRelations(t TableAccessor, fields map[string]any) (forward, deferred []relValue, err error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !t.HasRelation(k) {
			continue
		}
		rel, err := t.Relation(k)
		if err != nil {
			return nil, nil, err
		}
		v := fields[k]
		delete(fields, k)
		if ownsForeignKey(t.Name(), k, rel) {
			forward = append(forward, relValue{rel: rel, value: v})
		} else {
			deferred = append(deferred, relValue{rel: rel, value: v})
		}
	}
	return forward, deferred, nil
}

// ownsForeignKey reports whether the relation, seen from the given table
// under the given alias, points outward: the table holds the foreign key
// and the related record must be resolved before saving. Self-referencing
// relations are disambiguated by the alias side.
func ownsForeignKey(table, alias string, rel *schema.Relation) bool {
	if rel.SelfReferencing() {
		return alias == rel.Alias || alias == rel.Name
	}
	return table == rel.Table
}

// resolveRelated resolves a forward reference into the identifier of the
// related record, creating it if needed. A bare string must name a
// declared row or a previously created alias.
func (g *Generator) resolveRelated(ctx context.Context, rel *schema.Relation, v any) (any, error) {
	row, ok := asRow(v)
	if !ok {
		return nil, fixtura.NewGeneratorError(rel.Table, "invalid value for relation %q", rel.Alias)
	}
	if row.IsAlias() {
		if id, ok := g.sess.MappedID(rel.ForeignTable, row.alias); ok {
			return id, nil
		}
		declared, ok := g.sess.declaredRow(rel.ForeignTable, row.alias)
		if !ok {
			return nil, fixtura.NewGeneratorError(rel.ForeignTable, "related row %q not found", row.alias)
		}
		return g.SaveRecord(ctx, rel.ForeignTable, declared, row.alias)
	}
	return g.SaveRecord(ctx, rel.ForeignTable, row, "")
}

// backfillRequired creates empty related records for referenced-side
// relations whose foreign-key field is required but still unset, so
// required foreign keys are never left null.
func (g *Generator) backfillRequired(ctx context.Context, t TableAccessor, fields map[string]any, resolved []relValue) error {
	for _, rel := range t.Relations() {
		if rel.Table != t.Name() {
			continue
		}
		if v, ok := fields[rel.Field]; ok && v != nil {
			continue
		}
		if !t.IsFieldRequired(rel.Field) {
			continue
		}
		already := false
		for _, fr := range resolved {
			if fr.rel.Name == rel.Name {
				already = true
				break
			}
		}
		if already {
			continue
		}
		id, err := g.SaveRecord(ctx, rel.ForeignTable, Fields(nil), "")
		if err != nil {
			return err
		}
		fields[rel.Field] = fkValue(id, rel.ForeignField)
	}
	return nil
}

// saveDeferred persists the owning-side children of a freshly created
// record: every related row is saved with its foreign key pointing at the
// new record. Rows whose alias is already mapped are re-pointed in place
// instead of being created again.
func (g *Generator) saveDeferred(ctx context.Context, parent *record.Record, rel *schema.Relation, v any) error {
	fk, err := parent.Get(rel.ForeignField)
	if err != nil {
		return err
	}
	var children []keyedRow
	if rel.Cardinality == schema.OneToMany {
		rows, ok := asRows(v)
		if !ok {
			return fixtura.NewGeneratorError(rel.Table, "invalid value for relation %q", rel.ForeignAlias)
		}
		children = rows
	} else {
		row, ok := asRow(v)
		if !ok {
			return fixtura.NewGeneratorError(rel.Table, "invalid value for relation %q", rel.ForeignAlias)
		}
		children = []keyedRow{{key: row.alias, row: row}}
	}
	for _, child := range children {
		if child.key != "" {
			if id, ok := g.sess.MappedID(rel.Table, child.key); ok {
				if err := g.updateRelatedRecord(ctx, rel, id, fk); err != nil {
					return err
				}
				continue
			}
		}
		fields, key, err := g.resolveRow(rel.Table, child.row)
		if err != nil {
			return err
		}
		if key == "" {
			key = child.key
		}
		fields[rel.Field] = fk
		if _, err := g.SaveRecord(ctx, rel.Table, Fields(fields), key); err != nil {
			return err
		}
	}
	return nil
}

// fkValue extracts the value a foreign key should carry from a resolved
// identifier: the scalar itself, or the matching part of a composite.
func fkValue(id any, field string) any {
	parts, ok := id.([]record.IdentifierPart)
	if !ok {
		return id
	}
	for _, p := range parts {
		if p.Field == field {
			return p.Value
		}
	}
	return nil
}

// identifierKey renders an identifier the way the identity map keys
// persisted records.
func identifierKey(id any) string {
	parts, ok := id.([]record.IdentifierPart)
	if !ok {
		return fmt.Sprint(id)
	}
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p.Value)
	}
	return strings.Join(strs, record.IdentifierSeparator)
}

// updateRelatedRecord re-points an already-created record at the given
// parent: its foreign-key field is updated in place and committed
// immediately. The record must still be tracked by the identity map.
func (g *Generator) updateRelatedRecord(ctx context.Context, rel *schema.Relation, id, fk any) error {
	t, err := g.uow.Table(rel.Table)
	if err != nil {
		return err
	}
	rec, ok := t.FromRepository(identifierKey(id))
	if !ok {
		return fixtura.NewNotFoundErrorWithID(rel.Table, id)
	}
	if err := rec.Set(rel.Field, fk); err != nil {
		return err
	}
	g.uow.ScheduleSave(rec)
	return g.uow.Commit(ctx)
}

// Package manager implements the unit-of-work the generator and record
// engine depend on: it schedules save and delete operations and commits
// them transactionally against a dialect driver, keeping a per-session
// identity map of loaded records.
package manager

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
	"github.com/fixtura/fixtura/record"
	"github.com/fixtura/fixtura/schema"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDebug wraps the driver so that all outgoing statements are logged.
func WithDebug(logger func(...any)) Option {
	return func(m *Manager) {
		m.drv = dialect.Debug(m.drv, logger)
	}
}

// Manager is the unit-of-work. It is bound to one schema definition and
// one dialect driver and is not safe for concurrent use.
type Manager struct {
	def    *schema.Definition
	drv    dialect.Driver
	tables map[string]*Table

	saves   []*record.Record
	deletes []*record.Record
}

// New returns a Manager for the given definition and driver.
func New(def *schema.Definition, drv dialect.Driver, opts ...Option) *Manager {
	m := &Manager{
		def:    def,
		drv:    drv,
		tables: make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Definition returns the schema definition the manager is bound to.
func (m *Manager) Definition() *schema.Definition {
	return m.def
}

// Table returns the runtime table accessor for the given table name.
func (m *Manager) Table(name string) (*Table, error) {
	if t, ok := m.tables[name]; ok {
		return t, nil
	}
	def := m.def.Table(name)
	if def == nil {
		return nil, fixtura.NewTableError(name, "not defined in schema")
	}
	t := &Table{def: def, mgr: m, repo: make(map[string]*record.Record)}
	m.tables[name] = t
	return t, nil
}

// GetOrCreateRecord returns the identity-mapped record for the identifier
// contained in fields, or a fresh record populated with fields when no
// such record is tracked. Fresh records report unmodified; applying fields
// to an existing record goes through Set and contributes to its change-set.
func (m *Manager) GetOrCreateRecord(table string, fields map[string]any) (*record.Record, error) {
	t, err := m.Table(table)
	if err != nil {
		return nil, err
	}
	if id := identifierString(t.def, fields); id != "" {
		if rec, ok := t.repo[id]; ok {
			for name, v := range fields {
				if !t.def.HasField(name) {
					continue
				}
				if err := rec.Set(name, v); err != nil {
					return nil, err
				}
			}
			return rec, nil
		}
	}
	rec := record.New(t.def)
	rec.SetData(fields)
	t.repo[rec.InternalID()] = rec
	return rec, nil
}

// ScheduleSave queues a record for insertion or update on the next commit.
func (m *Manager) ScheduleSave(rec *record.Record) {
	m.saves = append(m.saves, rec)
}

// ScheduleDelete queues a record for deletion on the next commit.
func (m *Manager) ScheduleDelete(rec *record.Record) {
	m.deletes = append(m.deletes, rec)
}

// Commit flushes all scheduled operations in one transaction: saves in
// schedule order first, then deletes. On success saved records exist and
// are re-snapshotted, deleted records are evicted from identity tracking.
func (m *Manager) Commit(ctx context.Context) error {
	if len(m.saves) == 0 && len(m.deletes) == 0 {
		return nil
	}
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("fixtura: begin commit: %w", err)
	}
	for _, rec := range m.saves {
		if rec.Exists() {
			err = m.update(ctx, tx, rec)
		} else {
			err = m.insert(ctx, tx, rec)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, rec := range m.deletes {
		if err := m.delete(ctx, tx, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fixtura: commit: %w", err)
	}
	for _, rec := range m.saves {
		t, _ := m.Table(rec.Table().Name)
		oldID := rec.InternalID()
		rec.MarkPersisted()
		if t != nil {
			delete(t.repo, oldID)
			t.repo[rec.InternalID()] = rec
		}
	}
	for _, rec := range m.deletes {
		if t, _ := m.Table(rec.Table().Name); t != nil {
			delete(t.repo, rec.InternalID())
		}
	}
	for _, rec := range m.deletes {
		rec.MarkDeleted()
	}
	m.saves = nil
	m.deletes = nil
	return nil
}

// builder returns a statement builder with the placeholder format of the
// underlying dialect.
func (m *Manager) builder() sq.StatementBuilderType {
	if m.drv.Dialect() == dialect.Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (m *Manager) insert(ctx context.Context, tx dialect.Tx, rec *record.Record) error {
	t := rec.Table()
	if t.ReadOnly {
		return fixtura.ErrReadOnly
	}
	var (
		cols []string
		vals []any
	)
	data := rec.Data()
	for _, f := range t.Fields {
		v, ok := data[f.Name]
		if !ok || (v == nil && f.AutoIncrement) {
			continue
		}
		cols = append(cols, f.Name)
		vals = append(vals, v)
	}
	ins := m.builder().Insert(t.Name).Columns(cols...).Values(vals...)
	pks := t.PrimaryFields()
	autoPk := ""
	if len(pks) == 1 && pks[0].AutoIncrement && data[pks[0].Name] == nil {
		autoPk = pks[0].Name
	}
	if autoPk != "" && m.drv.Dialect() == dialect.Postgres {
		query, args, err := ins.Suffix("RETURNING " + autoPk).ToSql()
		if err != nil {
			return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
		}
		rows := &fsql.Rows{}
		if err := tx.Query(ctx, query, args, rows); err != nil {
			return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return fmt.Errorf("fixtura: insert %s: no id returned", t.Name)
		}
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
		}
		return rec.Set(autoPk, id)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
	}
	var res fsql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
	}
	if autoPk != "" {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("fixtura: insert %s: %w", t.Name, err)
		}
		return rec.Set(autoPk, id)
	}
	return nil
}

func (m *Manager) update(ctx context.Context, tx dialect.Tx, rec *record.Record) error {
	t := rec.Table()
	if t.ReadOnly {
		return fixtura.ErrReadOnly
	}
	modified := rec.ModifiedFields()
	if len(modified) == 0 {
		return nil
	}
	data := rec.Data()
	upd := m.builder().Update(t.Name)
	for _, name := range modified {
		upd = upd.Set(name, data[name])
	}
	where, err := pkPredicate(t, func(field string) (any, error) {
		return rec.OriginalFieldValue(field)
	})
	if err != nil {
		return err
	}
	query, args, err := upd.Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("fixtura: update %s: %w", t.Name, err)
	}
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("fixtura: update %s: %w", t.Name, err)
	}
	return nil
}

func (m *Manager) delete(ctx context.Context, tx dialect.Tx, rec *record.Record) error {
	t := rec.Table()
	if t.ReadOnly {
		return fixtura.ErrReadOnly
	}
	where, err := pkPredicate(t, func(field string) (any, error) {
		return rec.Get(field)
	})
	if err != nil {
		return err
	}
	query, args, err := m.builder().Delete(t.Name).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("fixtura: delete %s: %w", t.Name, err)
	}
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("fixtura: delete %s: %w", t.Name, err)
	}
	return nil
}

// pkPredicate builds the primary-key equality predicate for a table, with
// values supplied by the given lookup function.
func pkPredicate(t *schema.Table, value func(string) (any, error)) (sq.Eq, error) {
	pks := t.PrimaryFields()
	if len(pks) == 0 {
		return nil, fixtura.NewTableError(t.Name, "no identifier fields")
	}
	eq := make(sq.Eq, len(pks))
	for _, f := range pks {
		v, err := value(f.Name)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fixtura.NewTableError(t.Name, "identifier field %q not set", f.Name)
		}
		eq[f.Name] = v
	}
	return eq, nil
}

// identifierString renders the identifier contained in a plain field map,
// or "" if any identifier field is missing.
func identifierString(t *schema.Table, fields map[string]any) string {
	pks := t.PrimaryFields()
	if len(pks) == 0 {
		return ""
	}
	id := ""
	for i, f := range pks {
		v, ok := fields[f.Name]
		if !ok || v == nil {
			return ""
		}
		if i > 0 {
			id += record.IdentifierSeparator
		}
		id += fmt.Sprint(v)
	}
	return id
}

package importer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/dialect"
	"github.com/fixtura/fixtura/schema"
)

// Option configures an Importer.
type Option func(*Importer) error

// WithDatabase sets the database (schema) name to introspect, for
// dialects that cannot discover it from the connection.
func WithDatabase(name string) Option {
	return func(imp *Importer) error {
		imp.database = name
		return nil
	}
}

// WithDSN derives the database name from a data source name using the
// dialect's own DSN syntax.
func WithDSN(dsn string) Option {
	return func(imp *Importer) error {
		name, err := databaseFromDSN(imp.drv.Dialect(), dsn)
		if err != nil {
			return err
		}
		imp.database = name
		return nil
	}
}

// WithTypeMapper replaces the registered type mapper.
func WithTypeMapper(m TypeMapper) Option {
	return func(imp *Importer) error {
		imp.mapper = m
		return nil
	}
}

// WithInspector replaces the registered inspector.
func WithInspector(insp Inspector) Option {
	return func(imp *Importer) error {
		imp.insp = insp
		return nil
	}
}

// WithCache stores a definition snapshot in the given cache after every
// successful import.
func WithCache(c fixtura.Cache, ttl time.Duration) Option {
	return func(imp *Importer) error {
		imp.cache = c
		imp.ttl = ttl
		return nil
	}
}

// Importer builds schema definitions from a live data source.
type Importer struct {
	drv      dialect.Driver
	insp     Inspector
	mapper   TypeMapper
	database string
	cache    fixtura.Cache
	ttl      time.Duration
}

// New returns an Importer for the given driver. The dialect must have a
// registered inspector and type mapper.
func New(drv dialect.Driver, opts ...Option) (*Importer, error) {
	imp := &Importer{drv: drv}
	for _, opt := range opts {
		if err := opt(imp); err != nil {
			return nil, err
		}
	}
	if imp.insp == nil || imp.mapper == nil {
		f, m, ok := lookup(drv.Dialect())
		if !ok {
			return nil, fixtura.NewSchemaError("no inspector registered for dialect %q", drv.Dialect())
		}
		if imp.insp == nil {
			imp.insp = f(drv, imp.database)
		}
		if imp.mapper == nil {
			imp.mapper = m
		}
	}
	return imp, nil
}

// ImportDefinition introspects the data source and merges the result into
// existing (which may be nil). Existing field and relation properties take
// precedence; introspected data fills the gaps. Fresh relations get their
// aliases guessed. The returned definition is sorted by table and relation
// name.
func (imp *Importer) ImportDefinition(ctx context.Context, existing *schema.Definition) (*schema.Definition, error) {
	tables, err := imp.insp.Tables(ctx)
	if err != nil {
		return nil, fixtura.NewSchemaErrorWrap(err, "list tables")
	}
	type introspected struct {
		table   RawTable
		columns []RawColumn
		indexes []RawIndex
		fks     []RawForeignKey
	}
	results := make([]introspected, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, rt := range tables {
		g.Go(func() error {
			cols, err := imp.insp.Columns(gctx, rt.Name)
			if err != nil {
				return fixtura.NewSchemaErrorWrap(err, "columns of %q", rt.Name)
			}
			results[i] = introspected{table: rt, columns: cols}
			if rt.View {
				return nil
			}
			idx, err := imp.insp.Indexes(gctx, rt.Name)
			if err != nil {
				return fixtura.NewSchemaErrorWrap(err, "indexes of %q", rt.Name)
			}
			fks, err := imp.insp.ForeignKeys(gctx, rt.Name)
			if err != nil {
				return fixtura.NewSchemaErrorWrap(err, "foreign keys of %q", rt.Name)
			}
			results[i].indexes = idx
			results[i].fks = fks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	def := &schema.Definition{}
	for _, res := range results {
		table, err := imp.buildTable(res.table, res.columns, res.indexes, existing)
		if err != nil {
			return nil, err
		}
		def.AddTable(table)
		for _, fk := range res.fks {
			imp.mergeRelation(def, table, fk, res.indexes, existing)
		}
	}
	def.Sort()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if imp.cache != nil {
		if err := imp.storeSnapshot(ctx, def); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// FromCache returns the last stored definition snapshot, if any.
func (imp *Importer) FromCache(ctx context.Context) (*schema.Definition, bool, error) {
	if imp.cache == nil {
		return nil, false, nil
	}
	data, err := imp.cache.Get(ctx, imp.snapshotKey())
	if err != nil {
		return nil, false, fixtura.NewSchemaErrorWrap(err, "read definition snapshot")
	}
	if data == nil {
		return nil, false, nil
	}
	def, err := schema.FromSnapshot(data)
	if err != nil {
		return nil, false, err
	}
	return def, true, nil
}

func (imp *Importer) storeSnapshot(ctx context.Context, def *schema.Definition) error {
	data, err := schema.Snapshot(def)
	if err != nil {
		return err
	}
	if err := imp.cache.Set(ctx, imp.snapshotKey(), data, imp.ttl); err != nil {
		return fixtura.NewSchemaErrorWrap(err, "store definition snapshot")
	}
	return nil
}

func (imp *Importer) snapshotKey() string {
	return fixtura.SnapshotKey{Dialect: imp.drv.Dialect(), Database: imp.database}.String()
}

// buildTable turns introspected columns and indexes into a table
// definition, merging over the existing definition of the same table.
// Views become read-only, field-only definitions.
func (imp *Importer) buildTable(rt RawTable, columns []RawColumn, indexes []RawIndex, existing *schema.Definition) (*schema.Table, error) {
	var prev *schema.Table
	if existing != nil {
		prev = existing.Table(rt.Name)
	}
	table := &schema.Table{Name: rt.Name, ReadOnly: rt.View}
	for _, col := range columns {
		f, err := imp.buildField(col)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			mergeField(f, prev.Field(col.Name))
		}
		table.Fields = append(table.Fields, f)
	}
	if rt.View {
		return table, nil
	}
	for _, idx := range indexes {
		table.Indexes = append(table.Indexes, &schema.Index{
			Name:   idx.Name,
			Fields: idx.Fields,
			Unique: idx.Unique,
		})
	}
	return table, nil
}

// buildField parses the raw column type and maps it to an ORM type. An
// unrecognized raw type aborts the whole import.
func (imp *Importer) buildField(col RawColumn) (*schema.Field, error) {
	dbt, err := schema.ParseDbType(col.Type)
	if err != nil {
		return nil, err
	}
	ormType, err := imp.mapper.OrmType(dbt.Name)
	if err != nil {
		return nil, fixtura.NewSchemaError("column %q: unknown raw type %q", col.Name, col.Type)
	}
	return &schema.Field{
		Name:          col.Name,
		Type:          ormType,
		Length:        dbt.Length,
		Required:      col.NotNull,
		Default:       col.Default,
		Primary:       col.Primary,
		AutoIncrement: col.AutoIncrement,
		Unsigned:      dbt.Unsigned(),
		Values:        dbt.Values,
	}, nil
}

// mergeField keeps existing field properties and lets introspected data
// fill the gaps: any property the existing definition sets wins.
func mergeField(f, prev *schema.Field) {
	if prev == nil {
		return
	}
	if prev.Type != "" {
		f.Type = prev.Type
	}
	if prev.Length != 0 {
		f.Length = prev.Length
	}
	if prev.Required {
		f.Required = true
	}
	if prev.Default != nil {
		f.Default = prev.Default
	}
	if prev.Primary {
		f.Primary = true
	}
	if prev.AutoIncrement {
		f.AutoIncrement = true
	}
	if prev.Unsigned {
		f.Unsigned = true
	}
	if len(prev.Values) > 0 {
		f.Values = prev.Values
	}
	if prev.Foreign != "" {
		f.Foreign = prev.Foreign
	}
}

// mergeRelation merges one introspected foreign key into the definition:
// explicit configuration from the existing definition wins, fresh
// relations get guessed aliases. The owning field's foreign property is
// attached to the relation name either way.
func (imp *Importer) mergeRelation(def *schema.Definition, table *schema.Table, fk RawForeignKey, indexes []RawIndex, existing *schema.Definition) {
	rel := &schema.Relation{
		Name:         fk.Name,
		Table:        fk.Table,
		Field:        fk.Field,
		ForeignTable: fk.ForeignTable,
		ForeignField: fk.ForeignField,
		Cardinality:  guessCardinality(table, fk, indexes),
	}
	var prev *schema.Relation
	if existing != nil {
		prev = existing.Relation(fk.Name)
	}
	rel.Merge(prev)
	rel.GuessAliases()
	def.AddRelation(rel)
	if f := table.Field(fk.Field); f != nil {
		f.Foreign = rel.Name
	}
}

// guessCardinality derives the relation cardinality from the owning
// column: a unique or primary single-column key makes it one-to-one,
// anything else one-to-many.
func guessCardinality(table *schema.Table, fk RawForeignKey, indexes []RawIndex) schema.Cardinality {
	if f := table.Field(fk.Field); f != nil && f.Primary && len(table.PrimaryFields()) == 1 {
		return schema.OneToOne
	}
	for _, idx := range indexes {
		if idx.Unique && len(idx.Fields) == 1 && idx.Fields[0] == fk.Field {
			return schema.OneToOne
		}
	}
	return schema.OneToMany
}

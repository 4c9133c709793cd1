package generator_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/generator"
	"github.com/fixtura/fixtura/record"
	"github.com/fixtura/fixtura/schema"
)

func testDefinition() *schema.Definition {
	def := &schema.Definition{}
	def.AddTable(&schema.Table{
		Name: "users",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true, AutoIncrement: true, Required: true},
			{Name: "email", Type: schema.TypeString, Length: 255, Required: true},
		},
	})
	def.AddTable(&schema.Table{
		Name: "posts",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true, AutoIncrement: true, Required: true},
			{Name: "title", Type: schema.TypeString, Length: 128, Required: true},
			{Name: "author_id", Type: schema.TypeInteger, Required: true, Foreign: "fk_posts_author"},
		},
	})
	def.AddTable(&schema.Table{
		Name: "categories",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true, AutoIncrement: true, Required: true},
			{Name: "name", Type: schema.TypeString, Length: 64, Required: true},
			{Name: "parent_id", Type: schema.TypeInteger, Foreign: "fk_categories_parent"},
		},
	})
	def.AddRelation(&schema.Relation{
		Name:         "fk_posts_author",
		Table:        "posts",
		Field:        "author_id",
		ForeignTable: "users",
		ForeignField: "id",
		Cardinality:  schema.OneToMany,
		Alias:        "Author",
		ForeignAlias: "Posts",
	})
	def.AddRelation(&schema.Relation{
		Name:         "fk_categories_parent",
		Table:        "categories",
		Field:        "parent_id",
		ForeignTable: "categories",
		ForeignField: "id",
		Cardinality:  schema.OneToMany,
		Alias:        "Parent",
		ForeignAlias: "Children",
	})
	return def
}

// fakeUOW is an in-memory unit-of-work: commits assign sequential
// identifiers and keep every persisted record addressable by identifier.
type fakeUOW struct {
	def     *schema.Definition
	tables  map[string]*fakeTable
	saves   []*record.Record
	deletes []*record.Record
	nextID  int64
	commits int

	inserted []string // table names, in commit order
	deleted  []string

	failTable string // saving this table fails the commit
}

func newFakeUOW(def *schema.Definition) *fakeUOW {
	return &fakeUOW{def: def, tables: make(map[string]*fakeTable), nextID: 1}
}

func (u *fakeUOW) Table(name string) (generator.TableAccessor, error) {
	t, err := u.table(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (u *fakeUOW) table(name string) (*fakeTable, error) {
	if t, ok := u.tables[name]; ok {
		return t, nil
	}
	def := u.def.Table(name)
	if def == nil {
		return nil, fixtura.NewTableError(name, "not defined in schema")
	}
	t := &fakeTable{def: def, uow: u, repo: make(map[string]*record.Record)}
	u.tables[name] = t
	return t, nil
}

func (u *fakeUOW) GetOrCreateRecord(table string, fields map[string]any) (*record.Record, error) {
	t, err := u.table(table)
	if err != nil {
		return nil, err
	}
	rec := record.New(t.def)
	rec.SetData(fields)
	t.repo[rec.InternalID()] = rec
	return rec, nil
}

func (u *fakeUOW) ScheduleSave(rec *record.Record)   { u.saves = append(u.saves, rec) }
func (u *fakeUOW) ScheduleDelete(rec *record.Record) { u.deletes = append(u.deletes, rec) }

func (u *fakeUOW) Commit(context.Context) error {
	u.commits++
	for _, rec := range u.saves {
		if rec.Table().Name == u.failTable {
			return fmt.Errorf("fake: save %s failed", u.failTable)
		}
	}
	for _, rec := range u.saves {
		t := u.tables[rec.Table().Name]
		if !rec.Exists() {
			pks := rec.Table().PrimaryFields()
			if len(pks) == 1 && pks[0].AutoIncrement {
				if id, _ := rec.Get(pks[0].Name); id == nil {
					if err := rec.Set(pks[0].Name, u.nextID); err != nil {
						return err
					}
					u.nextID++
				}
			}
			u.inserted = append(u.inserted, rec.Table().Name)
		}
		oldID := rec.InternalID()
		rec.MarkPersisted()
		delete(t.repo, oldID)
		t.repo[rec.InternalID()] = rec
	}
	for _, rec := range u.deletes {
		t := u.tables[rec.Table().Name]
		delete(t.repo, rec.InternalID())
		rec.MarkDeleted()
		u.deleted = append(u.deleted, rec.Table().Name)
	}
	u.saves = nil
	u.deletes = nil
	return nil
}

type fakeTable struct {
	def  *schema.Table
	uow  *fakeUOW
	repo map[string]*record.Record
}

func (t *fakeTable) Name() string                  { return t.def.Name }
func (t *fakeTable) Fields() []*schema.Field       { return t.def.Fields }
func (t *fakeTable) Relations() []*schema.Relation { return t.uow.def.TableRelations(t.def.Name) }

func (t *fakeTable) Relation(name string) (*schema.Relation, error) {
	for _, r := range t.Relations() {
		switch {
		case r.Table == t.def.Name && r.Alias == name,
			r.ForeignTable == t.def.Name && r.ForeignAlias == name,
			r.Name == name:
			return r, nil
		}
	}
	return nil, fixtura.NewTableError(t.def.Name, "relation %q not defined", name)
}

func (t *fakeTable) HasRelation(name string) bool {
	_, err := t.Relation(name)
	return err == nil
}

func (t *fakeTable) IsFieldRequired(field string) bool {
	f := t.def.Field(field)
	return f != nil && f.Required
}

func (t *fakeTable) FromRepository(id string) (*record.Record, bool) {
	rec, ok := t.repo[id]
	return rec, ok
}

func (t *fakeTable) FindByPk(_ context.Context, id any) (*record.Record, error) {
	key := fmt.Sprint(id)
	if parts, ok := id.([]record.IdentifierPart); ok {
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = fmt.Sprint(p.Value)
		}
		key = strings.Join(strs, record.IdentifierSeparator)
	}
	if rec, ok := t.repo[key]; ok {
		return rec, nil
	}
	return nil, fixtura.NewNotFoundErrorWithID(t.def.Name, id)
}

// stubValues fills every missing plain field with a recognizable value.
type stubValues struct{}

func (stubValues) RandomRecordData(fields []*schema.Field, partial map[string]any) map[string]any {
	data := make(map[string]any, len(fields))
	for k, v := range partial {
		data[k] = v
	}
	for _, f := range fields {
		if _, ok := data[f.Name]; ok {
			continue
		}
		if f.AutoIncrement || f.Foreign != "" {
			continue
		}
		data[f.Name] = "stub-" + f.Name
	}
	return data
}

func newGenerator(uow *fakeUOW, opts ...generator.Option) *generator.Generator {
	opts = append([]generator.Option{generator.WithValueGenerator(stubValues{})}, opts...)
	return generator.NewWith(uow, opts...)
}

func fieldValue(t *testing.T, rec *record.Record, field string) any {
	t.Helper()
	v, err := rec.Get(field)
	require.NoError(t, err)
	return v
}

func TestSaveRecord(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	id, err := g.SaveRecord(context.Background(), "users", generator.Fields(map[string]any{
		"email": "alice@example.com",
	}), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	tbl, err := uow.table("users")
	require.NoError(t, err)
	rec, ok := tbl.FromRepository("1")
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", fieldValue(t, rec, "email"))
	assert.Equal(t, []string{"users"}, uow.inserted)
	assert.Equal(t, []generator.CreatedRecord{{Table: "users", ID: int64(1)}}, g.Session().Created())
}

func TestSaveRecordIdempotentByKey(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)
	ctx := context.Background()

	first, err := g.SaveRecord(ctx, "users", generator.Fields(map[string]any{"email": "a@b.c"}), "alice")
	require.NoError(t, err)
	second, err := g.SaveRecord(ctx, "users", generator.Fields(map[string]any{"email": "other@b.c"}), "alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"users"}, uow.inserted)
	assert.Len(t, g.Session().Created(), 1)
}

func TestGenerateDeclarationOrder(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	g.DeclareRow("users", "alice", generator.Fields(map[string]any{"email": "a@b.c"}))
	g.DeclareRow("posts", "p1", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": "alice",
	}))
	require.NoError(t, g.Generate(context.Background()))

	created := g.Session().Created()
	require.Len(t, created, 2)
	assert.Equal(t, "users", created[0].Table)
	assert.Equal(t, "posts", created[1].Table)

	posts, err := uow.table("posts")
	require.NoError(t, err)
	rec, ok := posts.FromRepository("2")
	require.True(t, ok)
	assert.Equal(t, int64(1), fieldValue(t, rec, "author_id"))
}

func TestForwardReferenceCreatesDeclaredRow(t *testing.T) {
	t.Parallel()

	// The referencing row comes first; the referenced row is created on
	// demand from its declaration and deduped when Generate reaches it.
	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	g.DeclareRow("posts", "p1", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": "alice",
	}))
	g.DeclareRow("users", "alice", generator.Fields(map[string]any{"email": "a@b.c"}))
	require.NoError(t, g.Generate(context.Background()))

	assert.Equal(t, []string{"users", "posts"}, uow.inserted)
	assert.Len(t, g.Session().Created(), 2)
}

func TestForwardReferenceUnknownAlias(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "posts", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": "ghost",
	}), "")
	require.Error(t, err)
	assert.True(t, fixtura.IsGeneratorError(err))
	assert.Contains(t, err.Error(), `related row "ghost" not found`)
	assert.Empty(t, uow.inserted)
}

func TestInlineRelatedRow(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "posts", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": generator.Fields(map[string]any{"email": "inline@b.c"}),
	}), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "posts"}, uow.inserted)
	users, err := uow.table("users")
	require.NoError(t, err)
	rec, ok := users.FromRepository("1")
	require.True(t, ok)
	assert.Equal(t, "inline@b.c", fieldValue(t, rec, "email"))
}

func TestStringShorthand(t *testing.T) {
	t.Parallel()

	t.Run("without map field", func(t *testing.T) {
		t.Parallel()
		g := newGenerator(newFakeUOW(testDefinition()))
		_, err := g.SaveRecord(context.Background(), "users", generator.Alias("bob"), "")
		require.Error(t, err)
		assert.True(t, fixtura.IsGeneratorError(err))
	})

	t.Run("with map field", func(t *testing.T) {
		t.Parallel()
		uow := newFakeUOW(testDefinition())
		g := newGenerator(uow, generator.WithMapField("users", "email"))

		id, err := g.SaveRecord(context.Background(), "users", generator.Alias("bob"), "")
		require.NoError(t, err)

		users, err := uow.table("users")
		require.NoError(t, err)
		rec, ok := users.FromRepository("1")
		require.True(t, ok)
		assert.Equal(t, "bob", fieldValue(t, rec, "email"))

		// The string doubles as the dedup key.
		again, err := g.SaveRecord(context.Background(), "users", generator.Alias("bob"), "")
		require.NoError(t, err)
		assert.Equal(t, id, again)
		assert.Equal(t, []string{"users"}, uow.inserted)
	})
}

func TestBackfillRequiredForeignKey(t *testing.T) {
	t.Parallel()

	// posts.author_id is required but the row leaves it unset, so an
	// empty users record is created first.
	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "posts", generator.Fields(map[string]any{
		"title": "Orphan",
	}), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts"}, uow.inserted)

	posts, err := uow.table("posts")
	require.NoError(t, err)
	rec, ok := posts.FromRepository("2")
	require.True(t, ok)
	assert.Equal(t, int64(1), fieldValue(t, rec, "author_id"))
}

func TestNoBackfillForOptionalForeignKey(t *testing.T) {
	t.Parallel()

	// categories.parent_id is optional: no parent is invented.
	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "categories", generator.Fields(map[string]any{
		"name": "Root",
	}), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"categories"}, uow.inserted)
}

func TestDeferredChildren(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "users", generator.Fields(map[string]any{
		"email": "a@b.c",
		"Posts": []generator.Row{
			generator.Fields(map[string]any{"title": "First"}),
			generator.Fields(map[string]any{"title": "Second"}),
		},
	}), "alice")
	require.NoError(t, err)

	// Parent first, then its children.
	assert.Equal(t, []string{"users", "posts", "posts"}, uow.inserted)
	posts, err := uow.table("posts")
	require.NoError(t, err)
	for _, id := range []string{"2", "3"} {
		rec, ok := posts.FromRepository(id)
		require.True(t, ok)
		assert.Equal(t, int64(1), fieldValue(t, rec, "author_id"))
	}
}

func TestDeferredChildrenAliasCollection(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "users", generator.Fields(map[string]any{
		"email": "a@b.c",
		"Posts": map[string]any{
			"p1": generator.Fields(map[string]any{"title": "First"}),
			"p2": generator.Fields(map[string]any{"title": "Second"}),
		},
	}), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts", "posts"}, uow.inserted)

	// Children are addressable under their collection keys.
	_, ok := g.Session().MappedID("posts", "p1")
	assert.True(t, ok)
	_, ok = g.Session().MappedID("posts", "p2")
	assert.True(t, ok)
}

func TestDeferredChildRepointsExisting(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)
	ctx := context.Background()

	_, err := g.SaveRecord(ctx, "posts", generator.Fields(map[string]any{"title": "Loose"}), "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"users", "posts"}, uow.inserted) // backfilled author

	// The parent claims the already-created post by key: it is updated
	// in place, not created again.
	_, err = g.SaveRecord(ctx, "users", generator.Fields(map[string]any{
		"email": "a@b.c",
		"Posts": []string{"p1"},
	}), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts", "users"}, uow.inserted)

	postID, ok := g.Session().MappedID("posts", "p1")
	require.True(t, ok)
	posts, err := uow.table("posts")
	require.NoError(t, err)
	rec, ok := posts.FromRepository(fmt.Sprint(postID))
	require.True(t, ok)
	aliceID, ok := g.Session().MappedID("users", "alice")
	require.True(t, ok)
	assert.Equal(t, aliceID, fieldValue(t, rec, "author_id"))
}

func TestSelfReferencingRelation(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)
	ctx := context.Background()

	g.DeclareRow("categories", "root", generator.Fields(map[string]any{"name": "Root"}))
	_, err := g.SaveRecord(ctx, "categories", generator.Fields(map[string]any{
		"name":   "Leaf",
		"Parent": "root",
	}), "leaf")
	require.NoError(t, err)

	cats, err := uow.table("categories")
	require.NoError(t, err)
	leaf, ok := cats.FromRepository("2")
	require.True(t, ok)
	assert.Equal(t, int64(1), fieldValue(t, leaf, "parent_id"))

	// The other direction: children are deferred until the parent exists.
	_, err = g.SaveRecord(ctx, "categories", generator.Fields(map[string]any{
		"name": "Trunk",
		"Children": []generator.Row{
			generator.Fields(map[string]any{"name": "Branch"}),
		},
	}), "trunk")
	require.NoError(t, err)
	branch, ok := cats.FromRepository("4")
	require.True(t, ok)
	assert.Equal(t, int64(3), fieldValue(t, branch, "parent_id"))
}

func TestRemoveGeneratedRecords(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)
	ctx := context.Background()

	g.DeclareRow("users", "alice", generator.Fields(map[string]any{"email": "a@b.c"}))
	g.DeclareRow("posts", "p1", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": "alice",
	}))
	require.NoError(t, g.Generate(ctx))
	require.NoError(t, g.RemoveGeneratedRecords(ctx))

	// Reverse creation order: the dependent post goes before its author.
	assert.Equal(t, []string{"posts", "users"}, uow.deleted)
	assert.Empty(t, g.Session().Created())

	// A second rollback has nothing to do.
	require.NoError(t, g.RemoveGeneratedRecords(ctx))
	assert.Equal(t, []string{"posts", "users"}, uow.deleted)
}

func TestRemoveGeneratedRecordsMissingRecord(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	g := newGenerator(uow)
	ctx := context.Background()

	_, err := g.SaveRecord(ctx, "users", generator.Fields(map[string]any{"email": "a@b.c"}), "alice")
	require.NoError(t, err)

	// Someone else removed the record behind our back.
	users, err := uow.table("users")
	require.NoError(t, err)
	delete(users.repo, "1")

	err = g.RemoveGeneratedRecords(ctx)
	require.Error(t, err)
	assert.True(t, fixtura.IsNotFound(err))
	// The creation log survives a failed rollback.
	assert.Len(t, g.Session().Created(), 1)
}

func TestSaveRecordCommitFailure(t *testing.T) {
	t.Parallel()

	uow := newFakeUOW(testDefinition())
	uow.failTable = "posts"
	g := newGenerator(uow)

	_, err := g.SaveRecord(context.Background(), "posts", generator.Fields(map[string]any{
		"title":  "Hello",
		"Author": generator.Fields(map[string]any{"email": "a@b.c"}),
	}), "p1")
	require.Error(t, err)

	// The author committed before the failure and stays in the log.
	created := g.Session().Created()
	require.Len(t, created, 1)
	assert.Equal(t, "users", created[0].Table)
}

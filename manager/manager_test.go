package manager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixtura/fixtura"
	"github.com/fixtura/fixtura/dialect"
	fsql "github.com/fixtura/fixtura/dialect/sql"
	"github.com/fixtura/fixtura/manager"
	"github.com/fixtura/fixtura/schema"
)

func testDefinition() *schema.Definition {
	def := &schema.Definition{}
	def.AddTable(&schema.Table{
		Name: "users",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true, AutoIncrement: true, Required: true},
			{Name: "email", Type: schema.TypeString, Length: 255, Required: true},
			{Name: "active", Type: schema.TypeBoolean},
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
		Name:     "v_totals",
		ReadOnly: true,
		Fields: []*schema.Field{
			{Name: "total", Type: schema.TypeDecimal, Length: 11},
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
	return def
}

func newManager(t *testing.T, dialectName string) (*manager.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return manager.New(testDefinition(), fsql.OpenDB(dialectName, db)), mock
}

func TestTableAccess(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, dialect.MySQL)
	tbl, err := m.Table("users")
	require.NoError(t, err)
	assert.Equal(t, "users", tbl.Name())
	assert.True(t, tbl.IsFieldRequired("email"))
	assert.False(t, tbl.IsFieldRequired("active"))

	// Same accessor on repeated calls.
	again, err := m.Table("users")
	require.NoError(t, err)
	assert.Same(t, tbl, again)

	_, err = m.Table("missing")
	require.Error(t, err)
	assert.True(t, fixtura.IsTableError(err))
}

func TestTableRelationLookup(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, dialect.MySQL)
	posts, err := m.Table("posts")
	require.NoError(t, err)

	// By owning-side alias.
	rel, err := posts.Relation("Author")
	require.NoError(t, err)
	assert.Equal(t, "fk_posts_author", rel.Name)

	// By relation name.
	rel, err = posts.Relation("fk_posts_author")
	require.NoError(t, err)
	assert.Equal(t, "users", rel.ForeignTable)

	// Referenced side sees the foreign alias.
	users, err := m.Table("users")
	require.NoError(t, err)
	assert.True(t, users.HasRelation("Posts"))
	assert.False(t, users.HasRelation("Author"))

	_, err = posts.Relation("Ghost")
	require.Error(t, err)
	assert.True(t, fixtura.IsTableError(err))
}

func TestGetOrCreateRecord(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, dialect.MySQL)

	rec, err := m.GetOrCreateRecord("users", map[string]any{"id": 1, "email": "a@b.c"})
	require.NoError(t, err)
	assert.False(t, rec.IsModified())

	// Fresh records are identity-tracked under their internal id only,
	// so a second call with the same fields yields a second record. The
	// identity map keys persisted records by real identifier.
	rec.MarkPersisted()
	tbl, err := m.Table("users")
	require.NoError(t, err)
	_, ok := tbl.FromRepository(rec.InternalID())
	assert.False(t, ok) // still keyed under the pre-persist internal id
}

func TestCommitInsert(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"email": "a@b.c"})
	require.NoError(t, err)
	m.ScheduleSave(rec)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs("a@b.c").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Commit(context.Background()))
	assert.True(t, rec.Exists())
	assert.Equal(t, "5", rec.IdentifierString())
	assert.False(t, rec.IsModified())

	// The identity map is re-keyed under the real identifier.
	tbl, err := m.Table("users")
	require.NoError(t, err)
	got, ok := tbl.FromRepository("5")
	require.True(t, ok)
	assert.Same(t, rec, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitInsertPostgresReturning(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.Postgres)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"email": "a@b.c"})
	require.NoError(t, err)
	m.ScheduleSave(rec)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users \(email\) VALUES \(\$1\) RETURNING id`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	require.NoError(t, m.Commit(context.Background()))
	assert.Equal(t, "7", rec.IdentifierString())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUpdate(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"id": 5, "email": "a@b.c"})
	require.NoError(t, err)
	rec.MarkPersisted()

	require.NoError(t, rec.Set("email", "new@b.c"))
	m.ScheduleSave(rec)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET email = .+ WHERE id = .+").
		WithArgs("new@b.c", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Commit(context.Background()))
	assert.False(t, rec.IsModified())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUpdateClean(t *testing.T) {
	t.Parallel()

	// A persisted record without modifications produces no statement.
	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"id": 5, "email": "a@b.c"})
	require.NoError(t, err)
	rec.MarkPersisted()
	m.ScheduleSave(rec)

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, m.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitDelete(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"id": 5, "email": "a@b.c"})
	require.NoError(t, err)
	rec.MarkPersisted()
	m.ScheduleDelete(rec)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users WHERE id = .+").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Commit(context.Background()))
	assert.False(t, rec.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRollsBackOnError(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("users", map[string]any{"email": "a@b.c"})
	require.NoError(t, err)
	m.ScheduleSave(rec)

	boom := errors.New("duplicate key")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnError(boom)
	mock.ExpectRollback()

	err = m.Commit(context.Background())
	require.Error(t, err)
	assert.False(t, rec.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReadOnly(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	rec, err := m.GetOrCreateRecord("v_totals", map[string]any{"total": "1.00"})
	require.NoError(t, err)
	m.ScheduleSave(rec)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = m.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fixtura.ErrReadOnly))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitEmpty(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	require.NoError(t, m.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPk(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	tbl, err := m.Table("users")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, email, active FROM users WHERE id = .+").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "active"}).
			AddRow(5, "a@b.c", true))

	rec, err := tbl.FindByPk(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, rec.Exists())
	assert.Equal(t, "5", rec.IdentifierString())
	v, err := rec.Get("email")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", v)

	// Second lookup hits the identity map, no query expected.
	again, err := tbl.FindByPk(context.Background(), 5)
	require.NoError(t, err)
	assert.Same(t, rec, again)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPkNotFound(t *testing.T) {
	t.Parallel()

	m, mock := newManager(t, dialect.MySQL)
	tbl, err := m.Table("users")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, email, active FROM users WHERE id = .+").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "active"}))

	_, err = tbl.FindByPk(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, fixtura.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

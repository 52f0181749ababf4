package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestStore_AppendList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{SessionID: "s1", Version: 1, View: "digital-reconstructions/neurons", Kind: "initial", Query: "", CreatedAt: at},
		{SessionID: "s1", Version: 2, View: "digital-reconstructions/neurons", Kind: "replace", Query: "layer=SLM", CreatedAt: at.Add(time.Second)},
		{SessionID: "s2", Version: 1, View: "experimental-data/layer-anatomy", Kind: "initial", Query: "layer=SR", CreatedAt: at.Add(2 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, s.Append(ctx, rec))
	}

	got, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Version)
	assert.Equal(t, "replace", got[1].Kind)
	assert.Equal(t, "layer=SLM", got[1].Query)
	assert.True(t, got[1].CreatedAt.Equal(at.Add(time.Second)))

	empty, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_AppendDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	rec := Record{SessionID: "s1", Version: 1, View: "v", Kind: "initial", CreatedAt: time.Now()}

	require.NoError(t, s.Append(ctx, rec))
	err := s.Append(ctx, rec)
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestStore_Recent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, Record{
			SessionID: "s1", Version: uint64(i), View: "v", Kind: "push",
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(5), got[0].Version)
	assert.Equal(t, uint64(3), got[2].Version)
}

func TestNew_CreateTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS navigation_history").
		WillReturnError(errors.New("permission denied"))

	_, err = New(context.Background(), db)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS navigation_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := New(context.Background(), db)
	require.NoError(t, err)
	return s, mock
}

func TestStore_AppendError(t *testing.T) {
	s, mock := setupMockStore(t)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO navigation_history")).
		WithArgs("s1", int64(3), "v", "push", "layer=SR", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := s.Append(context.Background(), Record{SessionID: "s1", Version: 3, View: "v", Kind: "push", Query: "layer=SR", CreatedAt: at})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEntry)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListScanError(t *testing.T) {
	s, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"session_id", "version", "view", "kind", "query", "created_at"}).
		AddRow("s1", "not-a-number", "v", "push", "", time.Now())
	mock.ExpectQuery("SELECT session_id, version").WithArgs("s1").WillReturnRows(rows)

	_, err := s.List(context.Background(), "s1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListQueryError(t *testing.T) {
	s, mock := setupMockStore(t)
	mock.ExpectQuery("SELECT session_id, version").WillReturnError(errors.New("timeout"))

	_, err := s.Recent(context.Background(), 0)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	require.NoError(t, r.Append(context.Background(), Record{}))
	got, err := r.List(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, r.Close())
}

package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db, WithClock(func() time.Time { return t0 })), mock
}

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("create table if not exists documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists document_keys").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists document_refs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
}

func TestCreateOne(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into documents").
		WithArgs("accounts", sqlmock.AnyArg(), sqlmock.AnyArg(), t0, t0, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_keys").
		WithArgs("accounts", "username=ada1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	acct := &model.Account{Username: "ada1", Status: model.AccountPending}
	id, err := s.CreateOne(context.Background(), acct)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, acct.ID)
	assert.Equal(t, int64(1), acct.Version)
}

func TestCreateOneWritesReferences(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_keys").
		WithArgs("contacts", "email=ada@x.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_refs").
		WithArgs("contacts", "name_id=ada lovelace", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := s.CreateOne(context.Background(), &model.Contact{NameID: "ada lovelace", Emails: []string{"ada@x.com"}})
	require.NoError(t, err)
}

func TestCreateOneDuplicateKey(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_keys").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "document_keys_pkey"})
	mock.ExpectRollback()

	acct := &model.Account{Username: "ada1"}
	_, err := s.CreateOne(context.Background(), acct)
	require.ErrorIs(t, err, store.ErrDuplicateKey)
	assert.Empty(t, acct.ID)
	assert.Zero(t, acct.Version)
}

func TestCreateOneStorageError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec("insert into documents").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := s.CreateOne(context.Background(), &model.Employee{ContactID: "c1"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrDuplicateKey)
}

func TestFindOne(t *testing.T) {
	s, mock := newMock(t)
	body, err := json.Marshal(&model.Account{Meta: model.Meta{ID: "acct-1"}, Username: "ada1"})
	require.NoError(t, err)

	mock.ExpectQuery("select d.body from document_keys").
		WithArgs("accounts", "username=ada1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	mock.ExpectQuery("select body from documents").
		WithArgs("accounts", "acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	doc, err := s.FindOne(context.Background(), model.Accounts, model.FieldUsername, "ada1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", doc.(*model.Account).ID)

	doc, err = s.FindOne(context.Background(), model.Accounts, model.FieldID, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "ada1", doc.(*model.Account).Username)
}

func TestFindOneByReference(t *testing.T) {
	s, mock := newMock(t)
	body, err := json.Marshal(&model.Contact{Meta: model.Meta{ID: "c1"}, NameID: "ada lovelace"})
	require.NoError(t, err)

	mock.ExpectQuery("select d.body from document_refs").
		WithArgs("contacts", "name_id=ada lovelace").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	mock.ExpectQuery("select d.body from document_refs").
		WithArgs("contacts", "name_id=grace hopper").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	doc, err := s.FindOne(context.Background(), model.Contacts, model.FieldNameID, "ada lovelace")
	require.NoError(t, err)
	assert.Equal(t, "c1", doc.Bookkeeping().ID)

	_, err = s.FindOne(context.Background(), model.Contacts, model.FieldNameID, "grace hopper")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindOneNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select d.body from document_keys").
		WithArgs("contacts", "email=ada@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	_, err := s.FindOne(context.Background(), model.Contacts, model.FieldEmail, "ada@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindOneStorageError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery("select d.body from document_keys").WillReturnError(boom)

	_, err := s.FindOne(context.Background(), model.Contacts, model.FieldPhone, "7012345678")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteByID(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from documents").
		WithArgs("accounts", "acct-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from documents").
		WithArgs("accounts", "acct-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteByID(context.Background(), model.Accounts, "acct-1"))
	assert.ErrorIs(t, s.DeleteByID(context.Background(), model.Accounts, "acct-1"), store.ErrNotFound)
}

func TestTransactionUsesSavepoints(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("savepoint create_one").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_keys").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("release savepoint create_one").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("savepoint create_one").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into document_keys").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec("rollback to savepoint create_one").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	sess, err := s.StartSession(ctx)
	require.NoError(t, err)
	tx, err := sess.StartTransaction(ctx)
	require.NoError(t, err)

	_, err = tx.CreateOne(ctx, &model.Account{Username: "ada1"})
	require.NoError(t, err)
	_, err = tx.CreateOne(ctx, &model.Account{Username: "ada1"})
	require.ErrorIs(t, err, store.ErrDuplicateKey)

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, sess.EndSession(ctx))
}

func TestTransactionAbort(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	sess, err := s.StartSession(ctx)
	require.NoError(t, err)
	tx, err := sess.StartTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteByID(ctx, model.Names, "ada"))
	require.NoError(t, tx.Abort(ctx))
}

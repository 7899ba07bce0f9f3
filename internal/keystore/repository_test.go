package keystore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vaultkey/kbsclient/internal/kbslog"
)

func newTestSQLiteRepository(t *testing.T) (*sqliteRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &sqliteRepository{db: db, log: kbslog.Nop()}, mock, db
}

func TestRepositoryGetKeyFound(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectQuery("SELECT value FROM key_backup_service_keys WHERE name = ?").
		WithArgs("masterKey").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte{0xAA}))

	value, found, err := repo.GetKey(context.Background(), "masterKey")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if len(value) != 1 || value[0] != 0xAA {
		t.Fatalf("unexpected value: %v", value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetKeyNotFound(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectQuery("SELECT value FROM key_backup_service_keys WHERE name = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, found, err := repo.GetKey(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestRepositoryPutKeyUpsert(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO key_backup_service_keys").
		WithArgs("masterKey", []byte{0xBB}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.PutKey(context.Background(), "masterKey", []byte{0xBB}); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryPutKeysCommitsSingleTransaction(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO key_backup_service_keys").
		WithArgs("masterKey", []byte{0xCC}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.PutKeys(context.Background(), map[string][]byte{"masterKey": {0xCC}})
	if err != nil {
		t.Fatalf("PutKeys: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryPutKeysRollsBackOnExecError(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO key_backup_service_keys").
		WithArgs("masterKey", []byte{0xCC}).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.PutKeys(context.Background(), map[string][]byte{"masterKey": {0xCC}})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteKeysExceptKeepsListed(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM key_backup_service_keys WHERE name NOT IN \(\?\)`).
		WithArgs("storageServiceKey").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteKeysExcept(context.Background(), "storageServiceKey"); err != nil {
		t.Fatalf("DeleteKeysExcept: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetTokenNotFound(t *testing.T) {
	repo, mock, db := newTestSQLiteRepository(t)
	defer db.Close()

	mock.ExpectQuery("SELECT backup_id, data, tries FROM key_backup_service_token WHERE id = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"backup_id", "data", "tries"}))

	_, _, _, found, err := repo.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

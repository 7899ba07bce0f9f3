// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vaultkey/kbsclient/internal/keystore/migrations"
	"github.com/vaultkey/kbsclient/internal/kbslog"
)

// questionSQL is the squirrel statement builder configured for SQLite's "?"
// placeholder style.
var questionSQL = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Repository is the durable storage contract behind KeyStore and
// TokenStore. A single implementation (sqliteRepository) backs both; tests
// may supply an in-memory fake.
type Repository interface {
	GetKey(ctx context.Context, name string) ([]byte, bool, error)
	PutKey(ctx context.Context, name string, value []byte) error
	PutKeys(ctx context.Context, kv map[string][]byte) error
	DeleteKeysExcept(ctx context.Context, keep ...string) error

	GetToken(ctx context.Context) (backupID, data []byte, tries uint32, found bool, err error)
	PutToken(ctx context.Context, backupID, data []byte, tries uint32) error
	DeleteToken(ctx context.Context) error
}

type sqliteRepository struct {
	db  *sql.DB
	log *kbslog.Logger
}

// OpenSQLite opens (creating if necessary) the SQLite database at dsn and
// applies the embedded key-backup-service schema via migrations.Migrate.
func OpenSQLite(ctx context.Context, dsn string, log *kbslog.Logger) (Repository, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("keystore: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("keystore: ping sqlite: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("keystore: migrate: %w", err)
	}

	return &sqliteRepository{db: db, log: log}, nil
}

func (r *sqliteRepository) GetKey(ctx context.Context, name string) ([]byte, bool, error) {
	query, args, err := questionSQL.
		Select("value").
		From("key_backup_service_keys").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("keystore: get key %q: %w", name, err)
	}
	return value, true, nil
}

func (r *sqliteRepository) PutKey(ctx context.Context, name string, value []byte) error {
	query, args, err := questionSQL.
		Insert("key_backup_service_keys").
		Columns("name", "value").
		Values(name, value).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("keystore: put key %q: %w", name, err)
	}
	return nil
}

// PutKeys writes every entry in kv inside a single transaction, so a group
// write either lands entirely or not at all.
func (r *sqliteRepository) PutKeys(ctx context.Context, kv map[string][]byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Err(err).Str("func", "sqliteRepository.PutKeys").Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	for name, value := range kv {
		query, args, err := questionSQL.
			Insert("key_backup_service_keys").
			Columns("name", "value").
			Values(name, value).
			Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value").
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.log.Err(err).Str("func", "sqliteRepository.PutKeys").Str("name", name).Msg("failed to execute put-key query")
			return fmt.Errorf("keystore: put key %q in transaction: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Err(err).Str("func", "sqliteRepository.PutKeys").Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}
	return nil
}

func (r *sqliteRepository) DeleteKeysExcept(ctx context.Context, keep ...string) error {
	builder := questionSQL.Delete("key_backup_service_keys")
	if len(keep) > 0 {
		builder = builder.Where(sq.NotEq{"name": keep})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("keystore: clear keys: %w", err)
	}
	return nil
}

func (r *sqliteRepository) GetToken(ctx context.Context) (backupID, data []byte, tries uint32, found bool, err error) {
	query, args, buildErr := questionSQL.
		Select("backup_id", "data", "tries").
		From("key_backup_service_token").
		Where(sq.Eq{"id": 1}).
		ToSql()
	if buildErr != nil {
		return nil, nil, 0, false, buildErr
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	if scanErr := row.Scan(&backupID, &data, &tries); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, nil, 0, false, nil
		}
		return nil, nil, 0, false, fmt.Errorf("keystore: get token: %w", scanErr)
	}
	return backupID, data, tries, true, nil
}

func (r *sqliteRepository) PutToken(ctx context.Context, backupID, data []byte, tries uint32) error {
	query, args, err := questionSQL.
		Insert("key_backup_service_token").
		Columns("id", "backup_id", "data", "tries").
		Values(1, backupID, data, tries).
		Suffix("ON CONFLICT(id) DO UPDATE SET backup_id = excluded.backup_id, data = excluded.data, tries = excluded.tries").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("keystore: put token: %w", err)
	}
	return nil
}

func (r *sqliteRepository) DeleteToken(ctx context.Context) error {
	query, args, err := questionSQL.
		Delete("key_backup_service_token").
		Where(sq.Eq{"id": 1}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("keystore: delete token: %w", err)
	}
	return nil
}

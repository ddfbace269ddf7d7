// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool the store uses. pgxmock
// implements it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps blobs in the blobs table. Run the migrations before
// use.
type PostgresStore struct {
	pool  poolIface
	close func()
}

// NewPostgresStore connects to dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").Wrap(err)
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

// newPostgresStoreWithPool wraps an existing pool; the caller keeps
// ownership of it.
func newPostgresStoreWithPool(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool, close: func() {}}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.close()
}

// Get returns the blob for key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, wrapPgError(err, "STORE_READ_FAILED").With("key", key).Wrap(err)
	}
	return data, nil
}

// Put upserts the blob for key in a single statement.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO blobs (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, data)
	if err != nil {
		return wrapPgError(err, "STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Delete removes the blob for key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM blobs WHERE key = $1`, key); err != nil {
		return wrapPgError(err, "STORE_DELETE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// List returns the keys directly under dir.
func (s *PostgresStore) List(ctx context.Context, dir string) ([]string, error) {
	if err := ValidateKey(dir); err != nil {
		return nil, err
	}
	prefix := dir + "/"
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM blobs WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, wrapPgError(err, "STORE_LIST_FAILED").With("dir", dir).Wrap(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, oops.Code("STORE_LIST_FAILED").With("dir", dir).Wrap(err)
		}
		if strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").With("dir", dir).Wrap(err)
	}
	return keys, nil
}

// wrapPgError picks the error code for a database failure. A missing
// table means the migrations have not been applied.
func wrapPgError(err error, code string) oops.OopsErrorBuilder {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code("STORE_NOT_MIGRATED").Hint("run `trainerbot migrate up`")
	}
	return oops.Code(code)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

/* Copyright 2025 URL Notes Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package database provides the persistent, transactional record store for
// notes, version snapshots, and deletion records, plus the key/value system
// state the sync engine depends on.
package database

import (
	"database/sql"
	_ "embed"

	// the sqlite3 driver backs the local store
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps either a database connection or an open transaction so that data
// access helpers can run against both.
type DB struct {
	conn *sql.DB
	tx   *sql.Tx
}

// Open opens a database connection at the given path
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	return &DB{conn: conn}, nil
}

// InitSchema creates the tables if they do not exist. It is idempotent and
// run at every startup.
func (d *DB) InitSchema() error {
	if _, err := d.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "running schema sql")
	}

	return nil
}

// Begin starts a transaction. The returned DB runs all statements against it.
func (d *DB) Begin() (*DB, error) {
	if d.tx != nil {
		return nil, errors.New("already in a transaction")
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &DB{conn: d.conn, tx: tx}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.tx == nil {
		return errors.New("not in a transaction")
	}

	return d.tx.Commit()
}

// Rollback aborts the transaction
func (d *DB) Rollback() error {
	if d.tx == nil {
		return errors.New("not in a transaction")
	}

	return d.tx.Rollback()
}

// Exec executes a statement against the transaction if one is open, or the
// connection otherwise
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if d.tx != nil {
		return d.tx.Exec(query, args...)
	}

	return d.conn.Exec(query, args...)
}

// Query runs a query
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if d.tx != nil {
		return d.tx.Query(query, args...)
	}

	return d.conn.Query(query, args...)
}

// QueryRow runs a query expected to return at most one row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	if d.tx != nil {
		return d.tx.QueryRow(query, args...)
	}

	return d.conn.QueryRow(query, args...)
}

// Close closes the underlying connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// InTransaction runs fn inside a transaction, committing on success and
// rolling back on error.
func (d *DB) InTransaction(fn func(tx *DB) error) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

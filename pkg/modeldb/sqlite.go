// Package modeldb is a model.Adapter backed by SQLite. It serves the
// standalone command line and integration tests; a deployment embedded in
// an orchestration system supplies its own adapter instead.
package modeldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

// SchemaVersion is stored in PRAGMA user_version
const SchemaVersion = 1

const schema = `
CREATE TABLE networks (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE subnets (
	id         TEXT PRIMARY KEY,
	network_id TEXT NOT NULL REFERENCES networks(id),
	name       TEXT NOT NULL DEFAULT '',
	cidr       TEXT NOT NULL,
	ip_version INTEGER NOT NULL,
	gateway_ip TEXT NOT NULL DEFAULT ''
);
CREATE TABLE ports (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	network_id      TEXT NOT NULL REFERENCES networks(id),
	mac_address     TEXT NOT NULL UNIQUE,
	admin_state_up  INTEGER NOT NULL,
	binding_profile TEXT NOT NULL DEFAULT '',
	device_id       TEXT NOT NULL DEFAULT '',
	device_owner    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE fixed_ips (
	port_id    TEXT NOT NULL REFERENCES ports(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	subnet_id  TEXT NOT NULL REFERENCES subnets(id),
	ip_address TEXT NOT NULL,
	PRIMARY KEY (subnet_id, ip_address)
);
CREATE TABLE allowed_address_pairs (
	port_id     TEXT NOT NULL REFERENCES ports(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	ip_address  TEXT NOT NULL,
	mac_address TEXT NOT NULL DEFAULT ''
);
CREATE TABLE security_groups (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE security_group_rules (
	id                TEXT PRIMARY KEY,
	security_group_id TEXT NOT NULL REFERENCES security_groups(id) ON DELETE CASCADE,
	direction         TEXT NOT NULL,
	ethertype         TEXT NOT NULL,
	protocol          TEXT NOT NULL DEFAULT '',
	port_range_min    INTEGER,
	port_range_max    INTEGER,
	remote_ip_prefix  TEXT NOT NULL DEFAULT '',
	remote_group_id   TEXT REFERENCES security_groups(id) ON DELETE CASCADE
);
CREATE TABLE port_security_groups (
	port_id           TEXT NOT NULL REFERENCES ports(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	security_group_id TEXT NOT NULL REFERENCES security_groups(id),
	PRIMARY KEY (port_id, security_group_id)
);
CREATE TABLE routers (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);
CREATE INDEX ports_device ON ports(device_id, device_owner);
CREATE INDEX port_security_groups_group ON port_security_groups(security_group_id);
CREATE INDEX security_group_rules_remote ON security_group_rules(remote_group_id);
`

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite model store
type Store struct {
	db *sql.DB
}

var _ model.Adapter = (*Store)(nil)

// Open opens the database at path, creating and migrating it as needed.
// The store keeps a single connection, so every statement is serialized.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("in-memory databases are not supported, use a file path")
	}
	noFile, hasPrefix := strings.CutPrefix(path, "file:")

	params := make(url.Values)
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(1000)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")

	dsn := "file:" + noFile + "?" + params.Encode()
	if hasPrefix {
		dsn = path + "?" + params.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening model database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.setup(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) setup(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	switch version {
	case SchemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("unsupported model database version %d, want %d", version, SchemaVersion)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
		return nil
	})
}

// withTx runs fn in a transaction, committing when it returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// exists reports whether a row with id is in table
func exists(ctx context.Context, q queryer, table, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s %s: %w", table, id, err)
	}
	return true, nil
}

// count runs a SELECT COUNT(*) query
func count(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// deleteByID deletes one row, returning a NotFoundError when none matched
func deleteByID(ctx context.Context, q queryer, table, kind, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NewNotFoundError(kind, id)
	}
	return nil
}

// updateName sets the name column of one row
func updateName(ctx context.Context, q queryer, table, kind, id string, name *string) error {
	ok, err := exists(ctx, q, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewNotFoundError(kind, id)
	}
	if name == nil {
		return nil
	}
	if _, err := q.ExecContext(ctx, "UPDATE "+table+" SET name = ? WHERE id = ?", *name, id); err != nil {
		return fmt.Errorf("updating %s %s: %w", kind, id, err)
	}
	return nil
}

package registrystore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	pgstore "github.com/r3e-network/sfnc/pkg/storage/postgres"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const tableName = "construct_registry"

// PostgresStore is a Store backed by a single Postgres table, reusing
// the teacher's BaseStore helpers for the transaction/querier plumbing
// shared by every other Postgres-backed store in this repo.
type PostgresStore struct {
	*pgstore.BaseStore
}

// NewPostgresStore wraps db. Call Migrate once before first use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{BaseStore: pgstore.NewBaseStore(db, tableName)}
}

// Migrate brings the construct_registry schema up to date using the
// embedded SQL files, via golang-migrate's iofs source driver.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return cerr.DatabaseError("open migration source", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return cerr.DatabaseError("open migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return cerr.DatabaseError("init migrator", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return cerr.DatabaseError("apply migrations", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return cerr.Internal("marshal params", err)
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return cerr.Internal("marshal outputs", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, construct_id, params, outputs, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET construct_id = EXCLUDED.construct_id,
		    params = EXCLUDED.params,
		    outputs = EXCLUDED.outputs,
		    updated_at = now()`, tableName)
	if _, err := s.ExecContext(ctx, query, rec.Name, rec.ConstructID, params, outputs); err != nil {
		return cerr.DatabaseError("put construct record", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (Record, error) {
	query := fmt.Sprintf(`
		SELECT name, construct_id, params, outputs, updated_at
		FROM %s WHERE name = $1`, tableName)

	var rec Record
	var params, outputs []byte
	err := s.QueryRowContext(ctx, query, name).Scan(&rec.Name, &rec.ConstructID, &params, &outputs, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, cerr.NotFound("state machine", name)
	}
	if err != nil {
		return Record{}, cerr.DatabaseError("get construct record", err)
	}
	if err := json.Unmarshal(params, &rec.Params); err != nil {
		return Record{}, cerr.Internal("unmarshal params", err)
	}
	if err := json.Unmarshal(outputs, &rec.Outputs); err != nil {
		return Record{}, cerr.Internal("unmarshal outputs", err)
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, tableName)
	if _, err := s.ExecContext(ctx, query, name); err != nil {
		return cerr.DatabaseError("delete construct record", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT name, construct_id, params, outputs, updated_at FROM %s ORDER BY name`, tableName)
	rows, err := s.QueryContext(ctx, query)
	if err != nil {
		return nil, cerr.DatabaseError("list construct records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var params, outputs []byte
		if err := rows.Scan(&rec.Name, &rec.ConstructID, &params, &outputs, &rec.UpdatedAt); err != nil {
			return nil, cerr.DatabaseError("scan construct record", err)
		}
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, cerr.Internal("unmarshal params", err)
		}
		if err := json.Unmarshal(outputs, &rec.Outputs); err != nil {
			return nil, cerr.Internal("unmarshal outputs", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.DatabaseError("iterate construct records", err)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)

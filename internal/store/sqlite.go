package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS validations (
	id           TEXT PRIMARY KEY,
	tenant       TEXT NOT NULL,
	item_name    TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	item_type    TEXT NOT NULL DEFAULT '',
	fields       TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 1,
	validated_by TEXT NOT NULL DEFAULT '',
	validated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_tenant ON validations(tenant);

CREATE TABLE IF NOT EXISTS consensus_records (
	id         TEXT PRIMARY KEY,
	tenant     TEXT NOT NULL,
	record     TEXT NOT NULL,
	incomplete INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consensus_tenant_created ON consensus_records(tenant, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertValidation = `INSERT INTO validations (id, tenant, item_name, description, item_type, fields, confidence, validated_by, validated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET item_name = excluded.item_name, description = excluded.description,
		item_type = excluded.item_type, fields = excluded.fields, confidence = excluded.confidence,
		validated_by = excluded.validated_by, validated_at = excluded.validated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveValidation(ctx context.Context, ex execer, v *model.Validation) error {
	fieldsJSON, err := json.Marshal(v.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	_, err = ex.ExecContext(ctx, sqliteUpsertValidation,
		v.ID, v.Tenant, v.ItemName, v.Description, string(v.ItemType), string(fieldsJSON),
		v.Confidence, v.ValidatedBy, v.ValidatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save validation %s", v.ID)
}

func (s *SQLiteStore) SaveValidation(ctx context.Context, v *model.Validation) error {
	if err := prepareValidation(v); err != nil {
		return err
	}
	return saveValidation(ctx, s.db, v)
}

// ImportValidations inserts validations in one transaction. Invalid entries
// are skipped.
func (s *SQLiteStore) ImportValidations(ctx context.Context, vs []model.Validation) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for i := range vs {
		v := &vs[i]
		if prepareValidation(v) != nil {
			continue
		}
		if err := saveValidation(ctx, tx, v); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) ListValidations(ctx context.Context, tenant string) ([]model.Validation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant, item_name, description, item_type, fields, confidence, validated_by, validated_at
		FROM validations WHERE tenant = ? ORDER BY validated_at, id`,
		tenant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list validations %s", tenant)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Validation
	for rows.Next() {
		var v model.Validation
		var itemType, fieldsJSON string
		if err := rows.Scan(&v.ID, &v.Tenant, &v.ItemName, &v.Description, &itemType, &fieldsJSON,
			&v.Confidence, &v.ValidatedBy, &v.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		v.ItemType = model.ItemType(itemType)
		if err := json.Unmarshal([]byte(fieldsJSON), &v.Fields); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fields")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate validations")
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant FROM validations ORDER BY tenant`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenants")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tenant")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tenants")
}

func (s *SQLiteStore) SaveConsensus(ctx context.Context, rec *model.ConsensusRecord) error {
	prepareConsensus(rec)
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal consensus")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consensus_records (id, tenant, record, incomplete, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET record = excluded.record, incomplete = excluded.incomplete`,
		rec.ID, rec.Tenant, string(recJSON), rec.Incomplete, rec.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save consensus %s", rec.ID)
}

func (s *SQLiteStore) GetConsensus(ctx context.Context, id string) (*model.ConsensusRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM consensus_records WHERE id = ?`, id).Scan(&recJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get consensus %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get consensus %s", id)
	}
	var rec model.ConsensusRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal consensus")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListConsensus(ctx context.Context, filter ConsensusFilter) ([]model.ConsensusRecord, error) {
	query := `SELECT record FROM consensus_records WHERE 1=1`
	var args []any
	if filter.Tenant != "" {
		query += ` AND tenant = ?`
		args = append(args, filter.Tenant)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list consensus")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ConsensusRecord
	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consensus")
		}
		var rec model.ConsensusRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal consensus")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate consensus")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

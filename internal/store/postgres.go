package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/db"
	"github.com/sells-group/catalog-enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS validations (
	id           TEXT PRIMARY KEY,
	tenant       TEXT NOT NULL,
	item_name    TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	item_type    TEXT NOT NULL DEFAULT '',
	fields       JSONB NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 1,
	validated_by TEXT NOT NULL DEFAULT '',
	validated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_validations_tenant ON validations(tenant);

CREATE TABLE IF NOT EXISTS consensus_records (
	id         TEXT PRIMARY KEY,
	tenant     TEXT NOT NULL,
	record     JSONB NOT NULL,
	incomplete BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_consensus_tenant_created ON consensus_records(tenant, created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveValidation(ctx context.Context, v *model.Validation) error {
	if err := prepareValidation(v); err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(v.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO validations (id, tenant, item_name, description, item_type, fields, confidence, validated_by, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET item_name = EXCLUDED.item_name, description = EXCLUDED.description,
			item_type = EXCLUDED.item_type, fields = EXCLUDED.fields, confidence = EXCLUDED.confidence,
			validated_by = EXCLUDED.validated_by, validated_at = EXCLUDED.validated_at`,
		v.ID, v.Tenant, v.ItemName, v.Description, string(v.ItemType), fieldsJSON, v.Confidence, v.ValidatedBy, v.ValidatedAt,
	)
	return eris.Wrapf(err, "postgres: save validation %s", v.ID)
}

var validationColumns = []string{
	"id", "tenant", "item_name", "description", "item_type", "fields", "confidence", "validated_by", "validated_at",
}

// ImportValidations bulk-loads validations with COPY through a staging
// table, replacing entries with an existing ID. Invalid entries are skipped.
func (s *PostgresStore) ImportValidations(ctx context.Context, vs []model.Validation) (int64, error) {
	rows := make([][]any, 0, len(vs))
	for i := range vs {
		v := &vs[i]
		if prepareValidation(v) != nil {
			continue
		}
		fieldsJSON, err := json.Marshal(v.Fields)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal fields")
		}
		rows = append(rows, []any{
			v.ID, v.Tenant, v.ItemName, v.Description, string(v.ItemType), fieldsJSON, v.Confidence, v.ValidatedBy, v.ValidatedAt,
		})
	}
	n, err := db.UpsertCopy(ctx, s.pool, "validations", "id", validationColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import validations")
	}
	return n, nil
}

func (s *PostgresStore) ListValidations(ctx context.Context, tenant string) ([]model.Validation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant, item_name, description, item_type, fields, confidence, validated_by, validated_at
		FROM validations WHERE tenant = $1 ORDER BY validated_at, id`,
		tenant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list validations %s", tenant)
	}
	defer rows.Close()

	var out []model.Validation
	for rows.Next() {
		var v model.Validation
		var itemType string
		var fieldsJSON []byte
		if err := rows.Scan(&v.ID, &v.Tenant, &v.ItemName, &v.Description, &itemType, &fieldsJSON,
			&v.Confidence, &v.ValidatedBy, &v.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		v.ItemType = model.ItemType(itemType)
		if err := json.Unmarshal(fieldsJSON, &v.Fields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fields")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate validations")
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant FROM validations ORDER BY tenant`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenants")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tenant")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tenants")
}

func (s *PostgresStore) SaveConsensus(ctx context.Context, rec *model.ConsensusRecord) error {
	prepareConsensus(rec)
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal consensus")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO consensus_records (id, tenant, record, incomplete, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, incomplete = EXCLUDED.incomplete`,
		rec.ID, rec.Tenant, recJSON, rec.Incomplete, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save consensus %s", rec.ID)
}

func (s *PostgresStore) GetConsensus(ctx context.Context, id string) (*model.ConsensusRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM consensus_records WHERE id = $1`, id).Scan(&recJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get consensus %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get consensus %s", id)
	}
	var rec model.ConsensusRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal consensus")
	}
	return &rec, nil
}

func (s *PostgresStore) ListConsensus(ctx context.Context, filter ConsensusFilter) ([]model.ConsensusRecord, error) {
	query := `SELECT record FROM consensus_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tenant != "" {
		query += fmt.Sprintf(` AND tenant = $%d`, argIdx)
		args = append(args, filter.Tenant)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list consensus")
	}
	defer rows.Close()

	var out []model.ConsensusRecord
	for rows.Next() {
		var recJSON []byte
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consensus")
		}
		var rec model.ConsensusRecord
		if err := json.Unmarshal(recJSON, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal consensus")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate consensus")
}

func prepareValidation(v *model.Validation) error {
	if !v.Normalize() {
		return eris.New("store: validation requires tenant, item name and fields")
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

func prepareConsensus(rec *model.ConsensusRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

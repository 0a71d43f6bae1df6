package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCopy_EmptyRows(t *testing.T) {
	n, err := UpsertCopy(context.TODO(), nil, "validations", "id", []string{"id", "tenant"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpsertCopy_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_validations" \(LIKE "validations"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_validations"}, []string{"id", "tenant"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "validations" .* ON CONFLICT \("id"\) DO UPDATE SET "tenant" = EXCLUDED."tenant"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"v1", "acme"}, {"v2", "acme"}}
	n, err := UpsertCopy(context.Background(), mock, "validations", "id", []string{"id", "tenant"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCopy_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_validations"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = UpsertCopy(context.Background(), mock, "validations", "id", []string{"id"}, [][]any{{"v1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO stage_validations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "validations" ("id", "tenant", "fields") SELECT DISTINCT ON ("id") "id", "tenant", "fields" FROM "stage_validations" ORDER BY "id" ON CONFLICT ("id") DO UPDATE SET "tenant" = EXCLUDED."tenant", "fields" = EXCLUDED."fields"`,
		mergeSQL("validations", "stage_validations", "id", []string{"id", "tenant", "fields"}))

	assert.Contains(t, mergeSQL("tenants", "stage_tenants", "id", []string{"id"}), "ON CONFLICT (\"id\") DO NOTHING")
}

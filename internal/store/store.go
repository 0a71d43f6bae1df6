package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ConsensusFilter specifies criteria for listing consensus records.
type ConsensusFilter struct {
	Tenant       string    `json:"tenant,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Store persists validated-history metadata and the consensus audit trail.
type Store interface {
	// Validations
	SaveValidation(ctx context.Context, v *model.Validation) error
	ImportValidations(ctx context.Context, vs []model.Validation) (int64, error)
	ListValidations(ctx context.Context, tenant string) ([]model.Validation, error)
	ListTenants(ctx context.Context) ([]string, error)

	// Consensus audit
	SaveConsensus(ctx context.Context, rec *model.ConsensusRecord) error
	GetConsensus(ctx context.Context, id string) (*model.ConsensusRecord, error)
	ListConsensus(ctx context.Context, filter ConsensusFilter) ([]model.ConsensusRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

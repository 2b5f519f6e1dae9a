package tasks

import (
	"context"

	"github.com/Priya8975/task-event-pipeline/internal/store"
)

// PostgresRepository adapts the Postgres store to Repository.
type PostgresRepository struct {
	*store.PostgresStore
}

func NewPostgresRepository(s *store.PostgresStore) *PostgresRepository {
	return &PostgresRepository{PostgresStore: s}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	return r.PostgresStore.InTx(ctx, func(q *store.Queries) error {
		return fn(q)
	})
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must accept nil for the
// non-transactional path.
type Tx interface{}

// TransactionManager runs a function inside a database transaction, passing
// the handle through so repository calls within fn share it. Keeps use-case
// signatures free of driver types.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

package domain

import "context"

// Transactor runs function in one transaction carried by ctx. Repositories
// called with that ctx join the transaction.
type Transactor interface {
	WithTx(ctx context.Context, function func(ctx context.Context) error) error
}

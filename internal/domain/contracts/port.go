package contracts

import "context"

// Repository port (interface for persistence)
type Repository interface {
	Save(ctx context.Context, c *Contract) error
	Get(ctx context.Context, id ContractID) (*Contract, error)
	FindByHash(ctx context.Context, codeHash string) (*Contract, error)
	List(ctx context.Context, network string, page, pageSize int) ([]*Contract, int64, error)
	// Delete removes the contract and cascades to its runs and findings.
	Delete(ctx context.Context, id ContractID) error
}

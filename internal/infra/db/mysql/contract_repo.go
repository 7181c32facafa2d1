package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

type ContractRepository struct {
	db *sql.DB
}

func NewContractRepository(db *sql.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `id, name, code, code_hash, network, address, verified, compiler_version, created_at`

// Save insert/update Contract record
func (r *ContractRepository) Save(ctx context.Context, c *domain.Contract) error {
	const q = `
INSERT INTO contracts
(id, name, code, code_hash, network, address, verified, compiler_version, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 name=VALUES(name), network=VALUES(network), address=VALUES(address),
 verified=VALUES(verified), compiler_version=VALUES(compiler_version);
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.Name, c.Code, c.CodeHash, c.Network,
		nullString(c.Address), c.Verified, nullString(c.CompilerVersion), c.CreatedAt,
	)
	return err
}

// Get by ID; nil when absent
func (r *ContractRepository) Get(ctx context.Context, id domain.ContractID) (*domain.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE id=? LIMIT 1;`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// FindByHash looks up the content-addressed dedup key; nil when absent
func (r *ContractRepository) FindByHash(ctx context.Context, codeHash string) (*domain.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE code_hash=? LIMIT 1;`
	return r.scanOne(r.db.QueryRowContext(ctx, q, codeHash))
}

// List newest first with offset pagination and optional network filter
func (r *ContractRepository) List(ctx context.Context, network string, page, pageSize int) ([]*domain.Contract, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := `SELECT ` + contractColumns + ` FROM contracts`
	countQuery := `SELECT COUNT(*) FROM contracts`
	var args, countArgs []any
	if network != "" {
		query += ` WHERE network=?`
		countQuery += ` WHERE network=?`
		args = append(args, network)
		countArgs = append(countArgs, network)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying contracts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting contracts: %w", err)
	}
	return out, total, nil
}

// Delete removes the contract with its runs and findings in one
// transaction; ownership is strict so nothing is shared.
func (r *ContractRepository) Delete(ctx context.Context, id domain.ContractID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vulnerabilities WHERE analysis_id IN (SELECT id FROM analyses WHERE contract_id=?);`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE contract_id=?;`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=?;`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ContractRepository) scanOne(row *sql.Row) (*domain.Contract, error) {
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanContract(row rowScanner) (*domain.Contract, error) {
	var c domain.Contract
	var address, compiler sql.NullString
	if err := row.Scan(
		&c.ID, &c.Name, &c.Code, &c.CodeHash, &c.Network,
		&address, &c.Verified, &compiler, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.Address = address.String
	c.CompilerVersion = compiler.String
	return &c, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

type ContractRepository struct{ db *sql.DB }

func NewContractRepository(db *sql.DB) *ContractRepository { return &ContractRepository{db: db} }

// Connect opens a postgres pool and verifies it with a ping
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

const contractColumns = `id, name, code, code_hash, network, address, verified, compiler_version, created_at`

// Save insert/update Contract record
func (r *ContractRepository) Save(ctx context.Context, c *domain.Contract) error {
	const q = `
INSERT INTO contracts
(id, name, code, code_hash, network, address, verified, compiler_version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name,
 network = EXCLUDED.network,
 address = EXCLUDED.address,
 verified = EXCLUDED.verified,
 compiler_version = EXCLUDED.compiler_version;`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.Name, c.Code, c.CodeHash, c.Network,
		nullString(c.Address), c.Verified, nullString(c.CompilerVersion), c.CreatedAt,
	)
	return err
}

// Get by ID; nil when absent
func (r *ContractRepository) Get(ctx context.Context, id domain.ContractID) (*domain.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE id=$1 LIMIT 1;`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// FindByHash content-addressed lookup; nil when absent
func (r *ContractRepository) FindByHash(ctx context.Context, codeHash string) (*domain.Contract, error) {
	const q = `SELECT ` + contractColumns + ` FROM contracts WHERE code_hash=$1 LIMIT 1;`
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

	var (
		rows *sql.Rows
		err  error
	)
	if network != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+contractColumns+` FROM contracts WHERE network=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			network, pageSize, offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+contractColumns+` FROM contracts ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			pageSize, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("querying contracts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if network != "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE network=$1`, network).Scan(&total)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts`).Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("counting contracts: %w", err)
	}
	return out, total, nil
}

// Delete cascades to runs and findings in one transaction
func (r *ContractRepository) Delete(ctx context.Context, id domain.ContractID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vulnerabilities WHERE analysis_id IN (SELECT id FROM analyses WHERE contract_id=$1);`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE contract_id=$1;`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=$1;`, id); err != nil {
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

// nullString maps "" to NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

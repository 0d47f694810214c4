package db

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore persists the registry index in Postgres. Schema lives in
// db/schema.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertAccount(ctx context.Context, rec AccountRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (address, admin, salt, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING`,
		rec.Address.Bytes(), rec.Admin.Bytes(), rec.Salt.Bytes(), rec.CreatedAt)
	return errors.Wrap(err, "insert account")
}

func (s *PostgresStore) GetAccount(ctx context.Context, address common.Address) (AccountRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, admin, salt, created_at
		FROM accounts WHERE address = $1`,
		address.Bytes())

	rec, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountRecord{}, ErrNotFound
		}
		return AccountRecord{}, errors.Wrap(err, "get account")
	}
	return rec, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, admin, salt, created_at
		FROM accounts ORDER BY created_at, address`)
	if err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (s *PostgresStore) UpsertAccountSigner(ctx context.Context, account, signer common.Address) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_signers (account, signer)
		VALUES ($1, $2)
		ON CONFLICT (account, signer) DO NOTHING`,
		account.Bytes(), signer.Bytes())
	return errors.Wrap(err, "upsert account signer")
}

func (s *PostgresStore) DeleteAccountSigner(ctx context.Context, account, signer common.Address) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM account_signers WHERE account = $1 AND signer = $2`,
		account.Bytes(), signer.Bytes())
	return errors.Wrap(err, "delete account signer")
}

func (s *PostgresStore) ListAccountsBySigner(ctx context.Context, signer common.Address) ([]AccountRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.address, a.admin, a.salt, a.created_at
		FROM accounts a
		JOIN account_signers s ON s.account = a.address
		WHERE s.signer = $1
		ORDER BY a.created_at, a.address`,
		signer.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "list accounts by signer")
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func scanAccount(row pgx.Row) (AccountRecord, error) {
	var rec AccountRecord
	var address, admin, salt []byte
	if err := row.Scan(&address, &admin, &salt, &rec.CreatedAt); err != nil {
		return AccountRecord{}, err
	}
	rec.Address = common.BytesToAddress(address)
	rec.Admin = common.BytesToAddress(admin)
	rec.Salt = common.BytesToHash(salt)
	return rec, nil
}

func collectAccounts(rows pgx.Rows) ([]AccountRecord, error) {
	out := make([]AccountRecord, 0)
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan account")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate accounts")
}

// Package db persists the factory registry index: the accounts deployed
// by this service and the signer-to-account index mirrored from registry
// callbacks. The engine itself is authoritative; this index serves
// queries and restarts.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("db: record not found")

// AccountRecord is one deployed account.
type AccountRecord struct {
	Address   common.Address `json:"address"`
	Admin     common.Address `json:"admin"`
	Salt      common.Hash    `json:"salt"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is the persistence boundary the account service depends on.
type Store interface {
	InsertAccount(ctx context.Context, rec AccountRecord) error
	GetAccount(ctx context.Context, address common.Address) (AccountRecord, error)
	ListAccounts(ctx context.Context) ([]AccountRecord, error)
	UpsertAccountSigner(ctx context.Context, account, signer common.Address) error
	DeleteAccountSigner(ctx context.Context, account, signer common.Address) error
	ListAccountsBySigner(ctx context.Context, signer common.Address) ([]AccountRecord, error)
}

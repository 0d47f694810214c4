package db

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is the in-process Store used by tests and by deployments
// without a configured database.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[common.Address]AccountRecord
	signers  map[common.Address]map[common.Address]bool // signer -> accounts
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[common.Address]AccountRecord),
		signers:  make(map[common.Address]map[common.Address]bool),
	}
}

func (s *MemoryStore) InsertAccount(ctx context.Context, rec AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[rec.Address] = rec
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, address common.Address) (AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[address]
	if !ok {
		return AccountRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountRecord, 0, len(s.accounts))
	for _, rec := range s.accounts {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) UpsertAccountSigner(ctx context.Context, account, signer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.signers[signer]
	if !ok {
		set = make(map[common.Address]bool)
		s.signers[signer] = set
	}
	set[account] = true
	return nil
}

func (s *MemoryStore) DeleteAccountSigner(ctx context.Context, account, signer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.signers[signer]; ok {
		delete(set, account)
	}
	return nil
}

func (s *MemoryStore) ListAccountsBySigner(ctx context.Context, signer common.Address) ([]AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountRecord, 0)
	for account := range s.signers[signer] {
		if rec, ok := s.accounts[account]; ok {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []AccountRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Address.Hex() < recs[j].Address.Hex()
	})
}

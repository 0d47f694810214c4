package services

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keyfold/keyfold/db"
	"github.com/keyfold/keyfold/factory"
	"github.com/keyfold/keyfold/gateway"
	"github.com/keyfold/keyfold/logger"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/types/business"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrAccountNotFound is returned when an operation names an account the
// factory never deployed.
var ErrAccountNotFound = errors.New("account not found")

// AccountService handles business logic for account operations. It owns the
// factory and mirrors registry changes into the store, so the database
// index stays consistent with the in-memory account set without the
// handlers having to coordinate the two.
type AccountService struct {
	factory *factory.Factory
	store   db.Store
	invoker gateway.TargetInvoker
	logger  *zap.Logger
}

// NewAccountService builds the factory with the service installed as its
// notifier. cfg.Notifier and cfg.Logger are overwritten.
func NewAccountService(cfg factory.Config, store db.Store, invoker gateway.TargetInvoker) *AccountService {
	s := &AccountService{
		store:   store,
		invoker: invoker,
		logger:  logger.Log,
	}
	cfg.Notifier = s
	cfg.Logger = s.logger
	s.factory = factory.New(cfg)
	return s
}

// CreateAccount deploys (or returns the existing) account for the
// admin/initData pair.
func (s *AccountService) CreateAccount(ctx context.Context, admin common.Address, initData []byte) (*gateway.Account, error) {
	account, err := s.factory.CreateAccount(admin, initData)
	if err != nil {
		s.logger.Error("Failed to create account",
			zap.String("admin", admin.Hex()),
			zap.Error(err))
		return nil, errors.Wrap(err, "create account")
	}
	return account, nil
}

// PredictAddress returns the address CreateAccount would deploy at.
func (s *AccountService) PredictAddress(admin common.Address, initData []byte) common.Address {
	return s.factory.PredictAddress(admin, initData)
}

// GetAccount returns the live account for addr.
func (s *AccountService) GetAccount(addr common.Address) (*gateway.Account, error) {
	account, ok := s.factory.GetAccount(addr)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountRecord returns the persisted record for addr.
func (s *AccountService) GetAccountRecord(ctx context.Context, addr common.Address) (db.AccountRecord, error) {
	rec, err := s.store.GetAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.AccountRecord{}, ErrAccountNotFound
		}
		return db.AccountRecord{}, errors.Wrap(err, "get account record")
	}
	return rec, nil
}

// ListAccounts returns every deployed account.
func (s *AccountService) ListAccounts(ctx context.Context) ([]db.AccountRecord, error) {
	recs, err := s.store.ListAccounts(ctx)
	return recs, errors.Wrap(err, "list accounts")
}

// AccountsBySigner returns the accounts on which signer currently holds a
// permission or admin role.
func (s *AccountService) AccountsBySigner(ctx context.Context, signer common.Address) ([]db.AccountRecord, error) {
	recs, err := s.store.ListAccountsBySigner(ctx, signer)
	return recs, errors.Wrap(err, "list accounts by signer")
}

// SubmitPermissionGrant applies an admin-signed permission request to the
// account's registry.
func (s *AccountService) SubmitPermissionGrant(account common.Address, req business.PermissionRequest, signature []byte) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	if err := acct.RequestPermissionGrant(req, signature); err != nil {
		return err
	}
	s.logger.Info("Permission grant applied",
		zap.String("account", account.Hex()),
		zap.String("signer", req.Signer.Hex()),
		zap.String("uid", req.UID.Hex()))
	return nil
}

// PermissionRequestDigest returns the digest an admin must sign for req.
func (s *AccountService) PermissionRequestDigest(account common.Address, req business.PermissionRequest) (common.Hash, error) {
	acct, err := s.GetAccount(account)
	if err != nil {
		return common.Hash{}, err
	}
	return acct.PermissionRequestDigest(req), nil
}

// SetAdmin toggles target's admin role on the account.
func (s *AccountService) SetAdmin(account, caller, target common.Address, enabled bool) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.SetAdmin(caller, target, enabled)
}

// Validate runs signature and scope validation for op against its account.
func (s *AccountService) Validate(op *business.Operation, missingFunds *big.Int) (business.ValidationResult, error) {
	acct, err := s.GetAccount(op.Account)
	if err != nil {
		return business.ValidationFailed, err
	}
	return acct.Validate(op, missingFunds)
}

// OperationDigest returns the digest a signer must sign for op.
func (s *AccountService) OperationDigest(op *business.Operation) (common.Hash, error) {
	acct, err := s.GetAccount(op.Account)
	if err != nil {
		return common.Hash{}, err
	}
	return acct.OperationDigest(op), nil
}

// Execute forwards a validated operation's calls through the account.
func (s *AccountService) Execute(ctx context.Context, account, caller common.Address, selector business.Selector, calls []business.Call) ([]byte, error) {
	acct, err := s.GetAccount(account)
	if err != nil {
		return nil, err
	}
	return acct.Execute(ctx, caller, selector, calls)
}

// Nonce returns the next expected sequence for the account and key.
func (s *AccountService) Nonce(account common.Address, key *big.Int) (uint64, error) {
	acct, err := s.GetAccount(account)
	if err != nil {
		return 0, err
	}
	return acct.Nonce(key), nil
}

// AddExtension installs ext on the account, dispatching its selectors to
// the extension's implementation address.
func (s *AccountService) AddExtension(account, caller common.Address, ext business.Extension) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.AddExtension(caller, ext, s.remoteHandler(ext))
}

// ReplaceExtension swaps the extension named ext.Metadata.Name wholesale.
func (s *AccountService) ReplaceExtension(account, caller common.Address, ext business.Extension) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.ReplaceExtension(caller, ext, s.remoteHandler(ext))
}

// RemoveExtension uninstalls the named extension and all its selectors.
func (s *AccountService) RemoveExtension(account, caller common.Address, name string) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.RemoveExtension(caller, name)
}

// EnableFunction adds one function to an installed extension.
func (s *AccountService) EnableFunction(account, caller common.Address, name string, fn business.ExtensionFunction) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.EnableFunction(caller, name, fn)
}

// DisableFunction removes one selector from an installed extension.
func (s *AccountService) DisableFunction(account, caller common.Address, name string, selector business.Selector) error {
	acct, err := s.GetAccount(account)
	if err != nil {
		return err
	}
	return acct.DisableFunction(caller, name, selector)
}

// Extensions lists the account's installed extensions in install order.
func (s *AccountService) Extensions(account common.Address) ([]business.Extension, error) {
	acct, err := s.GetAccount(account)
	if err != nil {
		return nil, err
	}
	return acct.Extensions(), nil
}

func (s *AccountService) remoteHandler(ext business.Extension) router.Implementation {
	return &remoteExtension{
		address: ext.Metadata.Implementation,
		invoker: s.invoker,
	}
}

// remoteExtension dispatches routed selectors to the extension's
// implementation address through the target invoker. The selector is
// prepended to each call's data so the implementation can demux.
type remoteExtension struct {
	address common.Address
	invoker gateway.TargetInvoker
}

func (e *remoteExtension) Address() common.Address { return e.address }

func (e *remoteExtension) Invoke(ctx context.Context, selector business.Selector, calls []business.Call) ([]byte, error) {
	var out []byte
	for _, call := range calls {
		data := make([]byte, 0, len(selector)+len(call.Data))
		data = append(data, selector[:]...)
		data = append(data, call.Data...)
		ret, err := e.invoker.Invoke(ctx, business.Call{
			Target: e.address,
			Value:  call.Value,
			Data:   data,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "extension call to %s", e.address.Hex())
		}
		out = ret
	}
	return out, nil
}

// AccountCreated implements factory.Notifier.
func (s *AccountService) AccountCreated(account, admin common.Address, salt common.Hash) {
	rec := db.AccountRecord{
		Address:   account,
		Admin:     admin,
		Salt:      salt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertAccount(context.Background(), rec); err != nil {
		s.logger.Error("Failed to index created account",
			zap.String("account", account.Hex()),
			zap.Error(err))
	}
}

// SignerAdded implements factory.Notifier.
func (s *AccountService) SignerAdded(account, signer common.Address) {
	if err := s.store.UpsertAccountSigner(context.Background(), account, signer); err != nil {
		s.logger.Error("Failed to index signer addition",
			zap.String("account", account.Hex()),
			zap.String("signer", signer.Hex()),
			zap.Error(err))
	}
}

// SignerRemoved implements factory.Notifier.
func (s *AccountService) SignerRemoved(account, signer common.Address) {
	if err := s.store.DeleteAccountSigner(context.Background(), account, signer); err != nil {
		s.logger.Error("Failed to index signer removal",
			zap.String("account", account.Hex()),
			zap.String("signer", signer.Hex()),
			zap.Error(err))
	}
}

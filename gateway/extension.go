package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/types/business"
)

// AccountExtensionName is the default extension serving the built-in
// call operations on every account.
const AccountExtensionName = "account"

// accountExtension is the built-in implementation behind execute and
// executeBatch: it forwards each call to the host's TargetInvoker. A
// failing element aborts the remainder and the whole operation fails.
type accountExtension struct {
	address common.Address
	invoker TargetInvoker
}

// NewAccountExtension builds the default extension entry every account
// ships with, bound to the shared implementation address.
func NewAccountExtension(implementation common.Address, invoker TargetInvoker) (business.Extension, router.Implementation) {
	ext := business.Extension{
		Metadata: business.ExtensionMetadata{
			Name:           AccountExtensionName,
			MetadataURI:    "",
			Implementation: implementation,
		},
		Functions: []business.ExtensionFunction{
			{Selector: business.SelectorExecute, Signature: "execute(address,uint256,bytes)"},
			{Selector: business.SelectorExecuteBatch, Signature: "executeBatch(address[],uint256[],bytes[])"},
		},
	}
	return ext, &accountExtension{address: implementation, invoker: invoker}
}

func (e *accountExtension) Address() common.Address { return e.address }

func (e *accountExtension) Invoke(ctx context.Context, selector business.Selector, calls []business.Call) ([]byte, error) {
	switch selector {
	case business.SelectorExecute:
		if len(calls) != 1 {
			return nil, fmt.Errorf("execute takes exactly one call, got %d", len(calls))
		}
	case business.SelectorExecuteBatch:
		if len(calls) == 0 {
			return nil, fmt.Errorf("executeBatch takes at least one call")
		}
	default:
		return nil, fmt.Errorf("account extension does not serve %s", selector)
	}

	var out []byte
	for i, call := range calls {
		res, err := e.invoker.Invoke(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("call %d to %s: %w", i, call.Target, err)
		}
		out = res
	}
	return out, nil
}

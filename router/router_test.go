package router_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/storage"
	"github.com/keyfold/keyfold/types/business"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubImpl struct {
	addr common.Address
}

func (s *stubImpl) Address() common.Address { return s.addr }

func (s *stubImpl) Invoke(ctx context.Context, selector business.Selector, calls []business.Call) ([]byte, error) {
	return s.addr.Bytes(), nil
}

func newRouter(t *testing.T) *router.Router {
	t.Helper()
	r, err := router.NewRouter(storage.NewLayout(), nil)
	require.NoError(t, err)
	return r
}

func extension(name string, impl common.Address, signatures ...string) business.Extension {
	fns := make([]business.ExtensionFunction, 0, len(signatures))
	for _, sig := range signatures {
		fns = append(fns, business.ExtensionFunction{
			Selector:  business.SelectorFromSignature(sig),
			Signature: sig,
		})
	}
	return business.Extension{
		Metadata: business.ExtensionMetadata{
			Name:           name,
			MetadataURI:    "ipfs://" + name,
			Implementation: impl,
		},
		Functions: fns,
	}
}

func TestAddExtension_BindsAndRoutes(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}

	require.NoError(t, r.AddExtension(extension("core", impl.addr, "foo(uint256)", "bar()"), impl))

	got, err := r.RouteCall(business.SelectorFromSignature("foo(uint256)"))
	require.NoError(t, err)
	assert.Same(t, router.Implementation(impl), got)

	meta, err := r.DispatchMetadata(business.SelectorFromSignature("bar()"))
	require.NoError(t, err)
	assert.Equal(t, "core", meta.Name)
}

func TestAddExtension_Rejections(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}
	require.NoError(t, r.AddExtension(extension("core", impl.addr, "foo(uint256)"), impl))

	t.Run("duplicate name", func(t *testing.T) {
		err := r.AddExtension(extension("core", impl.addr, "baz()"), impl)
		assert.ErrorIs(t, err, router.ErrExtensionExists)
	})

	t.Run("empty name", func(t *testing.T) {
		err := r.AddExtension(extension("", impl.addr, "baz()"), impl)
		assert.ErrorIs(t, err, router.ErrEmptyName)
	})

	t.Run("nil implementation", func(t *testing.T) {
		err := r.AddExtension(extension("other", common.Address{}, "baz()"), impl)
		assert.ErrorIs(t, err, router.ErrNilImplementation)
		err = r.AddExtension(extension("other", impl.addr, "baz()"), nil)
		assert.ErrorIs(t, err, router.ErrNilImplementation)
	})

	t.Run("selector bound in another namespace", func(t *testing.T) {
		err := r.AddExtension(extension("other", impl.addr, "foo(uint256)"), impl)
		assert.ErrorIs(t, err, router.ErrSelectorBound)
	})

	t.Run("selector signature mismatch", func(t *testing.T) {
		ext := extension("other", impl.addr)
		ext.Functions = []business.ExtensionFunction{{
			Selector:  business.Selector{0xab, 0xcd, 0x12, 0x34},
			Signature: "foo(uint256)",
		}}
		err := r.AddExtension(ext, impl)
		assert.ErrorIs(t, err, router.ErrSelectorMismatch)
	})
}

func TestAddExtension_AllOrNothing(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}

	// Third function is inconsistent; the two valid ones must not bind.
	ext := extension("core", impl.addr, "a()", "b()")
	ext.Functions = append(ext.Functions, business.ExtensionFunction{
		Selector:  business.Selector{1, 2, 3, 4},
		Signature: "c()",
	})
	require.Error(t, r.AddExtension(ext, impl))

	_, err := r.RouteCall(business.SelectorFromSignature("a()"))
	assert.ErrorIs(t, err, router.ErrNoSuchOperation)
	_, err = r.Extension("core")
	assert.ErrorIs(t, err, router.ErrUnknownExtension)
}

func TestAddExtension_ZeroSelectorReceive(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}

	ext := extension("receiver", impl.addr)
	ext.Functions = []business.ExtensionFunction{{Selector: business.ZeroSelector, Signature: "receive()"}}
	require.NoError(t, r.AddExtension(ext, impl))

	bad := extension("other", impl.addr)
	bad.Functions = []business.ExtensionFunction{{Selector: business.ZeroSelector, Signature: "fallback()"}}
	assert.ErrorIs(t, r.AddExtension(bad, impl), router.ErrSelectorMismatch)
}

func TestReplaceExtension(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}
	next := &stubImpl{addr: common.HexToAddress("0xe2")}

	require.NoError(t, r.AddExtension(extension("core", impl.addr, "foo(uint256)", "bar()"), impl))

	assert.ErrorIs(t, r.ReplaceExtension(extension("ghost", next.addr, "baz()"), next), router.ErrUnknownExtension)

	require.NoError(t, r.ReplaceExtension(extension("core", next.addr, "bar()", "baz()"), next))

	// bar survives under the new handler, baz is new, foo is gone.
	got, err := r.RouteCall(business.SelectorFromSignature("bar()"))
	require.NoError(t, err)
	assert.Same(t, router.Implementation(next), got)

	_, err = r.RouteCall(business.SelectorFromSignature("baz()"))
	assert.NoError(t, err)

	_, err = r.RouteCall(business.SelectorFromSignature("foo(uint256)"))
	assert.ErrorIs(t, err, router.ErrNoSuchOperation)
}

func TestRemoveExtension(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}
	require.NoError(t, r.AddExtension(extension("core", impl.addr, "foo(uint256)"), impl))

	assert.ErrorIs(t, r.RemoveExtension("ghost"), router.ErrUnknownExtension)

	require.NoError(t, r.RemoveExtension("core"))
	_, err := r.RouteCall(business.SelectorFromSignature("foo(uint256)"))
	assert.ErrorIs(t, err, router.ErrNoSuchOperation)
	assert.Empty(t, r.Extensions())
}

func TestEnableDisableFunction(t *testing.T) {
	r := newRouter(t)
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}
	require.NoError(t, r.AddExtension(extension("core", impl.addr, "foo(uint256)"), impl))

	fn := business.ExtensionFunction{
		Selector:  business.SelectorFromSignature("baz()"),
		Signature: "baz()",
	}
	require.NoError(t, r.EnableFunction("core", fn))

	_, err := r.RouteCall(fn.Selector)
	require.NoError(t, err)

	assert.ErrorIs(t, r.EnableFunction("core", fn), router.ErrSelectorBound)
	assert.ErrorIs(t, r.EnableFunction("ghost", fn), router.ErrUnknownExtension)

	require.NoError(t, r.DisableFunction("core", fn.Selector))
	_, err = r.RouteCall(fn.Selector)
	assert.ErrorIs(t, err, router.ErrNoSuchOperation)

	assert.ErrorIs(t, r.DisableFunction("core", fn.Selector), router.ErrFunctionNotInExtension)

	ext, err := r.Extension("core")
	require.NoError(t, err)
	assert.Len(t, ext.Functions, 1, "disabled function must leave the entry's function list")
}

func TestDefaultSet_LazyMaterialization(t *testing.T) {
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}
	defaults, err := router.NewDefaultSet([]router.DefaultExtension{
		{Extension: extension("account", impl.addr, "execute(address,uint256,bytes)"), Handler: impl},
	})
	require.NoError(t, err)

	r, err := router.NewRouter(storage.NewLayout(), defaults)
	require.NoError(t, err)

	// Nothing resolves before materialization.
	_, routeErr := r.RouteCall(business.SelectorExecute)
	assert.ErrorIs(t, routeErr, router.ErrNoSuchOperation)

	require.NoError(t, r.Materialize())
	_, routeErr = r.RouteCall(business.SelectorExecute)
	assert.NoError(t, routeErr)

	// Second materialization is a no-op, not a duplicate bind.
	require.NoError(t, r.Materialize())
}

func TestDefaultSet_ValidatesOnce(t *testing.T) {
	impl := &stubImpl{addr: common.HexToAddress("0xe1")}

	_, err := router.NewDefaultSet([]router.DefaultExtension{
		{Extension: extension("a", impl.addr, "foo(uint256)"), Handler: impl},
		{Extension: extension("b", impl.addr, "foo(uint256)"), Handler: impl},
	})
	assert.ErrorIs(t, err, router.ErrSelectorBound)

	_, err = router.NewDefaultSet([]router.DefaultExtension{
		{Extension: extension("a", common.Address{}, "foo(uint256)"), Handler: impl},
	})
	assert.ErrorIs(t, err, router.ErrNilImplementation)
}

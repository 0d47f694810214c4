// Package router implements the account's extension dispatch table: named
// bundles of operation bindings that can be added, replaced, removed,
// enabled, and disabled without touching the account's identity. The
// router is pure mechanism; admin gating happens in the operation gateway
// that composes it.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keyfold/keyfold/constants"
	"github.com/keyfold/keyfold/storage"
	"github.com/keyfold/keyfold/types/business"
)

var (
	// ErrNoSuchOperation is returned when routing an unbound selector.
	ErrNoSuchOperation = errors.New("router: no extension serves this operation")

	// ErrExtensionExists is returned when adding an extension whose name
	// is already installed.
	ErrExtensionExists = errors.New("router: extension already exists")

	// ErrUnknownExtension is returned when replacing, removing, or
	// mutating an extension that is not installed.
	ErrUnknownExtension = errors.New("router: unknown extension")

	// ErrEmptyName is returned for extensions without a name.
	ErrEmptyName = errors.New("router: extension name is empty")

	// ErrNilImplementation is returned when an extension carries no
	// implementation.
	ErrNilImplementation = errors.New("router: nil implementation")

	// ErrSelectorBound is returned when a selector is already served by
	// an installed extension. Every selector binds to at most one
	// namespace at a time.
	ErrSelectorBound = errors.New("router: selector already bound")

	// ErrSelectorMismatch is returned when a function's selector does not
	// hash from its signature string.
	ErrSelectorMismatch = errors.New("router: selector does not match function signature")

	// ErrFunctionNotInExtension is returned when disabling a selector the
	// named extension does not serve.
	ErrFunctionNotInExtension = errors.New("router: function not served by this extension")
)

// receiveSignature is the signature of the implicit default-receive
// operation, the one binding exempt from hash-derived selectors.
const receiveSignature = "receive()"

// Implementation is the executable body of an extension. Address is the
// implementation module's identity recorded in the extension metadata.
type Implementation interface {
	Address() common.Address
	Invoke(ctx context.Context, selector business.Selector, calls []business.Call) ([]byte, error)
}

type binding struct {
	extension string
	handler   Implementation
	meta      business.ExtensionMetadata
}

type installed struct {
	ext     business.Extension
	handler Implementation
}

// state is the router's storage partition: the installed extensions and
// the dispatch table kept in lock-step with them.
type state struct {
	extensions map[string]*installed
	dispatch   map[business.Selector]binding
	order      []string // installation order, for stable enumeration
}

// Router is the dispatch front-end of one account. Not safe for
// concurrent use on its own; the owning account serializes access.
type Router struct {
	state    *state
	defaults *DefaultSet
}

// NewRouter creates a router and claims its storage partition. The
// optional default set was validated at construction and is materialized
// into the live tables lazily, on first Materialize call.
func NewRouter(layout *storage.Layout, defaults *DefaultSet) (*Router, error) {
	st := &state{
		extensions: make(map[string]*installed),
		dispatch:   make(map[business.Selector]binding),
	}
	if err := layout.Register(constants.RouterStorageLabel, st); err != nil {
		return nil, err
	}
	return &Router{state: st, defaults: defaults}, nil
}

// Materialize expands the compact default set into the live tables. Called
// once by account initialization; later calls are no-ops.
func (r *Router) Materialize() error {
	if r.defaults == nil || r.defaults.materialized {
		return nil
	}
	for _, d := range r.defaults.entries {
		if err := r.AddExtension(d.Extension, d.Handler); err != nil {
			return fmt.Errorf("materializing default extension %q: %w", d.Extension.Metadata.Name, err)
		}
	}
	r.defaults.materialized = true
	return nil
}

// checkFunction enforces selector/signature consistency: the selector is
// the hash of the signature, except the zero selector which pairs only
// with "receive()".
func checkFunction(fn business.ExtensionFunction) error {
	if fn.Selector.IsZero() {
		if fn.Signature != receiveSignature {
			return fmt.Errorf("%w: zero selector requires %q, got %q", ErrSelectorMismatch, receiveSignature, fn.Signature)
		}
		return nil
	}
	if derived := business.SelectorFromSignature(fn.Signature); derived != fn.Selector {
		return fmt.Errorf("%w: %s != hash(%q) = %s", ErrSelectorMismatch, fn.Selector, fn.Signature, derived)
	}
	return nil
}

// validateEntry checks an extension before any binding is committed.
// ignore names an extension whose current bindings do not count as
// conflicts (used by replace).
func (r *Router) validateEntry(ext business.Extension, handler Implementation, ignore string) error {
	if ext.Metadata.Name == "" {
		return ErrEmptyName
	}
	if handler == nil || ext.Metadata.Implementation == (common.Address{}) {
		return ErrNilImplementation
	}
	seen := make(map[business.Selector]bool, len(ext.Functions))
	for _, fn := range ext.Functions {
		if err := checkFunction(fn); err != nil {
			return err
		}
		if seen[fn.Selector] {
			return fmt.Errorf("%w: %s declared twice in %q", ErrSelectorBound, fn.Selector, ext.Metadata.Name)
		}
		seen[fn.Selector] = true
		if b, ok := r.state.dispatch[fn.Selector]; ok && b.extension != ignore {
			return fmt.Errorf("%w: %s is served by %q", ErrSelectorBound, fn.Selector, b.extension)
		}
	}
	return nil
}

// AddExtension installs a new named extension and binds every contained
// selector. All-or-nothing: nothing binds if any check fails.
func (r *Router) AddExtension(ext business.Extension, handler Implementation) error {
	if ext.Metadata.Name != "" {
		if _, ok := r.state.extensions[ext.Metadata.Name]; ok {
			return fmt.Errorf("%w: %q", ErrExtensionExists, ext.Metadata.Name)
		}
	}
	if err := r.validateEntry(ext, handler, ""); err != nil {
		return err
	}

	r.state.extensions[ext.Metadata.Name] = &installed{ext: ext, handler: handler}
	r.state.order = append(r.state.order, ext.Metadata.Name)
	for _, fn := range ext.Functions {
		r.state.dispatch[fn.Selector] = binding{
			extension: ext.Metadata.Name,
			handler:   handler,
			meta:      ext.Metadata,
		}
	}
	return nil
}

// ReplaceExtension atomically swaps an installed extension for a new
// entry under the same name. Selectors from the old function list that
// the new entry does not re-declare stop resolving.
func (r *Router) ReplaceExtension(ext business.Extension, handler Implementation) error {
	old, ok := r.state.extensions[ext.Metadata.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, ext.Metadata.Name)
	}
	if err := r.validateEntry(ext, handler, ext.Metadata.Name); err != nil {
		return err
	}

	for _, fn := range old.ext.Functions {
		delete(r.state.dispatch, fn.Selector)
	}
	r.state.extensions[ext.Metadata.Name] = &installed{ext: ext, handler: handler}
	for _, fn := range ext.Functions {
		r.state.dispatch[fn.Selector] = binding{
			extension: ext.Metadata.Name,
			handler:   handler,
			meta:      ext.Metadata,
		}
	}
	return nil
}

// RemoveExtension uninstalls an extension and clears all its bindings.
func (r *Router) RemoveExtension(name string) error {
	inst, ok := r.state.extensions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}
	for _, fn := range inst.ext.Functions {
		delete(r.state.dispatch, fn.Selector)
	}
	delete(r.state.extensions, name)
	for i, n := range r.state.order {
		if n == name {
			r.state.order = append(r.state.order[:i], r.state.order[i+1:]...)
			break
		}
	}
	return nil
}

// EnableFunction binds one additional function to an installed extension,
// under the same consistency and uniqueness rules as AddExtension.
func (r *Router) EnableFunction(name string, fn business.ExtensionFunction) error {
	inst, ok := r.state.extensions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}
	if err := checkFunction(fn); err != nil {
		return err
	}
	if b, bound := r.state.dispatch[fn.Selector]; bound {
		return fmt.Errorf("%w: %s is served by %q", ErrSelectorBound, fn.Selector, b.extension)
	}

	inst.ext.Functions = append(inst.ext.Functions, fn)
	r.state.dispatch[fn.Selector] = binding{
		extension: name,
		handler:   inst.handler,
		meta:      inst.ext.Metadata,
	}
	return nil
}

// DisableFunction unbinds one selector from an installed extension.
func (r *Router) DisableFunction(name string, selector business.Selector) error {
	inst, ok := r.state.extensions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}
	b, bound := r.state.dispatch[selector]
	if !bound || b.extension != name {
		return fmt.Errorf("%w: %s in %q", ErrFunctionNotInExtension, selector, name)
	}

	delete(r.state.dispatch, selector)
	fns := inst.ext.Functions
	for i, fn := range fns {
		if fn.Selector == selector {
			inst.ext.Functions = append(fns[:i], fns[i+1:]...)
			break
		}
	}
	return nil
}

// RouteCall resolves the implementation currently serving selector.
func (r *Router) RouteCall(selector business.Selector) (Implementation, error) {
	b, ok := r.state.dispatch[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchOperation, selector)
	}
	return b.handler, nil
}

// DispatchMetadata returns the metadata of the extension serving selector.
func (r *Router) DispatchMetadata(selector business.Selector) (business.ExtensionMetadata, error) {
	b, ok := r.state.dispatch[selector]
	if !ok {
		return business.ExtensionMetadata{}, fmt.Errorf("%w: %s", ErrNoSuchOperation, selector)
	}
	return b.meta, nil
}

// Extension returns the installed extension by name.
func (r *Router) Extension(name string) (business.Extension, error) {
	inst, ok := r.state.extensions[name]
	if !ok {
		return business.Extension{}, fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}
	return inst.ext, nil
}

// Extensions enumerates installed extensions in installation order.
func (r *Router) Extensions() []business.Extension {
	out := make([]business.Extension, 0, len(r.state.order))
	for _, name := range r.state.order {
		out = append(out, r.state.extensions[name].ext)
	}
	return out
}

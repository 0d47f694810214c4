package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keyfold/keyfold/types/business"
)

// DefaultExtension pairs a default extension entry with its handler.
type DefaultExtension struct {
	Extension business.Extension
	Handler   Implementation
}

// DefaultSet is a compactly persisted set of default extensions shared by
// every account cloned from one implementation. Validation runs once here
// rather than at every account creation; accounts expand the set into
// their live tables lazily, on first initialization.
type DefaultSet struct {
	entries      []DefaultExtension
	materialized bool
}

// NewDefaultSet validates the entries under the same uniqueness and
// selector-consistency rules as live installation and stores them
// compactly.
func NewDefaultSet(entries []DefaultExtension) (*DefaultSet, error) {
	names := make(map[string]bool, len(entries))
	selectors := make(map[business.Selector]string)

	for _, d := range entries {
		name := d.Extension.Metadata.Name
		if name == "" {
			return nil, ErrEmptyName
		}
		if names[name] {
			return nil, fmt.Errorf("%w: %q", ErrExtensionExists, name)
		}
		names[name] = true
		if d.Handler == nil || d.Extension.Metadata.Implementation == (common.Address{}) {
			return nil, fmt.Errorf("%w: default extension %q", ErrNilImplementation, name)
		}
		for _, fn := range d.Extension.Functions {
			if err := checkFunction(fn); err != nil {
				return nil, err
			}
			if owner, ok := selectors[fn.Selector]; ok {
				return nil, fmt.Errorf("%w: %s declared by %q and %q", ErrSelectorBound, fn.Selector, owner, name)
			}
			selectors[fn.Selector] = name
		}
	}

	return &DefaultSet{entries: entries}, nil
}

// Clone returns an unmaterialized copy for a fresh account. Validation is
// not repeated; the compact form amortizes it across clone instances.
func (s *DefaultSet) Clone() *DefaultSet {
	if s == nil {
		return nil
	}
	return &DefaultSet{entries: s.entries}
}

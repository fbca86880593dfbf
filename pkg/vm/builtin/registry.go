package builtin

import (
	"fmt"
	"sort"
)

// Registry maps function names to builtin implementations. It is built once
// and never modified afterwards.
type Registry struct {
	fns map[string]BuiltinFunction
}

// NewRegistry builds a registry from fns. It panics if two functions share a
// name.
func NewRegistry(fns ...BuiltinFunction) *Registry {
	r := &Registry{fns: make(map[string]BuiltinFunction, len(fns))}
	for _, fn := range fns {
		name := fn.Name()
		if _, dup := r.fns[name]; dup {
			panic(fmt.Sprintf("builtin: duplicate function %q", name))
		}
		r.fns[name] = fn
	}
	return r
}

// DefaultRegistry returns a registry holding every builtin of this package.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewLocalMint(),
		NewLocalBurn(),
		NewNFTCreate(),
		NewNFTAddQuantity(),
		NewNFTBurn(),
		NewNFTAddURI(),
		NewNFTUpdateAttributes(),
		NewDCDTTransfer(),
		NewNFTTransfer(),
		NewMultiNFTTransfer(),
		NewChangeOwnerAddress(),
		NewSetUserName(),
		NewClaimDeveloperRewards(),
	)
}

// Lookup returns the builtin registered under name. A miss means the call is
// not a builtin and should be dispatched as a contract call.
func (r *Registry) Lookup(name string) (BuiltinFunction, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the registered names in lexicographic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered builtins.
func (r *Registry) Len() int {
	return len(r.fns)
}

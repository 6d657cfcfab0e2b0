package omnifs

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

var (
	schemesMu sync.RWMutex
	schemes   = make(map[string]OperatorFactory)
)

// OperatorFactory constructs an Operator for one backend kind from a parsed
// connection URL and the descriptor's transport policy. Constructors must be
// safe to call repeatedly for the same URL (the registry may retry after a
// failed construction).
type OperatorFactory func(u *url.URL, policy Policy) (Operator, error)

// RegisterScheme registers an operator factory for a URL scheme.
// It is typically called from init() in backend packages.
//
// RegisterScheme panics if:
//   - factory is nil
//   - the scheme is already registered
//
// Example:
//
//	func init() {
//	    omnifs.RegisterScheme("memory", New)
//	}
func RegisterScheme(scheme string, factory OperatorFactory) {
	schemesMu.Lock()
	defer schemesMu.Unlock()

	if factory == nil {
		panic("omnifs: RegisterScheme factory is nil")
	}
	if _, dup := schemes[scheme]; dup {
		panic("omnifs: RegisterScheme called twice for scheme " + scheme)
	}
	schemes[scheme] = factory
}

// SchemeRegistered returns true if an operator factory exists for scheme.
func SchemeRegistered(scheme string) bool {
	schemesMu.RLock()
	defer schemesMu.RUnlock()
	_, ok := schemes[scheme]
	return ok
}

// Schemes returns the sorted list of registered URL schemes.
func Schemes() []string {
	schemesMu.RLock()
	defer schemesMu.RUnlock()

	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newOperator constructs an operator for rawURL using the factory registered
// for its scheme.
func newOperator(rawURL string, policy Policy) (Operator, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}

	schemesMu.RLock()
	factory, ok := schemes[u.Scheme]
	schemesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return factory(u, policy)
}

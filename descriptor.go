package omnifs

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Health is the registry's view of a backend's reachability.
type Health int

const (
	// HealthUnknown means the backend has never been probed.
	HealthUnknown Health = iota

	// HealthHealthy means the most recent probe succeeded.
	HealthHealthy

	// HealthUnhealthy means the most recent probe failed.
	HealthUnhealthy
)

// String returns the health state as a lowercase word.
func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Health) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*h = HealthHealthy
	case "unhealthy":
		*h = HealthUnhealthy
	case "unknown", "":
		*h = HealthUnknown
	default:
		return fmt.Errorf("invalid health state %q", text)
	}
	return nil
}

// DefaultTimeout and DefaultRetryAttempts apply to descriptors that leave
// the corresponding field zero.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Descriptor is the registry's record of one named backend. Name is
// immutable after registration; health and default-ness are tracked by the
// registry itself.
type Descriptor struct {
	// Name uniquely identifies the backend within a registry.
	// Allowed characters: letters, digits, hyphens, underscores.
	Name string `json:"name"`

	// URL is the backend connection string. The scheme selects the backend
	// kind; everything else is opaque to the core and interpreted by the
	// kind's operator constructor.
	URL string `json:"url"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// ReadOnly rejects all mutating operations against this backend before
	// any I/O is attempted.
	ReadOnly bool `json:"readonly"`

	// Timeout bounds individual transport calls. Zero selects DefaultTimeout.
	Timeout time.Duration `json:"timeout"`

	// RetryAttempts is the operator's retry budget. Zero selects
	// DefaultRetryAttempts.
	RetryAttempts int `json:"retry_attempts"`
}

// Validate checks the descriptor's name and URL. The URL must parse and its
// scheme must match a registered backend kind.
func (d Descriptor) Validate() error {
	if !nameRE.MatchString(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, d.URL, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: %q: missing scheme", ErrInvalidURL, d.URL)
	}
	if !SchemeRegistered(u.Scheme) {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	return nil
}

// Scheme returns the URL scheme, or "" if the URL does not parse.
func (d Descriptor) Scheme() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// policy returns the descriptor's transport policy with defaults applied.
func (d Descriptor) policy() Policy {
	p := Policy{Timeout: d.Timeout, RetryAttempts: d.RetryAttempts}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = DefaultRetryAttempts
	}
	return p
}

// BackendInfo is one row of Registry.ListAll: the descriptor plus the
// registry-owned status fields. Operator handles are never exposed.
type BackendInfo struct {
	Descriptor

	// IsDefault reports whether this backend is the registry default.
	IsDefault bool `json:"is_default"`

	// Health is the backend's last known health state.
	Health Health `json:"health"`

	// LastChecked is when the backend was last probed, zero if never.
	LastChecked time.Time `json:"last_checked,omitempty"`
}

package extension

import "fmt"

// Config carries the local endpoint's configuration for the mobile-signaling
// extension, filled in from CLI flags before any handshake begins. It is
// read by the negotiator but never mutated by it.
type Config struct {
	// EnableExtensions gates whether this endpoint offers or accepts the
	// mobile-signaling extension at all. When false, IsImplemented always
	// reports false and negotiation is skipped entirely.
	EnableExtensions bool

	// PrimaryConnection marks this endpoint as the one that should carry
	// the primary (direct) link rather than the signaling link, mirroring
	// the C++ default of true.
	PrimaryConnection bool

	// OverrideCoordinator, when true, means this endpoint's own coordinator
	// value wins during reconciliation instead of the peer's.
	OverrideCoordinator bool

	// coordinator and destination are URIs; empty means "unset".
	coordinator string
	destination string
}

// NewConfig returns a Config with the same defaults as the original
// negotiator: primary by default, never overriding the coordinator, and
// extensions disabled until a caller opts in.
func NewConfig() *Config {
	return &Config{PrimaryConnection: true}
}

// Coordinator returns the configured coordinator URI, or "" if unset.
func (c *Config) Coordinator() string { return c.coordinator }

// SetCoordinator records the coordinator URI this endpoint will offer or
// reconcile against.
func (c *Config) SetCoordinator(uri string) { c.coordinator = uri }

// Destination returns the configured destination URI, or "" if unset.
func (c *Config) Destination() string { return c.destination }

// SetDestination records the destination URI this endpoint will offer.
func (c *Config) SetDestination(uri string) { c.destination = uri }

// IsImplemented reports whether this endpoint participates in the
// mobile-signaling extension at all.
func (c *Config) IsImplemented() bool { return c != nil && c.EnableExtensions }

func (c *Config) String() string {
	return fmt.Sprintf("Config{enabled=%v primary=%v override_coordinator=%v coordinator=%q destination=%q}",
		c.EnableExtensions, c.PrimaryConnection, c.OverrideCoordinator, c.coordinator, c.destination)
}

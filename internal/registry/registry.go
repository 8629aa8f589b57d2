// Package registry classifies accepted TCP connections into acquirer or
// issuer roles and tracks them in two disjoint connectionId -> net.Conn
// maps guarded by a single mutex, per the switch's coarse-locking
// concurrency model.
package registry

import (
	"net"
	"strings"
	"sync"
)

// Role is the classification assigned to a connection on accept.
type Role int

// Recognized roles.
const (
	Unknown Role = iota
	Acquirer
	Issuer
)

// String implements fmt.Stringer for diagnostic output.
func (r Role) String() string {
	switch r {
	case Acquirer:
		return "acquirer"
	case Issuer:
		return "issuer"
	default:
		return "unknown"
	}
}

// Registry holds the live set of classified connections. The zero value is
// not usable; construct with New.
type Registry struct {
	acquirerAddrs map[string]struct{}
	issuerAddrs   map[string]struct{}

	mu        sync.Mutex
	acquirers map[string]net.Conn
	issuers   map[string]net.Conn
}

// New builds a Registry whose configured acquirer/issuer address sets
// classify connections by peer host before falling back to first-connected-
// wins.
func New(acquirerAddrs, issuerAddrs []string) *Registry {
	r := &Registry{
		acquirerAddrs: toSet(acquirerAddrs),
		issuerAddrs:   toSet(issuerAddrs),
		acquirers:     make(map[string]net.Conn),
		issuers:       make(map[string]net.Conn),
	}
	return r
}

func toSet(addrs []string) map[string]struct{} {
	s := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// stripIPv4MappedPrefix removes a leading "::ffff:" from an IPv6-mapped
// IPv4 address, leaving the bare IPv4 literal.
func stripIPv4MappedPrefix(host string) string {
	return strings.TrimPrefix(host, "::ffff:")
}

const (
	loopbackV4 = "127.0.0.1"
	loopbackV6 = "::1"
)

// Register classifies conn by its remote address and files it under the
// returned role and connectionId. Role is assigned by priority: loopback,
// then the configured acquirer set, then the configured issuer set,
// then first-connected-wins (acquirer if none yet, else issuer if none
// yet, else Unknown). Unknown-role connections are not stored; the caller
// still owns the socket and may accept traffic from it, but the dispatcher
// drops any message it carries.
func (r *Registry) Register(conn net.Conn) (Role, string) {
	connectionID := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(connectionID)
	if err != nil {
		host = connectionID
	}
	host = stripIPv4MappedPrefix(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	role := r.classifyLocked(host)
	switch role {
	case Acquirer:
		r.acquirers[connectionID] = conn
	case Issuer:
		r.issuers[connectionID] = conn
	}
	return role, connectionID
}

func (r *Registry) classifyLocked(host string) Role {
	if host == loopbackV4 || host == loopbackV6 {
		return Acquirer
	}
	if _, ok := r.acquirerAddrs[host]; ok {
		return Acquirer
	}
	if _, ok := r.issuerAddrs[host]; ok {
		return Issuer
	}
	if len(r.acquirers) == 0 {
		return Acquirer
	}
	if len(r.issuers) == 0 {
		return Issuer
	}
	return Unknown
}

// Remove deletes connectionId from role's map, if present.
func (r *Registry) Remove(role Role, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch role {
	case Acquirer:
		delete(r.acquirers, connectionID)
	case Issuer:
		delete(r.issuers, connectionID)
	}
}

// AnyIssuer returns an arbitrary currently registered issuer connection,
// chosen by Go's unspecified map iteration order, and whether one exists.
func (r *Registry) AnyIssuer() (net.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.issuers {
		return conn, true
	}
	return nil, false
}

// AnyAcquirer returns an arbitrary currently registered acquirer
// connection, chosen by Go's unspecified map iteration order, and whether
// one exists.
func (r *Registry) AnyAcquirer() (net.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.acquirers {
		return conn, true
	}
	return nil, false
}

// AcquirerCount and IssuerCount report live connection counts per role, for
// the admin façade's status endpoint.
func (r *Registry) AcquirerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acquirers)
}

func (r *Registry) IssuerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issuers)
}

// CloseAll closes every currently registered connection, acquirer and
// issuer alike. Used during graceful shutdown to unblock each connection's
// read loop. Close errors are discarded: the connections are being
// abandoned regardless.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.acquirers {
		_ = conn.Close()
	}
	for _, conn := range r.issuers {
		_ = conn.Close()
	}
}

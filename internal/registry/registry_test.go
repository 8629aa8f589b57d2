package registry_test

import (
	"net"
	"testing"
	"time"

	"github.com/npsb/npswitch/internal/registry"
)

// fakeAddr implements net.Addr with a fixed string, for classifying
// connections by a chosen peer address in tests.
type fakeAddr struct{ addr string }

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.addr }

// fakeConn implements net.Conn with a configurable RemoteAddr; every other
// method is an unused no-op since the registry only inspects RemoteAddr.
type fakeConn struct{ remote net.Addr }

func (c fakeConn) Read([]byte) (int, error)         { return 0, nil }
func (c fakeConn) Write(b []byte) (int, error)      { return len(b), nil }
func (c fakeConn) Close() error                     { return nil }
func (c fakeConn) LocalAddr() net.Addr              { return fakeAddr{"0.0.0.0:0"} }
func (c fakeConn) RemoteAddr() net.Addr             { return c.remote }
func (c fakeConn) SetDeadline(time.Time) error      { return nil }
func (c fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c fakeConn) SetWriteDeadline(time.Time) error { return nil }

func connAt(addr string) net.Conn {
	return fakeConn{remote: fakeAddr{addr}}
}

func TestRegisterLoopbackIsAcquirer(t *testing.T) {
	t.Parallel()

	r := registry.New(nil, nil)
	role, id := r.Register(connAt("127.0.0.1:5000"))
	if role != registry.Acquirer {
		t.Fatalf("role = %v, want Acquirer", role)
	}
	if id != "127.0.0.1:5000" {
		t.Fatalf("connectionID = %q, want %q", id, "127.0.0.1:5000")
	}

	role, _ = r.Register(connAt("[::1]:5001"))
	if role != registry.Acquirer {
		t.Fatalf("role = %v, want Acquirer for ::1", role)
	}
}

func TestRegisterConfiguredAcquirerSet(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, []string{"10.0.0.9"})
	role, _ := r.Register(connAt("10.0.0.5:9000"))
	if role != registry.Acquirer {
		t.Fatalf("role = %v, want Acquirer", role)
	}
}

func TestRegisterConfiguredIssuerSet(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, []string{"10.0.0.9"})
	role, _ := r.Register(connAt("10.0.0.9:9000"))
	if role != registry.Issuer {
		t.Fatalf("role = %v, want Issuer", role)
	}
}

func TestRegisterStripsIPv4MappedPrefix(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, nil)
	role, _ := r.Register(connAt("[::ffff:10.0.0.5]:9000"))
	if role != registry.Acquirer {
		t.Fatalf("role = %v, want Acquirer", role)
	}
}

func TestRegisterFirstConnectedWinsFallback(t *testing.T) {
	t.Parallel()

	r := registry.New(nil, nil)

	role1, _ := r.Register(connAt("192.168.1.1:1000"))
	if role1 != registry.Acquirer {
		t.Fatalf("first unconfigured connection role = %v, want Acquirer", role1)
	}

	role2, _ := r.Register(connAt("192.168.1.2:1000"))
	if role2 != registry.Issuer {
		t.Fatalf("second unconfigured connection role = %v, want Issuer", role2)
	}

	role3, _ := r.Register(connAt("192.168.1.3:1000"))
	if role3 != registry.Unknown {
		t.Fatalf("third unconfigured connection role = %v, want Unknown", role3)
	}
}

func TestRemoveAndAnyIssuer(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, []string{"10.0.0.9"})
	r.Register(connAt("10.0.0.9:9000"))

	if _, ok := r.AnyIssuer(); !ok {
		t.Fatalf("expected an issuer to be registered")
	}

	r.Remove(registry.Issuer, "10.0.0.9:9000")
	if _, ok := r.AnyIssuer(); ok {
		t.Fatalf("expected no issuer after Remove")
	}
}

func TestCounts(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, []string{"10.0.0.9"})
	r.Register(connAt("10.0.0.5:1"))
	r.Register(connAt("10.0.0.5:2"))
	r.Register(connAt("10.0.0.9:1"))

	if got := r.AcquirerCount(); got != 2 {
		t.Fatalf("AcquirerCount = %d, want 2", got)
	}
	if got := r.IssuerCount(); got != 1 {
		t.Fatalf("IssuerCount = %d, want 1", got)
	}
}

// closeTrackingConn records whether Close was called.
type closeTrackingConn struct {
	fakeConn
	closed *bool
}

func (c closeTrackingConn) Close() error {
	*c.closed = true
	return nil
}

func TestCloseAllClosesEveryConnection(t *testing.T) {
	t.Parallel()

	r := registry.New([]string{"10.0.0.5"}, []string{"10.0.0.9"})

	acquirerClosed := false
	issuerClosed := false

	r.Register(closeTrackingConn{fakeConn{remote: fakeAddr{"10.0.0.5:1"}}, &acquirerClosed})
	r.Register(closeTrackingConn{fakeConn{remote: fakeAddr{"10.0.0.9:1"}}, &issuerClosed})

	r.CloseAll()

	if !acquirerClosed {
		t.Error("acquirer connection was not closed")
	}
	if !issuerClosed {
		t.Error("issuer connection was not closed")
	}
}

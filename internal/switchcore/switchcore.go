// Package switchcore ties the framer, registry, correlation table, and
// network-management responder together into the switch's per-connection
// dispatch loop: role-based routing of ingress messages, local
// network-management replies, and STAN-correlated forwarding between
// acquirer and issuer connections.
package switchcore

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/npsb/npswitch/internal/correlation"
	"github.com/npsb/npswitch/internal/field"
	"github.com/npsb/npswitch/internal/framer"
	"github.com/npsb/npswitch/internal/iso8583"
	"github.com/npsb/npswitch/internal/netmgmt"
	"github.com/npsb/npswitch/internal/registry"
)

// Metrics receives switch events for observability. Switch calls every
// method unconditionally; NoopMetrics satisfies the interface for callers
// that do not need metrics.
type Metrics interface {
	ConnectionOpened(role registry.Role)
	ConnectionClosed(role registry.Role)
	MessageIn(role registry.Role, mti string)
	MessageOut(role registry.Role, mti string)
	ForwardFailure()
	CorrelationMiss()
	CodecError()
	PendingSize(n int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) ConnectionOpened(registry.Role)   {}
func (NoopMetrics) ConnectionClosed(registry.Role)   {}
func (NoopMetrics) MessageIn(registry.Role, string)  {}
func (NoopMetrics) MessageOut(registry.Role, string) {}
func (NoopMetrics) ForwardFailure()                  {}
func (NoopMetrics) CorrelationMiss()                 {}
func (NoopMetrics) CodecError()                      {}
func (NoopMetrics) PendingSize(int)                  {}

// correlatedIssuerMTIs are the issuer response MTIs routed back to an
// acquirer via the correlation table rather than handled as local
// network-management replies.
var correlatedIssuerMTIs = map[string]struct{}{
	"0110": {},
	"0210": {},
	"0410": {},
}

// Switch is the shared aggregate every per-connection task dispatches
// through. It holds no lock of its own: the registry and the correlation
// table each guard their state with their own mutex. It owns no sockets
// directly; each connection task owns its own net.Conn and passes it in on
// every call.
type Switch struct {
	registry *registry.Registry
	pending  *correlation.Table
	mode     field.EncoderMode
	log      *slog.Logger
	metrics  Metrics
}

// New builds a Switch over reg and pending, encoding outbound local replies
// with mode.
func New(reg *registry.Registry, pending *correlation.Table, mode field.EncoderMode, log *slog.Logger, metrics Metrics) *Switch {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Switch{registry: reg, pending: pending, mode: mode, log: log, metrics: metrics}
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// errors, spawning one handling goroutine per connection.
func (s *Switch) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.HandleConnection(ctx, conn)
	}
}

// HandleConnection classifies conn, reads length-prefixed frames until EOF
// or ctx cancellation, dispatches each one, and on exit removes conn from
// the registry and purges any correlation entries it owns.
func (s *Switch) HandleConnection(ctx context.Context, conn net.Conn) {
	role, connectionID := s.registry.Register(conn)
	s.metrics.ConnectionOpened(role)
	s.log.Info("connection accepted", "role", role.String(), "connection_id", connectionID)

	defer func() {
		conn.Close()
		s.registry.Remove(role, connectionID)
		if role == registry.Acquirer {
			s.pending.PurgeSocket(conn)
			s.metrics.PendingSize(s.pending.Len())
		}
		s.metrics.ConnectionClosed(role)
		s.log.Info("connection closed", "role", role.String(), "connection_id", connectionID)
	}()

	fr := framer.New()
	buf := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			for _, payload := range fr.Feed(buf[:n]) {
				s.Dispatch(role, connectionID, conn, payload)
			}
		}
		if err != nil {
			return
		}
	}
}

// Dispatch decodes one frame's payload and routes it per role and MTI,
// exactly as HandleConnection's read loop would, but callable directly
// from tests against in-memory connections.
func (s *Switch) Dispatch(role registry.Role, connectionID string, conn net.Conn, raw []byte) {
	msg, err := iso8583.Decode(raw, s.mode)
	if err != nil {
		s.metrics.CodecError()
		s.log.Warn("codec error, dropping frame", "connection_id", connectionID, "error", err)
		return
	}
	s.metrics.MessageIn(role, msg.MTI)

	switch role {
	case registry.Acquirer:
		s.dispatchAcquirer(connectionID, conn, raw, msg)
	case registry.Issuer:
		s.dispatchIssuer(connectionID, conn, raw, msg)
	default:
		s.log.Warn("message from unclassified connection, dropping", "connection_id", connectionID, "mti", msg.MTI)
	}
}

func (s *Switch) dispatchAcquirer(connectionID string, conn net.Conn, raw []byte, msg *iso8583.Message) {
	if netmgmt.IsNetworkManagement(msg.MTI) {
		s.replyLocally(conn, msg, registry.Acquirer)
		return
	}

	if msg.MTI != "0100" {
		s.log.Warn("unsupported acquirer MTI, dropping", "connection_id", connectionID, "mti", msg.MTI)
		return
	}

	stan, hasSTAN := msg.Get(11)
	if !hasSTAN {
		s.writeRoutingError(conn, "000000", "96")
		return
	}

	issuerConn, ok := s.registry.AnyIssuer()
	if !ok {
		s.writeRoutingError(conn, string(stan), "91")
		return
	}

	s.pending.Insert(string(stan), correlation.PendingEntry{
		AcquirerSocket: conn,
		ConnectionID:   connectionID,
		CreatedAt:      time.Now(),
	})
	s.metrics.PendingSize(s.pending.Len())

	s.forward(issuerConn, raw, registry.Issuer, msg.MTI)
}

func (s *Switch) dispatchIssuer(connectionID string, conn net.Conn, raw []byte, msg *iso8583.Message) {
	if netmgmt.IsNetworkManagement(msg.MTI) {
		s.replyLocally(conn, msg, registry.Issuer)
		return
	}

	if _, ok := correlatedIssuerMTIs[msg.MTI]; !ok {
		s.log.Warn("unsupported issuer MTI, dropping", "connection_id", connectionID, "mti", msg.MTI)
		return
	}

	stan, hasSTAN := msg.Get(11)
	if !hasSTAN {
		s.log.Warn("issuer response missing STAN, dropping", "connection_id", connectionID, "mti", msg.MTI)
		return
	}

	entry, ok := s.pending.Take(string(stan))
	s.metrics.PendingSize(s.pending.Len())
	if !ok {
		s.metrics.CorrelationMiss()
		s.log.Warn("correlation miss, dropping issuer response", "connection_id", connectionID, "stan", string(stan))
		return
	}

	s.forward(entry.AcquirerSocket, raw, registry.Acquirer, msg.MTI)
}

// forward re-frames raw (the original, undecoded bytes) and writes it to
// dest, logging but not failing the caller on a write error.
func (s *Switch) forward(dest net.Conn, raw []byte, destRole registry.Role, mti string) {
	wire, err := framer.Frame(raw)
	if err != nil {
		s.log.Error("failed to frame forwarded message", "error", err)
		s.metrics.ForwardFailure()
		return
	}
	if err := writeAll(dest, wire); err != nil {
		s.log.Warn("forward write failed", "error", err)
		s.metrics.ForwardFailure()
		return
	}
	s.metrics.MessageOut(destRole, mti)
}

// replyLocally builds and writes a network-management reply on conn.
func (s *Switch) replyLocally(conn net.Conn, msg *iso8583.Message, role registry.Role) {
	reply, err := netmgmt.BuildReply(msg, time.Now())
	if err != nil {
		s.log.Error("failed to build network-management reply", "error", err)
		return
	}
	s.writeMessage(conn, reply, role)
}

// writeRoutingError builds a synthetic 0110 response for an acquirer
// routing failure (missing STAN or no issuer available) and writes it
// back on the originating socket.
func (s *Switch) writeRoutingError(conn net.Conn, stan, responseCode string) {
	reply := iso8583.New("0110")
	reply.Set(11, []byte(stan))
	reply.Set(39, []byte(responseCode))
	s.writeMessage(conn, reply, registry.Acquirer)
}

func (s *Switch) writeMessage(conn net.Conn, msg *iso8583.Message, destRole registry.Role) {
	encoded, err := iso8583.Encode(msg, s.mode)
	if err != nil {
		s.log.Error("failed to encode outbound message", "error", err)
		return
	}
	wire, err := framer.Frame(encoded)
	if err != nil {
		s.log.Error("failed to frame outbound message", "error", err)
		return
	}
	if err := writeAll(conn, wire); err != nil {
		s.log.Warn("write failed", "error", err)
		return
	}
	s.metrics.MessageOut(destRole, msg.MTI)
}

func writeAll(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

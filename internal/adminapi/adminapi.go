// Package adminapi is the switch's HTTP JSON façade: a single
// request/response path for injecting a message as if it arrived from a
// loopback acquirer, and a status endpoint for operational visibility.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/npsb/npswitch/internal/correlation"
	"github.com/npsb/npswitch/internal/field"
	"github.com/npsb/npswitch/internal/framer"
	"github.com/npsb/npswitch/internal/iso8583"
	"github.com/npsb/npswitch/internal/registry"
	"github.com/npsb/npswitch/internal/switchcore"
)

// ErrResponseTimeout indicates no correlated response arrived within the
// configured wait.
var ErrResponseTimeout = errors.New("timed out waiting for correlated response")

// defaultResponseTimeout bounds how long POST /messages waits for the
// switch to produce a response before failing the request.
const defaultResponseTimeout = 5 * time.Second

// Server is the HTTP admin façade.
type Server struct {
	sw      *switchcore.Switch
	reg     *registry.Registry
	pending *correlation.Table
	mode    field.EncoderMode
	log     *slog.Logger
	timeout time.Duration

	seq atomic.Uint64
}

// New builds a Server. sw is the switch aggregate POST /messages injects
// into; reg and pending back GET /status.
func New(sw *switchcore.Switch, reg *registry.Registry, pending *correlation.Table, mode field.EncoderMode, log *slog.Logger) *Server {
	return &Server{sw: sw, reg: reg, pending: pending, mode: mode, log: log, timeout: defaultResponseTimeout}
}

// Handler returns the façade's http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", s.handleMessages)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// messageRequest is the POST /messages JSON body: an MTI plus field
// number (as a decimal string) to value mapping.
type messageRequest struct {
	MTI    string            `json:"mti"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	msg, err := buildMessage(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := iso8583.Encode(msg, s.mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("encode message: %v", err))
		return
	}

	reply, err := s.inject(r.Context(), raw)
	if err != nil {
		status := http.StatusGatewayTimeout
		if !errors.Is(err, ErrResponseTimeout) {
			status = http.StatusInternalServerError
		}
		writeJSONError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messageToResponse(reply))
}

// inject dispatches raw through the switch as if it had arrived from a
// loopback acquirer connection, and waits for the correlated response.
func (s *Server) inject(ctx context.Context, raw []byte) (*iso8583.Message, error) {
	conn, peer := net.Pipe()
	defer func() {
		conn.Close()
		peer.Close()
		// conn never passes through the registry, so nothing else purges its
		// correlation entry on a response that never arrives (timeout) or an
		// unroutable request. Mirrors HandleConnection's own cleanup.
		s.pending.PurgeSocket(conn)
	}()

	connID := fmt.Sprintf("admin:%d", s.seq.Add(1))
	go s.sw.Dispatch(registry.Acquirer, connID, conn, raw)

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := peer.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	fr := framer.New()
	buf := make([]byte, 4096)
	for {
		n, err := peer.Read(buf)
		if n > 0 {
			frames := fr.Feed(buf[:n])
			if len(frames) > 0 {
				return iso8583.Decode(frames[0], s.mode)
			}
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				return nil, ErrResponseTimeout
			}
			return nil, fmt.Errorf("read response: %w", err)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// statusResponse is the GET /status JSON body.
type statusResponse struct {
	Acquirers int `json:"acquirers"`
	Issuers   int `json:"issuers"`
	Pending   int `json:"pending"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Acquirers: s.reg.AcquirerCount(),
		Issuers:   s.reg.IssuerCount(),
		Pending:   s.pending.Len(),
	})
}

func buildMessage(req messageRequest) (*iso8583.Message, error) {
	if len(req.MTI) != 4 {
		return nil, fmt.Errorf("mti must be 4 digits, got %q", req.MTI)
	}
	msg := iso8583.New(req.MTI)
	for key, value := range req.Fields {
		n, err := parseFieldNumber(key)
		if err != nil {
			return nil, err
		}
		msg.Set(n, []byte(value))
	}
	return msg, nil
}

func parseFieldNumber(key string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(key, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid field number %q: %w", key, err)
	}
	if n < 2 || n > 128 {
		return 0, fmt.Errorf("field number %d out of range 2-128", n)
	}
	return n, nil
}

func messageToResponse(msg *iso8583.Message) messageRequest {
	fields := make(map[string]string, len(msg.Fields))
	for n, v := range msg.Fields {
		fields[fmt.Sprintf("%d", n)] = string(v)
	}
	return messageRequest{MTI: msg.MTI, Fields: fields}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

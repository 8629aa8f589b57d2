package adminapi

import "time"

// SetTimeout overrides the façade's correlated-response wait. Exported only
// to the test binary, so tests can exercise the timeout path without
// waiting out defaultResponseTimeout.
func (s *Server) SetTimeout(d time.Duration) {
	s.timeout = d
}

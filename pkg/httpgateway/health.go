package httpgateway

import "net/http"

// handleHealthz reports liveness: if the process can answer HTTP at all, it
// is alive. Application-level state never fails this probe.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleReadyz reports readiness: the spec store and the container driver
// must both be reachable. A process that can't read its spec store can't
// route any request usefully, and one that can't reach its driver can't
// keep workers alive behind the queues.
func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := g.specs.List(""); err != nil {
		g.logger.Warn().Err(err).Msg("readyz: spec store unreachable")
		http.Error(w, "spec store unreachable", http.StatusServiceUnavailable)
		return
	}
	if err := g.registry.PingDriver(r.Context()); err != nil {
		g.logger.Warn().Err(err).Msg("readyz: container driver unreachable")
		http.Error(w, "container driver unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

package httpgateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/specstore"
	"github.com/cuemby/jbapi/pkg/types"
)

// handleDispatch implements the `/api/<api_name>/<cmd>[/<arg>…]?vkey=vval`
// route. A timeout becomes HTTP 408; an unknown api_name or a method the
// spec doesn't accept becomes 404.
func (g *Gateway) handleDispatch(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "apiName")
	cmd := chi.URLParam(r, "cmd")

	spec, err := g.specs.Get(apiName)
	if err == specstore.ErrNotFound {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		g.logger.Error().Err(err).Str("api_name", apiName).Msg("spec lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !spec.AcceptsMethod(r.Method) {
		http.NotFound(w, r)
		return
	}

	timer := metrics.NewTimer()
	status := "ok"
	defer func() {
		metrics.HTTPRequestsTotal.WithLabelValues(apiName, status).Inc()
		timer.ObserveDuration(metrics.HTTPRequestDuration.WithLabelValues(apiName))
	}()

	ctx, cancel := context.WithTimeout(r.Context(), spec.Timeout())
	defer cancel()

	if err := g.registry.EnsureAvailable(ctx, apiName); err != nil {
		g.logger.Error().Err(err).Str("api_name", apiName).Msg("ensure_available failed")
		status = "error"
		http.Error(w, "no worker available", http.StatusBadGateway)
		return
	}

	pool, err := g.conns.Pool(apiName)
	if err != nil {
		g.logger.Error().Err(err).Str("api_name", apiName).Msg("resolve connector pool failed")
		status = "error"
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	req := types.WorkerRequest{
		Cmd:   cmd,
		Args:  splitArgs(chi.URLParam(r, "*")),
		Vargs: r.URL.Query(),
	}

	var (
		body      []byte
		timedOut  bool
		completed = make(chan struct{})
	)

	go func() {
		pool.SendRecv(req, spec.Timeout(), func(msg []byte) {
			body = msg
			close(completed)
		}, func() {
			timedOut = true
			close(completed)
		})
	}()

	select {
	case <-completed:
	case <-ctx.Done():
		// SendRecv owns its own deadline internally and will close completed
		// shortly after; wait for it so the connector bookkeeping finishes.
		<-completed
	}

	if timedOut {
		status = "timeout"
		http.Error(w, "worker timeout", http.StatusRequestTimeout)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func splitArgs(wildcard string) []string {
	wildcard = strings.Trim(wildcard, "/")
	if wildcard == "" {
		return nil
	}
	return strings.Split(wildcard, "/")
}

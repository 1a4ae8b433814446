package httpgateway

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/connector"
	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/registry"
	"github.com/cuemby/jbapi/pkg/specstore"
)

// Gateway wires the connector pool, container registry, and spec store
// behind jbapi's HTTP surface.
type Gateway struct {
	specs    specstore.Store
	conns    *connector.Manager
	registry *registry.Registry
	logger   zerolog.Logger

	Router *chi.Mux
}

// New constructs a Gateway and registers its routes.
func New(specs specstore.Store, conns *connector.Manager, reg *registry.Registry) *Gateway {
	g := &Gateway{
		specs:    specs,
		conns:    conns,
		registry: reg,
		logger:   log.WithComponent("httpgateway"),
		Router:   chi.NewRouter(),
	}

	g.Router.Use(middleware.Recoverer)

	g.Router.Get("/healthz", g.handleHealthz)
	g.Router.Get("/readyz", g.handleReadyz)
	g.Router.Handle("/metrics", metrics.Handler())

	g.Router.HandleFunc("/api_management", g.handleManagement)
	g.Router.HandleFunc("/api/{apiName}/{cmd}", g.handleDispatch)
	g.Router.HandleFunc("/api/{apiName}/{cmd}/*", g.handleDispatch)

	return g
}

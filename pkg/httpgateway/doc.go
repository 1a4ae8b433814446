/*
Package httpgateway implements jbapi's HTTP surface: the
`/api/<api_name>/<cmd>[/<arg>…]?vkey=vval` dispatch route, the
`/api_management` info/create surface, and the `/healthz` / `/readyz` / `/metrics`
probes.

Routing is built on chi: one *chi.Mux, handlers as plain http.HandlerFunc
values closing over the collaborators they need rather than a
framework-specific controller type. Malformed dispatch URIs (fewer than two
path components after "/api/") fall through to chi's default
NotFoundHandler, which already returns 404.
*/
package httpgateway

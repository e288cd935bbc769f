// Package module wires saved searches into the API using modkit
package module

import (
	"net/http"

	modkit "cacdarchive/internal/modkit"
	"cacdarchive/internal/modkit/httpkit"
	str "cacdarchive/internal/platform/strings"
	searcheshttp "cacdarchive/internal/services/api/searches/http"
	searchesrepo "cacdarchive/internal/services/api/searches/repo"
	searchessvc "cacdarchive/internal/services/api/searches/service"
)

// Module implements the saved searches module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports any

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc searchessvc.Service
}

// New constructs the saved searches module
func New(deps modkit.Deps, limits searchessvc.Limits, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("searches"),
		modkit.WithPrefix("/searches"),
	}, opts...)...)

	svc := searchessvc.New(deps.PG, searchesrepo.NewPG(), limits)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = searchessvc.Service(svc)

	external := b.Register
	m.register = func(r httpkit.Router) {
		searcheshttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports exposes the service for cross module wiring
func (m *Module) Ports() any { return m.ports }

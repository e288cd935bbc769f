// Package module wires the hearings read API into the server using modkit
package module

import (
	"net/http"

	modkit "cacdarchive/internal/modkit"
	"cacdarchive/internal/modkit/httpkit"
	str "cacdarchive/internal/platform/strings"
	hearingshttp "cacdarchive/internal/services/api/hearings/http"
	hearingsrepo "cacdarchive/internal/services/api/hearings/repo"
	hearingssvc "cacdarchive/internal/services/api/hearings/service"
)

// Module implements the hearings module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports any

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc hearingssvc.Service
}

// Options tunes the hearings module
type Options struct {
	// DefaultLimit is the page size when the caller does not pass one
	DefaultLimit int
}

// New constructs the hearings module
func New(deps modkit.Deps, mopts Options, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("hearings"),
		modkit.WithPrefix("/hearings"),
	}, opts...)...)

	svc := hearingssvc.New(deps.PG, hearingsrepo.NewPG(), mopts.DefaultLimit)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = hearingssvc.Service(svc)

	external := b.Register
	m.register = func(r httpkit.Router) {
		hearingshttp.Register(r, m.svc)
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

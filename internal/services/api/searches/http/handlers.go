// Package http provides http transport for saved searches
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"cacdarchive/internal/modkit/httpkit"
	pnet "cacdarchive/internal/platform/net"
	"cacdarchive/internal/services/api/searches/domain"
	svc "cacdarchive/internal/services/api/searches/service"
)

// Register mounts saved search endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	httpkit.Get(r, "/", h.list)
	httpkit.PostJSON[domain.CreateInput](r, "/", h.create)
	httpkit.PatchJSON[domain.UpdateInput](r, "/{id}", h.update)
	r.Delete("/{id}", httpkit.Call(h.del))
}

type handlers struct{ svc svc.Service }

func (h *handlers) list(r *stdhttp.Request) (any, error) {
	return h.svc.ListForUser(r.Context(), pnet.UserID(r.Context()))
}

func (h *handlers) create(r *stdhttp.Request, in domain.CreateInput) (any, error) {
	out, err := h.svc.Create(r.Context(), pnet.UserID(r.Context()), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(out), nil
}

func (h *handlers) update(r *stdhttp.Request, in domain.UpdateInput) (any, error) {
	return h.svc.SetEnabled(r.Context(), pnet.UserID(r.Context()), chi.URLParam(r, "id"), in.Enabled)
}

func (h *handlers) del(r *stdhttp.Request) (any, error) {
	if err := h.svc.Delete(r.Context(), pnet.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		return nil, err
	}
	return httpkit.NoContent(), nil
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/domains/records/be/service"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/query"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

const (
	keyOrderBy        = "order_by"
	keyOrderDirection = "order_direction"
)

// OrganizationSpaces maps an organization id onto its tenant Space. Returned errors are
// expected to be problem errors already.
type OrganizationSpaces interface {
	SpaceFor(ctx context.Context, id string) (tenant.Space, error)
}

// Handler serves generic reads over the tenant catalog. The tenant comes from the request
// context, never from the URL.
type Handler struct {
	svc    service.Service
	orgs   OrganizationSpaces
	logger *zap.Logger
}

// New constructs a Handler. orgs may be nil when platform reads are not exposed.
func New(svc service.Service, orgs OrganizationSpaces, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("records service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, orgs: orgs, logger: logger}
}

// Routes registers the tenant read endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{resource}", h.List)
	r.Get("/{resource}/{id}", h.Get)
	r.Get("/{resource}/{id}/{relation}", h.Related)
}

// List implements GET /{resource}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, tenant.FromContextOrDefault(r.Context()))
}

// ListForOrganization implements GET /tenants/{tenantId}/records/{resource}
func (h *Handler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	if h.orgs == nil {
		h.writeError(w, r, problem.NotFound("Resource not found"))
		return
	}
	space, err := h.orgs.SpaceFor(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.list(w, r, space)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, space tenant.Space) {
	req, order, err := parseRequest(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.svc.List(r.Context(), space, chi.URLParam(r, "resource"), req, order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get implements GET /{resource}/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	req, _, err := parseRequest(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	row, err := h.svc.Get(r.Context(), tenant.FromContextOrDefault(r.Context()),
		chi.URLParam(r, "resource"), chi.URLParam(r, "id"), req.Fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Related implements GET /{resource}/{id}/{relation}
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	req, order, err := parseRequest(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.svc.Related(r.Context(), tenant.FromContextOrDefault(r.Context()),
		chi.URLParam(r, "resource"), chi.URLParam(r, "id"), chi.URLParam(r, "relation"), req, order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseRequest splits the explicit order parameters off before the remaining keys are read as
// the list contract, so they never turn into column filters.
func parseRequest(values url.Values) (query.Request, service.Order, error) {
	order := service.Order{
		Column:    strings.TrimSpace(values.Get(keyOrderBy)),
		Direction: query.Direction(strings.ToLower(strings.TrimSpace(values.Get(keyOrderDirection)))),
	}
	if order.Column == "" && order.Direction != "" {
		return query.Request{}, service.Order{}, problem.BadRequest("order_direction requires order_by")
	}

	rest := make(url.Values, len(values))
	for k, v := range values {
		if k == keyOrderBy || k == keyOrderDirection {
			continue
		}
		rest[k] = v
	}
	req, err := query.Parse(rest)
	if err != nil {
		return query.Request{}, service.Order{}, err
	}
	return req, order, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	details := problem.FromError(err)
	logger := platformlogging.FromRequest(r, h.logger)
	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("record read failed", zap.Error(err))
	case details.Status == http.StatusNotFound:
		logger.Info("record not found", zap.String("detail", details.Detail))
	default:
		logger.Warn("record request rejected", zap.String("detail", details.Detail))
	}
	problem.Write(w, details)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

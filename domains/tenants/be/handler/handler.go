package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

const maxBodyBytes = 1 << 20

// Handler exposes the organization registry over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes registers the registry endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{tenantId}", h.Get)
	r.Post("/{tenantId}/provision", h.Provision)
	r.Get("/{tenantId}/provision", h.ProvisionStatus)
}

type organizationResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OrgEmail         string     `json:"org_email"`
	Country          string     `json:"country"`
	OrgType          string     `json:"org_type"`
	IsSingleBranch   bool       `json:"is_single_branch"`
	EmployeeRange    string     `json:"employee_range"`
	DomainName       string     `json:"domain_name"`
	SchemaName       string     `json:"schema_name"`
	AccessURL        string     `json:"access_url,omitempty"`
	IsActive         bool       `json:"is_active"`
	SubscriptionPlan string     `json:"subscription_plan"`
	ProvisionedAt    *time.Time `json:"provisioned_at"`
	CreatedDate      time.Time  `json:"created_date"`
	UpdatedDate      time.Time  `json:"updated_date"`
}

type createRequest struct {
	Name             string `json:"name"`
	OrgEmail         string `json:"org_email"`
	Country          string `json:"country"`
	OrgType          string `json:"org_type"`
	IsSingleBranch   bool   `json:"is_single_branch"`
	EmployeeRange    string `json:"employee_range"`
	DomainName       string `json:"domain_name"`
	AccessURL        string `json:"access_url"`
	SubscriptionPlan string `json:"subscription_plan"`
}

type listResponse struct {
	Items      []organizationResponse `json:"items"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalItems int                    `json:"total_items"`
	TotalPages int                    `json:"total_pages"`
}

type provisionStatusResponse struct {
	SchemaReady       bool       `json:"schema_ready"`
	MissingTables     []string   `json:"missing_tables,omitempty"`
	LastProvisionedAt *time.Time `json:"last_provisioned_at"`
}

// List implements GET /tenants
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := buildListOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]organizationResponse, 0, len(result.Organizations))
	for _, o := range result.Organizations {
		items = append(items, toResponse(o))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Create implements POST /tenants
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.writeError(w, r, problem.BadRequest("Invalid request body: %v", err))
		return
	}

	org, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:             body.Name,
		Email:            body.OrgEmail,
		Country:          body.Country,
		Type:             body.OrgType,
		IsSingleBranch:   body.IsSingleBranch,
		EmployeeRange:    body.EmployeeRange,
		DomainName:       body.DomainName,
		AccessURL:        body.AccessURL,
		SubscriptionPlan: body.SubscriptionPlan,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s", org.ID))
	writeJSON(w, http.StatusCreated, toResponse(org))
}

// Get implements GET /tenants/{tenantId}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	org, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(org))
}

// Provision implements POST /tenants/{tenantId}/provision
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	org, err := h.svc.Provision(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(org))
}

// ProvisionStatus implements GET /tenants/{tenantId}/provision
func (h *Handler) ProvisionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status, err := h.svc.ProvisionStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provisionStatusResponse{
		SchemaReady:       status.SchemaReady,
		MissingTables:     status.MissingTables,
		LastProvisionedAt: status.LastProvisionedAt,
	})
}

// SpaceFor resolves the tenant Space of an organization id for platform-side reads. Errors are
// already classified for the HTTP boundary.
func (h *Handler) SpaceFor(ctx context.Context, rawID string) (tenant.Space, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return tenant.Space{}, problem.BadRequest("Invalid organization id: %q", rawID)
	}
	space, err := h.svc.SpaceFor(ctx, id)
	if err != nil {
		return tenant.Space{}, classify(err)
	}
	return space, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = classify(err)
	details := problem.FromError(err)
	logger := platformlogging.FromRequest(r, h.logger)
	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("tenant operation failed", zap.Error(err))
	case details.Status == http.StatusNotFound:
		logger.Info("tenant operation not found", zap.String("detail", details.Detail))
	default:
		logger.Warn("tenant operation rejected", zap.String("detail", details.Detail))
	}
	problem.Write(w, details)
}

// classify maps service errors onto the problem taxonomy.
func classify(err error) error {
	var verr *service.ValidationError
	switch {
	case problem.KindOf(err) != problem.KindInternal:
		return err
	case errors.As(err, &verr):
		return problem.BadRequest("Invalid %s: %s", verr.Field, verr.Reason)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrDisabled):
		return problem.NotFound("Organization not found")
	case errors.Is(err, service.ErrConflict):
		return problem.Conflict("%s", err.Error())
	default:
		return problem.Internal(err)
	}
}

func tenantID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "tenantId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, problem.BadRequest("Invalid organization id: %q", raw)
	}
	return id, nil
}

func buildListOptions(r *http.Request) (service.ListOptions, error) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	q := r.URL.Query()
	for key, dst := range map[string]*int{"page": &opts.Page, "page_size": &opts.PageSize} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return service.ListOptions{}, problem.BadRequest("%s must be a positive integer", key)
		}
		*dst = n
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return service.ListOptions{}, problem.BadRequest("is_active must be a boolean")
		}
		opts.IsActive = &active
	}
	return opts, nil
}

func toResponse(o service.Organization) organizationResponse {
	return organizationResponse{
		ID:               o.ID.String(),
		Name:             o.Name,
		OrgEmail:         o.Email,
		Country:          o.Country,
		OrgType:          o.Type,
		IsSingleBranch:   o.IsSingleBranch,
		EmployeeRange:    o.EmployeeRange,
		DomainName:       o.DomainName,
		SchemaName:       o.SchemaName,
		AccessURL:        o.AccessURL,
		IsActive:         o.IsActive,
		SubscriptionPlan: o.SubscriptionPlan,
		ProvisionedAt:    o.ProvisionedAt,
		CreatedDate:      o.CreatedDate,
		UpdatedDate:      o.UpdatedDate,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

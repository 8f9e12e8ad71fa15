package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/requesttrace"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("organization not found")
	ErrConflict      = errors.New("organization already exists")
	ErrDisabled      = errors.New("organization disabled")
	ErrNoProvisioner = errors.New("provisioning not configured")
)

const defaultSubscriptionPlan = "Basic"

// ValidationError reports an invalid CreateInput field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Organization is one registry entry in the platform schema. Each organization owns the tenant
// schema named SchemaName, reached through the DomainName subdomain.
type Organization struct {
	ID               uuid.UUID
	Name             string
	Email            string
	Country          string
	Type             string
	IsSingleBranch   bool
	EmployeeRange    string
	DomainName       string
	SchemaName       string
	AccessURL        string
	IsActive         bool
	SubscriptionPlan string
	ProvisionedAt    *time.Time
	CreatedDate      time.Time
	UpdatedDate      time.Time
}

// ProvisioningStatus is the live state of an organization's tenant schema.
type ProvisioningStatus struct {
	SchemaReady       bool
	MissingTables     []string
	LastProvisionedAt *time.Time
}

// CreateInput represents the request to register an organization.
type CreateInput struct {
	Name             string
	Email            string
	Country          string
	Type             string
	IsSingleBranch   bool
	EmployeeRange    string
	DomainName       string
	AccessURL        string
	SubscriptionPlan string
}

// ListResult wraps paginated organizations.
type ListResult struct {
	Organizations []Organization
	Page          int
	PageSize      int
	TotalItems    int
	TotalPages    int
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	IsActive *bool
}

// Repository abstracts persistence of the registry.
type Repository interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, o Organization) (Organization, error)
	Get(ctx context.Context, id uuid.UUID) (Organization, error)
	MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) (Organization, error)
}

// Service provides organization registry operations.
type Service struct {
	repo       Repository
	baseDomain string
	deps       ProvisioningDeps
	now        func() time.Time
}

// New constructs a Service without provisioning; Provision and ProvisionStatus return
// ErrNoProvisioner.
func New(repo Repository, baseDomain string) *Service {
	return NewWithProvisioning(repo, baseDomain, ProvisioningDeps{})
}

// NewWithProvisioning constructs a Service that creates tenant schemas for new organizations.
func NewWithProvisioning(repo Repository, baseDomain string, deps ProvisioningDeps) *Service {
	if repo == nil {
		panic("organizations repo is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		baseDomain: strings.Trim(strings.ToLower(strings.TrimSpace(baseDomain)), "."),
		deps:       deps,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List organizations with an optional active filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Create registers an organization and, when a provisioner is configured, creates its tenant
// schema. The registry row is written first so duplicates are rejected before any DDL runs; a
// provisioning failure leaves the row unprovisioned and can be retried through Provision.
func (s *Service) Create(ctx context.Context, input CreateInput) (Organization, error) {
	org, err := s.buildOrganization(input)
	if err != nil {
		return Organization{}, err
	}

	created, err := s.repo.Create(ctx, org)
	if err != nil {
		return Organization{}, err
	}

	if s.deps.DB == nil {
		return created, nil
	}
	return s.provision(ctx, created)
}

// Get returns an organization by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	return s.repo.Get(ctx, id)
}

// Provision (re)creates the organization's tenant schema and every tenant table. Safe to
// repeat.
func (s *Service) Provision(ctx context.Context, id uuid.UUID) (Organization, error) {
	if s.deps.DB == nil {
		return Organization{}, ErrNoProvisioner
	}
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return Organization{}, err
	}
	return s.provision(ctx, org)
}

// ProvisionStatus performs a live check of the tenant schema and records the provisioning time
// the first time the schema is found complete.
func (s *Service) ProvisionStatus(ctx context.Context, id uuid.UUID) (ProvisioningStatus, error) {
	if s.deps.DB == nil {
		return ProvisioningStatus{}, ErrNoProvisioner
	}
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return ProvisioningStatus{}, err
	}

	res, err := s.deps.DB.Check(ctx, DBProvisionRequest{OrganizationID: org.ID, SchemaName: org.SchemaName})
	if err != nil {
		return ProvisioningStatus{}, fmt.Errorf("check schema %s: %w", org.SchemaName, err)
	}

	status := ProvisioningStatus{
		SchemaReady:       res.Ready,
		MissingTables:     res.MissingTables,
		LastProvisionedAt: org.ProvisionedAt,
	}
	if res.Ready && org.ProvisionedAt == nil {
		updated, err := s.repo.MarkProvisioned(ctx, org.ID, s.now())
		if err != nil {
			return ProvisioningStatus{}, err
		}
		status.LastProvisionedAt = updated.ProvisionedAt
		s.remember(org.SchemaName)
	}
	return status, nil
}

// SpaceFor returns the tenant Space of an active organization, for platform-side reads of one
// organization's data.
func (s *Service) SpaceFor(ctx context.Context, id uuid.UUID) (tenant.Space, error) {
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Space{}, err
	}
	if !org.IsActive {
		return tenant.Space{}, ErrDisabled
	}
	return tenant.Space{Key: org.DomainName, SchemaName: org.SchemaName}, nil
}

func (s *Service) provision(ctx context.Context, org Organization) (Organization, error) {
	logger := platformlogging.FromContextOr(ctx, s.deps.Logger)
	audit := requesttrace.FromContextOrAnonymous(ctx)

	req := DBProvisionRequest{OrganizationID: org.ID, SchemaName: org.SchemaName}
	if _, err := s.deps.DB.Ensure(ctx, req); err != nil {
		s.forget(org.SchemaName)
		return Organization{}, fmt.Errorf("provision schema %s: %w", org.SchemaName, err)
	}

	updated, err := s.repo.MarkProvisioned(ctx, org.ID, s.now())
	if err != nil {
		return Organization{}, err
	}
	s.remember(org.SchemaName)

	logger.Info("tenant provisioned",
		zap.String("organization_id", org.ID.String()),
		zap.String("schema", org.SchemaName),
		zap.String("actor_kind", string(audit.ActorKind)),
	)
	return updated, nil
}

func (s *Service) remember(schema string) {
	if s.deps.Directory != nil {
		s.deps.Directory.Remember(schema)
	}
}

func (s *Service) forget(schema string) {
	if s.deps.Directory != nil {
		s.deps.Directory.Forget(schema)
	}
}

func (s *Service) buildOrganization(input CreateInput) (Organization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Organization{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Organization{}, &ValidationError{Field: "org_email", Reason: "must be a valid email address"}
	}
	country := strings.TrimSpace(input.Country)
	if country == "" {
		return Organization{}, &ValidationError{Field: "country", Reason: "is required"}
	}
	if !slices.Contains(catalog.OrganizationTypes, input.Type) {
		return Organization{}, &ValidationError{
			Field:  "org_type",
			Reason: "must be one of " + strings.Join(catalog.OrganizationTypes, ", "),
		}
	}
	employeeRange := strings.TrimSpace(input.EmployeeRange)
	if employeeRange == "" {
		return Organization{}, &ValidationError{Field: "employee_range", Reason: "is required"}
	}

	domain := strings.ToLower(strings.TrimSpace(input.DomainName))
	if !tenant.ValidHostLabel(domain) {
		return Organization{}, &ValidationError{Field: "domain_name", Reason: "must be a lowercase DNS label"}
	}
	schema := tenant.ToSnake(domain)
	if domain == tenant.DefaultKey || tenant.ValidateSchemaName(schema) != nil {
		return Organization{}, &ValidationError{Field: "domain_name", Reason: fmt.Sprintf("%q cannot be used as a tenant", domain)}
	}

	accessURL := strings.TrimSpace(input.AccessURL)
	if accessURL == "" && s.baseDomain != "" {
		accessURL = "https://" + domain + "." + s.baseDomain
	}
	plan := strings.TrimSpace(input.SubscriptionPlan)
	if plan == "" {
		plan = defaultSubscriptionPlan
	}

	now := s.now()
	return Organization{
		ID:               uuid.New(),
		Name:             name,
		Email:            email,
		Country:          country,
		Type:             input.Type,
		IsSingleBranch:   input.IsSingleBranch,
		EmployeeRange:    employeeRange,
		DomainName:       domain,
		SchemaName:       schema,
		AccessURL:        accessURL,
		IsActive:         true,
		SubscriptionPlan: plan,
		CreatedDate:      now,
		UpdatedDate:      now,
	}, nil
}

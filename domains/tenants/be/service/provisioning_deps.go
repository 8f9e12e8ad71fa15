package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DBProvisioner creates and inspects the tenant schema of one organization.
// Ensure is mutating/idempotent, Check is read-only.
type DBProvisioner interface {
	Ensure(ctx context.Context, req DBProvisionRequest) (DBProvisionResult, error)
	Check(ctx context.Context, req DBProvisionRequest) (DBProvisionResult, error)
}

type DBProvisionRequest struct {
	OrganizationID uuid.UUID
	SchemaName     string
}

type DBProvisionResult struct {
	Ready         bool
	MissingTables []string
}

// SchemaDirectory is told about schemas as soon as they exist so the tenant middleware stops
// answering 404 for them, and forgets them when provisioning fails so requests re-check.
type SchemaDirectory interface {
	Remember(schema string)
	Forget(schema string)
}

type ProvisioningDeps struct {
	DB        DBProvisioner
	Directory SchemaDirectory
	Logger    *zap.Logger
}

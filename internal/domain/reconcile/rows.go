package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReconciledAdRow is one ad's reconciled numbers for one day, or a synthetic row
// standing in for one unmatched order
type ReconciledAdRow struct {
	TenantID     uuid.UUID
	Date         time.Time
	AdID         string
	TeamID       *uuid.UUID
	AccountID    *uuid.UUID
	CampaignID   string
	CampaignName string
	AdName       string
	IsSynthetic  bool
	Metrics
	// OrderRefs are the sorted "shopId:orderId" references of the matched orders
	OrderRefs []string
}

// ReconciledCampaignRow is the roll-up of a day's ad rows sharing one campaign
type ReconciledCampaignRow struct {
	TenantID     uuid.UUID
	Date         time.Time
	CampaignID   string
	TeamID       *uuid.UUID
	CampaignName string
	// IsUnmatched marks groups keyed by an ad id because the rows had no campaign
	IsUnmatched bool
	AdCount     int
	Metrics
}

// Repository stores reconciled rows.
// Replace* upserts rows by natural key and deletes the day's rows in scope that
// are no longer produced, all in one transaction. A nil teamID scopes the whole tenant.
type Repository interface {
	ReplaceAdRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID, rows []ReconciledAdRow) error
	ListAdRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]ReconciledAdRow, error)
	ReplaceCampaignRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID, rows []ReconciledCampaignRow) error
	ListCampaignRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]ReconciledCampaignRow, error)
}

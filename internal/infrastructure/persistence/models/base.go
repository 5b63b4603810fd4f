package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adrecon/backend/internal/domain/shared"
)

// BaseModel holds the id and timestamp columns of entity tables
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns an ID to rows inserted without one
func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain returns the domain identity of the row
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// FromDomainBaseEntity copies a domain identity into the row
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID, m.CreatedAt, m.UpdatedAt = e.ID, e.CreatedAt, e.UpdatedAt
}

// AllModels returns every engine table model for AutoMigrate. The SQL migrations
// are authoritative in production; AutoMigrate only backs SQLite tests.
func AllModels() []any {
	return []any{
		&WorkflowModel{},
		&ExecutionModel{},
		&AdAccountModel{},
		&ShopModel{},
		&CredentialModel{},
		&RawAdInsightModel{},
		&RawOrderModel{},
		&ReconciledAdRowModel{},
		&ReconciledCampaignRowModel{},
	}
}

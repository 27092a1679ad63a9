package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only diagnostics record. Correlation failures,
// rejected non-monotonic transitions and applied payments all land here for
// manual review.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID   *snowflake.ID     `json:"tenant_id" gorm:"index"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	Record(ctx context.Context, tenantID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
}

var ErrInvalidAction = errors.New("invalid_action")

package model

import "time"

// AuditLog 审计日志表 — 对应 audit_logs（只写，本引擎视角 fire-and-forget）
type AuditLog struct {
	AuditID    string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"audit_id"`
	UserID     string    `gorm:"type:uuid;not null"                             json:"user_id"`
	Action     string    `gorm:"type:varchar(20);not null"                      json:"action"`
	EntityType string    `gorm:"type:varchar(50);not null"                      json:"entity_type"`
	EntityID   string    `gorm:"type:uuid;not null"                             json:"entity_id"`
	Changes    string    `gorm:"type:text"                                      json:"changes,omitempty"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string { return "audit_logs" }

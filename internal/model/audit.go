package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate = "create"
	AuditActionRead   = "read"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionLogin  = "login"
	AuditActionLogout = "logout"

	// Entity types
	AuditEntityUser    = "user"
	AuditEntityPatient = "patient"
	AuditEntityReport  = "report"
)

// AuditFilter represents audit log search parameters
type AuditFilter struct {
	Pagination
	EntityType string `form:"entity_type" binding:"omitempty,oneof=user patient report"`
	EntityID   string `form:"entity_id" binding:"omitempty,uuid"`
	UserID     string `form:"user_id" binding:"omitempty,uuid"`
	Action     string `form:"action" binding:"omitempty,oneof=create read update delete login logout"`
}

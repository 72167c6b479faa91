// Package domain defines the persistence models for leads, ownership
// transfers, notifications, and due items. These types are mapped with GORM
// and form the core data layer of the lead brokerage backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Transfer request lifecycle states. A request is created pending and settles
// exactly once into accepted or rejected.
const (
	TransferPending  = "pending"
	TransferAccepted = "accepted"
	TransferRejected = "rejected"
)

// Due item kinds and lifecycle states.
const (
	DueKindReminder = "reminder"
	DueKindCallback = "callback"

	DuePending   = "pending"
	DueTriggered = "triggered"
	DueDone      = "done"
)

// Principal roles recognized at connection time.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Principal represents an agent (or manager/admin) that can own leads,
// exchange transfer requests, and receive notifications.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name.
//   - Role: one of agent|manager|admin (enforced by DB constraint).
//   - Active: inactive principals cannot be targeted by a transfer.
type Principal struct {
	ID        string         `json:"id"     gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"   gorm:"type:varchar(128);not null"`
	Role      string         `json:"role"   gorm:"type:varchar(16);not null;check:role IN ('agent','manager','admin')"`
	Active    bool           `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"      gorm:"index"`
}

// TableName returns the database table name for Principal.
func (Principal) TableName() string { return "principals" }

// Lead represents a prospective client owned by exactly one principal at a
// time. OwnerID is the ownership pointer: it is mutated only by the transfer
// coordinator, atomically with the accept that justifies the change.
type Lead struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	OwnerID   string         `json:"owner_id" gorm:"type:char(36);not null;index:idx_owner_leads"`
	Name      string         `json:"name"     gorm:"type:varchar(255);not null"`
	Phone     string         `json:"phone"    gorm:"type:varchar(32)"`
	Status    string         `json:"status"   gorm:"type:varchar(32);not null;default:'new'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

// TableName returns the database table name for Lead.
func (Lead) TableName() string { return "leads" }

// TransferRequest records one proposed ownership handoff of a lead from one
// principal to another. At most one request per lead is pending at a time;
// accepting one cascades every sibling pending request to rejected.
//
// Status transitions are performed exclusively through conditional writes
// keyed on the current status value, so two racing deciders resolve to
// exactly one winner.
type TransferRequest struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	LeadID    string         `json:"lead_id"    gorm:"type:char(36);not null;index:idx_lead_transfers,priority:1"`
	FromID    string         `json:"from_id"    gorm:"type:char(36);not null;index"`
	ToID      string         `json:"to_id"      gorm:"type:char(36);not null;index"`
	Status    string         `json:"status"     gorm:"type:varchar(16);not null;default:'pending';index:idx_lead_transfers,priority:2;check:status IN ('pending','accepted','rejected')"`
	Note      string         `json:"note,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Lead is the subject of the transfer. Requests are cascade-deleted
	// if the lead is removed.
	Lead Lead `json:"-" gorm:"foreignKey:LeadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TransferRequest.
func (TransferRequest) TableName() string { return "transfer_requests" }

// Notification is the durable record of one event delivered (best-effort) to
// one recipient. The persisted row, not the live push, is the source of truth:
// offline recipients recover it on reconnect.
//
// IdempotencyKey, when non-nil, dedupes logically repeated dispatches for the
// same recipient via a composite unique index. It is a first-class indexed
// column rather than a value matched inside the payload.
type Notification struct {
	ID             string         `json:"id"           gorm:"type:char(36);primaryKey"`
	RecipientID    string         `json:"recipient_id" gorm:"type:char(36);not null;index:idx_recipient_notifs,priority:1;uniqueIndex:ux_recipient_idem,priority:1"`
	Kind           string         `json:"kind"         gorm:"type:varchar(32);not null"`
	Title          string         `json:"title"        gorm:"type:varchar(255);not null"`
	Message        string         `json:"message"      gorm:"type:text"`
	Priority       string         `json:"priority"     gorm:"type:varchar(16);not null;default:'normal'"`
	Payload        string         `json:"payload,omitempty" gorm:"type:text"`
	IdempotencyKey *string        `json:"-"            gorm:"type:varchar(128);uniqueIndex:ux_recipient_idem,priority:2"`
	Read           bool           `json:"read"         gorm:"not null;default:false"`
	CreatedAt      time.Time      `json:"created_at"   gorm:"index:idx_recipient_notifs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// DueItem is a scheduled reminder or callback attached to a lead. Reminders
// carry their own pending→triggered state transitioned by the sweeper via a
// conditional write; callbacks derive trigger dedupe from the existence of a
// notification keyed by (id, dueAt), so a reschedule to a new DueAt is a
// logically new due instance.
type DueItem struct {
	ID          string         `json:"id"       gorm:"type:char(36);primaryKey"`
	OwnerID     string         `json:"owner_id" gorm:"type:char(36);not null;index"`
	LeadID      string         `json:"lead_id"  gorm:"type:char(36);not null;index"`
	Kind        string         `json:"kind"     gorm:"type:varchar(16);not null;check:kind IN ('reminder','callback')"`
	Note        string         `json:"note"     gorm:"type:varchar(512)"`
	DueAt       time.Time      `json:"due_at"   gorm:"not null;index"`
	Status      string         `json:"status"   gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','triggered','done')"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"        gorm:"index"`

	// Lead the item belongs to; due items die with their lead.
	Lead Lead `json:"-" gorm:"foreignKey:LeadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DueItem.
func (DueItem) TableName() string { return "due_items" }

package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Principal{}).TableName() != "principals" {
		t.Fatalf("Principal.TableName() = %q; want %q", (Principal{}).TableName(), "principals")
	}
	if (Lead{}).TableName() != "leads" {
		t.Fatalf("Lead.TableName() = %q; want %q", (Lead{}).TableName(), "leads")
	}
	if (TransferRequest{}).TableName() != "transfer_requests" {
		t.Fatalf("TransferRequest.TableName() = %q; want %q", (TransferRequest{}).TableName(), "transfer_requests")
	}
	if (Notification{}).TableName() != "notifications" {
		t.Fatalf("Notification.TableName() = %q; want %q", (Notification{}).TableName(), "notifications")
	}
	if (DueItem{}).TableName() != "due_items" {
		t.Fatalf("DueItem.TableName() = %q; want %q", (DueItem{}).TableName(), "due_items")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Principal{}, &Lead{}, &TransferRequest{}, &Notification{}, &DueItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	// Tables exist
	for _, tbl := range []any{&Principal{}, &Lead{}, &TransferRequest{}, &Notification{}, &DueItem{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Indexes from tags exist
	if !m.HasIndex(&Lead{}, "idx_owner_leads") {
		t.Fatalf("expected index idx_owner_leads on leads")
	}
	if !m.HasIndex(&TransferRequest{}, "idx_lead_transfers") {
		t.Fatalf("expected index idx_lead_transfers on transfer_requests")
	}
	if !m.HasIndex(&Notification{}, "idx_recipient_notifs") {
		t.Fatalf("expected index idx_recipient_notifs on notifications")
	}
	if !m.HasIndex(&Notification{}, "ux_recipient_idem") {
		t.Fatalf("expected unique index ux_recipient_idem on notifications")
	}

	// Seed a principal, a lead, one transfer request and one due item
	now := time.Now().UTC()

	p := &Principal{ID: "p1", Name: "Alice", Role: RoleAgent, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert principal: %v", err)
	}

	l := &Lead{ID: "l1", OwnerID: "p1", Name: "Prospect", Status: "new", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("insert lead: %v", err)
	}

	tr := &TransferRequest{ID: "t1", LeadID: "l1", FromID: "p1", ToID: "p2", Status: TransferPending, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(tr).Error; err != nil {
		t.Fatalf("insert transfer: %v", err)
	}

	d := &DueItem{ID: "d1", OwnerID: "p1", LeadID: "l1", Kind: DueKindReminder, DueAt: now.Add(time.Hour), Status: DuePending, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("insert due item: %v", err)
	}

	// CASCADE: deleting a lead should delete its transfer requests and due items
	if err := db.Unscoped().Delete(&Lead{}, "id = ?", "l1").Error; err != nil {
		t.Fatalf("delete lead: %v", err)
	}
	var cnt int64
	if err := db.Model(&TransferRequest{}).Where("lead_id = ?", "l1").Count(&cnt).Error; err != nil {
		t.Fatalf("count transfers after lead delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected transfer requests to cascade-delete with their lead, got count=%d", cnt)
	}
	if err := db.Model(&DueItem{}).Where("lead_id = ?", "l1").Count(&cnt).Error; err != nil {
		t.Fatalf("count due items after lead delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected due items to cascade-delete with their lead, got count=%d", cnt)
	}
}

func TestConstraints_RoleAndStatusChecks(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Principal{}, &Lead{}, &TransferRequest{}, &DueItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	now := time.Now().UTC()

	// role outside agent|manager|admin is rejected by the check constraint
	bad := &Principal{ID: "px", Name: "X", Role: "intern", Active: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for role=intern")
	}

	// due item kind outside reminder|callback is rejected
	p := &Principal{ID: "p1", Name: "A", Role: RoleAgent, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert principal: %v", err)
	}
	l := &Lead{ID: "l1", OwnerID: "p1", Name: "L", Status: "new", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	badDue := &DueItem{ID: "dx", OwnerID: "p1", LeadID: "l1", Kind: "meeting", DueAt: now, Status: DuePending, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(badDue).Error; err == nil {
		t.Fatalf("expected CHECK violation for kind=meeting")
	}

	// transfer status outside the lifecycle set is rejected
	badTr := &TransferRequest{ID: "tx", LeadID: "l1", FromID: "p1", ToID: "p2", Status: "paused", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(badTr).Error; err == nil {
		t.Fatalf("expected CHECK violation for status=paused")
	}
}

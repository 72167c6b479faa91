package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/repo"
)

func newDueSvc(t *testing.T) (*DueItemService, string, string) {
	t.Helper()
	db := newSvcDB(t)
	ctx := context.Background()

	owner, err := repo.CreatePrincipal(ctx, db, "Alice", domain.RoleAgent)
	if err != nil {
		t.Fatalf("seed principal: %v", err)
	}
	lead, err := repo.CreateLead(ctx, db, owner.ID, "Acme Corp", "")
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return NewDueItemService(db), owner.ID, lead.ID
}

func TestDueCreate_Validation(t *testing.T) {
	s, owner, lead := newDueSvc(t)
	ctx := context.Background()
	due := time.Now().UTC().Add(time.Hour)

	if _, err := s.Create(ctx, owner, lead, "meeting", "", due); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad kind: expected ErrValidation, got %v", err)
	}
	if _, err := s.Create(ctx, owner, lead, domain.DueKindReminder, "", time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero dueAt: expected ErrValidation, got %v", err)
	}
	if _, err := s.Create(ctx, owner, "missing-lead", domain.DueKindReminder, "", due); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing lead: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Create(ctx, "someone-else", lead, domain.DueKindReminder, "", due); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign lead: expected ErrNotFound, got %v", err)
	}
}

func TestDueCreate_And_List(t *testing.T) {
	s, owner, lead := newDueSvc(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	d1, err := s.Create(ctx, owner, lead, domain.DueKindReminder, "  follow up  ", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if d1.Note != "follow up" {
		t.Fatalf("note not trimmed: %q", d1.Note)
	}
	if d1.Status != domain.DuePending {
		t.Fatalf("status = %q; want pending", d1.Status)
	}
	if _, err := s.Create(ctx, owner, lead, domain.DueKindCallback, "", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("create callback: %v", err)
	}

	all, err := s.List(ctx, owner, nil, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("List = %d items, %v; want 2", len(all), err)
	}

	// Window is [from, to): the upper bound is exclusive.
	from := base.Add(time.Hour)
	to := base.Add(3 * time.Hour)
	windowed, err := s.List(ctx, owner, &from, &to)
	if err != nil {
		t.Fatalf("List windowed: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != d1.ID {
		t.Fatalf("windowed = %+v; want only the reminder", windowed)
	}
}

func TestDueComplete_RepeatIsNotFound(t *testing.T) {
	s, owner, lead := newDueSvc(t)
	ctx := context.Background()

	d, err := s.Create(ctx, owner, lead, domain.DueKindReminder, "", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Complete(ctx, owner, d.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := s.Complete(ctx, owner, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("repeat complete: expected ErrNotFound, got %v", err)
	}
	if err := s.Complete(ctx, "someone-else", d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign complete: expected ErrNotFound, got %v", err)
	}
}

func TestDueReschedule(t *testing.T) {
	s, owner, lead := newDueSvc(t)
	ctx := context.Background()

	d, err := s.Create(ctx, owner, lead, domain.DueKindReminder, "", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Reschedule(ctx, owner, d.ID, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero dueAt: expected ErrValidation, got %v", err)
	}

	next := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	if err := s.Reschedule(ctx, owner, d.ID, next); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got, err := repo.GetDueItem(ctx, s.DB, d.ID, owner)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.DueAt.Equal(next) || got.Status != domain.DuePending {
		t.Fatalf("after reschedule: dueAt=%v status=%q", got.DueAt, got.Status)
	}

	// Done items stay done.
	if err := s.Complete(ctx, owner, d.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := s.Reschedule(ctx, owner, d.ID, next.Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reschedule done item: expected ErrNotFound, got %v", err)
	}
}

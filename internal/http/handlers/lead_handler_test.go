package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
)

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:lead_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.Principal{}, &domain.Lead{}, &domain.TransferRequest{},
		&domain.Notification{}, &domain.DueItem{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- tiny stubs for the other services ----------

type stubTransferSvc struct {
	propose func(context.Context, string, string, string, string) (*domain.TransferRequest, error)
	accept  func(context.Context, string, string) (*domain.TransferRequest, error)
	reject  func(context.Context, string, string) (*domain.TransferRequest, error)
	inbox   func(context.Context, string) ([]domain.TransferRequest, error)
	outbox  func(context.Context, string) ([]domain.TransferRequest, error)
}

func (s stubTransferSvc) Propose(ctx context.Context, leadID, fromID, toID, note string) (*domain.TransferRequest, error) {
	if s.propose != nil {
		return s.propose(ctx, leadID, fromID, toID, note)
	}
	return &domain.TransferRequest{ID: "t1", LeadID: leadID, FromID: fromID, ToID: toID, Note: note}, nil
}

func (s stubTransferSvc) Accept(ctx context.Context, id, by string) (*domain.TransferRequest, error) {
	if s.accept != nil {
		return s.accept(ctx, id, by)
	}
	return &domain.TransferRequest{ID: id, ToID: by, Status: domain.TransferAccepted}, nil
}

func (s stubTransferSvc) Reject(ctx context.Context, id, by string) (*domain.TransferRequest, error) {
	if s.reject != nil {
		return s.reject(ctx, id, by)
	}
	return &domain.TransferRequest{ID: id, ToID: by, Status: domain.TransferRejected}, nil
}

func (s stubTransferSvc) Inbox(ctx context.Context, pid string) ([]domain.TransferRequest, error) {
	if s.inbox != nil {
		return s.inbox(ctx, pid)
	}
	return nil, nil
}

func (s stubTransferSvc) Outbox(ctx context.Context, pid string) ([]domain.TransferRequest, error) {
	if s.outbox != nil {
		return s.outbox(ctx, pid)
	}
	return nil, nil
}

type stubNotifSvc struct {
	listPage    func(context.Context, string, int, int) ([]domain.Notification, int64, error)
	history     func(context.Context, string, int) ([]domain.Notification, error)
	unread      func(context.Context, string) (int64, error)
	markRead    func(context.Context, string, string) error
	markAllRead func(context.Context, string) (int64, error)
}

func (s stubNotifSvc) ListPage(ctx context.Context, pid string, p, ps int) ([]domain.Notification, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, pid, p, ps)
	}
	return nil, 0, nil
}

func (s stubNotifSvc) History(ctx context.Context, pid string, n int) ([]domain.Notification, error) {
	if s.history != nil {
		return s.history(ctx, pid, n)
	}
	return nil, nil
}

func (s stubNotifSvc) UnreadCount(ctx context.Context, pid string) (int64, error) {
	if s.unread != nil {
		return s.unread(ctx, pid)
	}
	return 0, nil
}

func (s stubNotifSvc) MarkRead(ctx context.Context, pid, id string) error {
	if s.markRead != nil {
		return s.markRead(ctx, pid, id)
	}
	return nil
}

func (s stubNotifSvc) MarkAllRead(ctx context.Context, pid string) (int64, error) {
	if s.markAllRead != nil {
		return s.markAllRead(ctx, pid)
	}
	return 0, nil
}

type stubDueSvc struct {
	create     func(context.Context, string, string, string, string, time.Time) (*domain.DueItem, error)
	list       func(context.Context, string, *time.Time, *time.Time) ([]domain.DueItem, error)
	complete   func(context.Context, string, string) error
	reschedule func(context.Context, string, string, time.Time) error
}

func (s stubDueSvc) Create(ctx context.Context, owner, lead, kind, note string, dueAt time.Time) (*domain.DueItem, error) {
	if s.create != nil {
		return s.create(ctx, owner, lead, kind, note, dueAt)
	}
	return &domain.DueItem{ID: "d1", OwnerID: owner, LeadID: lead, Kind: kind, DueAt: dueAt}, nil
}

func (s stubDueSvc) List(ctx context.Context, owner string, from, to *time.Time) ([]domain.DueItem, error) {
	if s.list != nil {
		return s.list(ctx, owner, from, to)
	}
	return nil, nil
}

func (s stubDueSvc) Complete(ctx context.Context, owner, id string) error {
	if s.complete != nil {
		return s.complete(ctx, owner, id)
	}
	return nil
}

func (s stubDueSvc) Reschedule(ctx context.Context, owner, id string, dueAt time.Time) error {
	if s.reschedule != nil {
		return s.reschedule(ctx, owner, id, dueAt)
	}
	return nil
}

// Flexible lead service stub.
type stubLeadSvc struct {
	create       func(context.Context, string, string, string) (*domain.Lead, error)
	get          func(context.Context, string, string) (*domain.Lead, error)
	listPage     func(context.Context, string, int, int) ([]domain.Lead, int64, error)
	updateStatus func(context.Context, string, string, string) error
}

func (s stubLeadSvc) Create(ctx context.Context, owner, name, phone string) (*domain.Lead, error) {
	if s.create != nil {
		return s.create(ctx, owner, name, phone)
	}
	return &domain.Lead{ID: "l1", OwnerID: owner, Name: name, Phone: phone}, nil
}

func (s stubLeadSvc) Get(ctx context.Context, caller, id string) (*domain.Lead, error) {
	if s.get != nil {
		return s.get(ctx, caller, id)
	}
	return &domain.Lead{ID: id, OwnerID: caller}, nil
}

func (s stubLeadSvc) ListPage(ctx context.Context, owner string, p, ps int) ([]domain.Lead, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, owner, p, ps)
	}
	return nil, 0, nil
}

func (s stubLeadSvc) UpdateStatus(ctx context.Context, owner, id, status string) error {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, owner, id, status)
	}
	return nil
}

func stubHandlers(lead LeadService) *Handlers {
	return New(lead, stubTransferSvc{}, stubNotifSvc{}, stubDueSvc{}, nil, 0)
}

// ---------- helpers-only tests ----------

func Test_principalID_and_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// principalID helper
	rc := gin.CreateTestContextOnly(httptest.NewRecorder(), gin.New())
	if got := principalID(rc); got != "demo-user" {
		t.Fatalf("fallback principalID = %q", got)
	}
	rc.Set("principalID", "p1")
	if got := principalID(rc); got != "p1" {
		t.Fatalf("ctx principalID = %q", got)
	}
	rc.Set("principalID", 123) // wrong type → fallback
	if got := principalID(rc); got != "demo-user" {
		t.Fatalf("wrong-type fallback principalID = %q", got)
	}

	// header fallback
	cH, _ := gin.CreateTestContext(httptest.NewRecorder())
	reqH := httptest.NewRequest("GET", "/", nil)
	reqH.Header.Set("X-User-ID", "p-123")
	cH.Request = reqH
	if got := principalID(cH); got != "p-123" {
		t.Fatalf("header fallback principalID = %q", got)
	}

	// clampPagination bounds
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("GET", "/?page=-5&page_size=9999", nil)
	c.Request = req
	p, ps := clampPagination(c)
	if p != 1 || ps != 100 {
		t.Fatalf("clamp bounds got p=%d ps=%d", p, ps)
	}
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	req = httptest.NewRequest("GET", "/?page=&page_size=0", nil)
	c.Request = req
	p, ps = clampPagination(c)
	if p != 1 || ps != 1 {
		t.Fatalf("clamp defaults got p=%d ps=%d", p, ps)
	}
}

// ---------- CreateLead ----------

func TestCreateLead_BadJSON_Success_Internal(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Bad JSON -> 400
	{
		h := stubHandlers(stubLeadSvc{})
		r := gin.New()
		r.POST("/leads", h.CreateLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewBufferString("{bad"))
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("bad json -> %d", w.Code)
		}
	}

	// Success -> 201, name trimmed
	{
		db := newHandlerDB(t)
		svc := services.NewLeadService(db, nil)
		h := stubHandlers(svc)
		r := gin.New()
		r.POST("/leads", h.CreateLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewBufferString(`{"name":"  Maria P.  ","phone":"555-0100"}`))
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
		}
		var out domain.Lead
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.OwnerID != "p1" || out.Name != "Maria P." {
			t.Fatalf("unexpected lead: %#v", out)
		}
	}

	// Internal error -> 500
	{
		errSvc := stubLeadSvc{
			create: func(ctx context.Context, o, n, p string) (*domain.Lead, error) {
				return nil, gorm.ErrInvalidField
			},
		}
		h := stubHandlers(errSvc)
		r := gin.New()
		r.POST("/leads", h.CreateLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewBufferString(`{"name":"X"}`))
		req.Header.Set("X-User-ID", "pX")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("internal -> %d", w.Code)
		}
	}
}

// ---------- ListLeads ----------

func TestListLeads_ETag304_and_SuccessPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	svc := services.NewLeadService(db, nil)
	h := stubHandlers(svc)

	// Seed leads for p1
	now := time.Now().UTC()
	l1 := &domain.Lead{ID: uuid.NewString(), OwnerID: "p1", Name: "A", Status: "new", CreatedAt: now, UpdatedAt: now}
	l2 := &domain.Lead{ID: uuid.NewString(), OwnerID: "p1", Name: "B", Status: "new", CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second)}
	if err := db.Create(l1).Error; err != nil {
		t.Fatalf("seed l1: %v", err)
	}
	if err := db.Create(l2).Error; err != nil {
		t.Fatalf("seed l2: %v", err)
	}

	r := gin.New()
	r.GET("/leads", h.ListLeads)

	// Compute expected ETag
	count, maxTS, err := repo.LeadsStats(context.Background(), db, "p1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"leads:%s:%d:%d"`, "p1", count, ts)

	// 304 path
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.Header.Set("X-User-ID", "p1")
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag 304 -> %d", w.Code)
	}

	// 200 success with pagination
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/leads?page=1&page_size=1", nil)
	req.Header.Set("X-User-ID", "p1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list 200 -> %d body=%s", w.Code, w.Body.String())
	}
	var out ListLeadsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Page != 1 || out.Pagination.PageSize != 1 || out.Pagination.Total != count {
		t.Fatalf("pagination mismatch: %#v", out.Pagination)
	}
	if out.Pagination.TotalPages != 2 || out.Pagination.HasNext != true {
		t.Fatalf("pages/hasnext mismatch: %#v", out.Pagination)
	}
	if len(out.Leads) != 1 {
		t.Fatalf("expected 1 lead on page 1")
	}
}

func TestListLeads_SkipETagPrecheck_And_ListError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Stub service (not *services.LeadService) so db==nil → ETag pre-check skipped.
	svc := stubLeadSvc{
		listPage: func(ctx context.Context, o string, p, ps int) ([]domain.Lead, int64, error) {
			return nil, 0, gorm.ErrInvalidField
		},
	}
	h := stubHandlers(svc)

	r := gin.New()
	r.GET("/leads", h.ListLeads)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leads?page=1&page_size=5", nil)
	req.Header.Set("X-User-ID", "pX")
	req.Header.Set("If-None-Match", `W/"nope"`)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on list error; got %d body=%s", w.Code, w.Body.String())
	}
}

// ---------- GetLead ----------

func TestGetLead_UUID_NotFound_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// bad UUID -> 400
	{
		h := stubHandlers(stubLeadSvc{})
		r := gin.New()
		r.GET("/leads/:id", h.GetLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/leads/not-uuid", nil)
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("uuid 400 -> %d", w.Code)
		}
	}

	// not found -> 404
	{
		errSvc := stubLeadSvc{
			get: func(context.Context, string, string) (*domain.Lead, error) {
				return nil, services.ErrNotFound
			},
		}
		h := stubHandlers(errSvc)
		r := gin.New()
		r.GET("/leads/:id", h.GetLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/leads/"+uuid.NewString(), nil)
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("not found -> %d", w.Code)
		}
	}

	// success -> 200
	{
		leadID := uuid.NewString()
		h := stubHandlers(stubLeadSvc{})
		r := gin.New()
		r.GET("/leads/:id", h.GetLead)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/leads/"+leadID, nil)
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("200 -> %d body=%s", w.Code, w.Body.String())
		}
		var out domain.Lead
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.ID != leadID {
			t.Fatalf("lead id = %q", out.ID)
		}
	}
}

// ---------- UpdateLeadStatus ----------

func TestUpdateLeadStatus_Binding_Success_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// bad UUID -> 400
	{
		h := stubHandlers(stubLeadSvc{})
		r := gin.New()
		r.PUT("/leads/:id/status", h.UpdateLeadStatus)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/leads/not-uuid/status", bytes.NewBufferString(`{"status":"x"}`))
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("uuid 400 -> %d", w.Code)
		}
	}

	// blank status -> 400
	{
		h := stubHandlers(stubLeadSvc{})
		r := gin.New()
		r.PUT("/leads/:id/status", h.UpdateLeadStatus)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/leads/"+uuid.NewString()+"/status", bytes.NewBufferString(`{"status":"   "}`))
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("blank status 400 -> %d", w.Code)
		}
	}

	// success 204, args forwarded
	{
		var got struct{ pid, id, status string }
		okSvc := stubLeadSvc{
			updateStatus: func(ctx context.Context, o, id, s string) error {
				got.pid, got.id, got.status = o, id, s
				return nil
			},
		}
		h := stubHandlers(okSvc)
		r := gin.New()
		r.PUT("/leads/:id/status", h.UpdateLeadStatus)

		leadID := uuid.NewString()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/leads/"+leadID+"/status", bytes.NewBufferString(`{"status":"contacted"}`))
		req.Header.Set("X-User-ID", "P-9")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("204 -> %d", w.Code)
		}
		if got.pid != "P-9" || got.id != leadID || got.status != "contacted" {
			t.Fatalf("service args mismatch: %+v", got)
		}
	}

	// not found -> 404
	{
		errSvc := stubLeadSvc{
			updateStatus: func(context.Context, string, string, string) error { return services.ErrNotFound },
		}
		h := stubHandlers(errSvc)
		r := gin.New()
		r.PUT("/leads/:id/status", h.UpdateLeadStatus)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/leads/"+uuid.NewString()+"/status", bytes.NewBufferString(`{"status":"X"}`))
		req.Header.Set("X-User-ID", "p1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("not found -> %d", w.Code)
		}
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/auth"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/services"
)

// ---------- service stubs ----------

type stubInvSvc struct {
	issue   func(in services.IssueInput) (*domain.Invitation, bool, error)
	verify  func(email, code string) (*services.VerifyResult, error)
	lookup  func(code, email string) (*domain.Invitation, error)
	redeem  func(email, code, accountID string) (*services.RedeemResult, error)
	consume func(code, email, userID string) (*domain.Invitation, error)
	del     func(id, actor string) error
	list    func() ([]domain.Invitation, error)
	stats   func() (int64, *time.Time, error)
	codes   []string
	debug   bool
}

func (s *stubInvSvc) Issue(_ context.Context, in services.IssueInput) (*domain.Invitation, bool, error) {
	return s.issue(in)
}
func (s *stubInvSvc) Verify(_ context.Context, email, code string) (*services.VerifyResult, error) {
	return s.verify(email, code)
}
func (s *stubInvSvc) Lookup(_ context.Context, code, email string) (*domain.Invitation, error) {
	return s.lookup(code, email)
}
func (s *stubInvSvc) Redeem(_ context.Context, email, code, accountID string) (*services.RedeemResult, error) {
	return s.redeem(email, code, accountID)
}
func (s *stubInvSvc) ConsumeByCode(_ context.Context, code, email, userID string) (*domain.Invitation, error) {
	return s.consume(code, email, userID)
}
func (s *stubInvSvc) Delete(_ context.Context, id, actor string) error { return s.del(id, actor) }
func (s *stubInvSvc) List(context.Context) ([]domain.Invitation, error) {
	return s.list()
}
func (s *stubInvSvc) Stats(context.Context) (int64, *time.Time, error) {
	if s.stats == nil {
		return 0, nil, nil
	}
	return s.stats()
}
func (s *stubInvSvc) CodesOnFile(context.Context, string) ([]string, error) { return s.codes, nil }
func (s *stubInvSvc) DebugEnabled() bool                                    { return s.debug }

type stubAccSvc struct {
	login    func(email, password string) (*services.Session, error)
	register func(in services.RegisterInput) (*services.Session, error)
	me       func(id string) (*domain.Profile, error)
}

func (s *stubAccSvc) Login(_ context.Context, email, password string) (*services.Session, error) {
	return s.login(email, password)
}
func (s *stubAccSvc) Register(_ context.Context, in services.RegisterInput) (*services.Session, error) {
	return s.register(in)
}
func (s *stubAccSvc) Me(_ context.Context, id string) (*domain.Profile, error) { return s.me(id) }

type stubTopicSvc struct {
	list   func() ([]domain.Topic, error)
	create func(name, abbr string) (*domain.Topic, error)
	update func(id, name, abbr string) (*domain.Topic, error)
}

func (s *stubTopicSvc) List(context.Context) ([]domain.Topic, error) { return s.list() }
func (s *stubTopicSvc) Create(_ context.Context, name, abbr string) (*domain.Topic, error) {
	return s.create(name, abbr)
}
func (s *stubTopicSvc) Update(_ context.Context, id, name, abbr string) (*domain.Topic, error) {
	return s.update(id, name, abbr)
}

type stubSeqSvc struct {
	gaps     func(kind domain.Kind, year int, topicID string) (*services.GapsResult, error)
	allocate func(in services.AllocateInput) (*domain.WorkItem, error)
	create   func(in services.CreateInput) (*domain.WorkItem, error)
	get      func(kind domain.Kind, id string) (*domain.WorkItem, error)
	listPage func(kind domain.Kind, year, page, pageSize int) ([]domain.WorkItem, int64, error)
	stats    func(kind domain.Kind, year int) (int64, *time.Time, error)
	advance  func(kind domain.Kind, id string, to domain.WorkStatus, assignee, actor string) (*domain.WorkItem, error)
}

func (s *stubSeqSvc) FindGaps(_ context.Context, kind domain.Kind, year int, topicID string) (*services.GapsResult, error) {
	return s.gaps(kind, year, topicID)
}
func (s *stubSeqSvc) Allocate(_ context.Context, in services.AllocateInput) (*domain.WorkItem, error) {
	return s.allocate(in)
}
func (s *stubSeqSvc) Create(_ context.Context, in services.CreateInput) (*domain.WorkItem, error) {
	return s.create(in)
}
func (s *stubSeqSvc) Get(_ context.Context, kind domain.Kind, id string) (*domain.WorkItem, error) {
	return s.get(kind, id)
}
func (s *stubSeqSvc) ListPage(_ context.Context, kind domain.Kind, year, page, pageSize int) ([]domain.WorkItem, int64, error) {
	return s.listPage(kind, year, page, pageSize)
}
func (s *stubSeqSvc) Stats(_ context.Context, kind domain.Kind, year int) (int64, *time.Time, error) {
	if s.stats == nil {
		return 0, nil, nil
	}
	return s.stats(kind, year)
}
func (s *stubSeqSvc) Advance(_ context.Context, kind domain.Kind, id string, to domain.WorkStatus, assignee, actor string) (*domain.WorkItem, error) {
	return s.advance(kind, id, to, assignee, actor)
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	recs map[string]domain.Idempotency
}

func newMemIdem() *memIdem { return &memIdem{recs: map[string]domain.Idempotency{}} }

func (m *memIdem) Lookup(_ context.Context, userID, scope, key string) (*domain.Idempotency, error) {
	rec, ok := m.recs[userID+"|"+scope+"|"+key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memIdem) Remember(_ context.Context, userID, scope, key, resourceID string, status int) error {
	m.recs[userID+"|"+scope+"|"+key] = domain.Idempotency{UserID: userID, Scope: scope, Key: key, ResourceID: resourceID, Status: status}
	return nil
}

// ---------- request helpers ----------

const testUserID = "141add05-4415-4938-b5a1-17e0d3171aff"

// withIdentity simulates Authenticate for an account with role.
func withIdentity(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", testUserID)
		c.Set("identity", auth.Identity{UserID: testUserID, Email: "staff@example.com", Role: role})
		c.Next()
	}
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// Package handlers exposes the REST endpoints of the legislative office API.
//
// Handlers are transport-thin: they validate input, call application
// services through the interfaces below, and translate results and the
// service error taxonomy into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/http/middleware"
	"github.com/tbourn/legis-office-backend/internal/services"
	"github.com/tbourn/legis-office-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// InvitationService defines the invitation lifecycle consumed by handlers.
type InvitationService interface {
	Issue(ctx context.Context, in services.IssueInput) (*domain.Invitation, bool, error)
	Verify(ctx context.Context, email, code string) (*services.VerifyResult, error)
	Lookup(ctx context.Context, code, email string) (*domain.Invitation, error)
	Redeem(ctx context.Context, email, code, accountID string) (*services.RedeemResult, error)
	ConsumeByCode(ctx context.Context, code, email, userID string) (*domain.Invitation, error)
	Delete(ctx context.Context, id, actor string) error
	List(ctx context.Context) ([]domain.Invitation, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	CodesOnFile(ctx context.Context, email string) ([]string, error)
	DebugEnabled() bool
}

// AccountService defines sign-in and self-registration.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Me(ctx context.Context, id string) (*domain.Profile, error)
}

// TopicService defines topic reads and admin writes.
type TopicService interface {
	List(ctx context.Context) ([]domain.Topic, error)
	Create(ctx context.Context, name, abbreviation string) (*domain.Topic, error)
	Update(ctx context.Context, id, name, abbreviation string) (*domain.Topic, error)
}

// SequenceService defines numbering and lifecycle of expressions and
// petitions.
type SequenceService interface {
	FindGaps(ctx context.Context, kind domain.Kind, year int, topicID string) (*services.GapsResult, error)
	Allocate(ctx context.Context, in services.AllocateInput) (*domain.WorkItem, error)
	Create(ctx context.Context, in services.CreateInput) (*domain.WorkItem, error)
	Get(ctx context.Context, kind domain.Kind, id string) (*domain.WorkItem, error)
	ListPage(ctx context.Context, kind domain.Kind, year, page, pageSize int) ([]domain.WorkItem, int64, error)
	Stats(ctx context.Context, kind domain.Kind, year int) (int64, *time.Time, error)
	Advance(ctx context.Context, kind domain.Kind, id string, to domain.WorkStatus, assignee, actor string) (*domain.WorkItem, error)
}

// IdempotencyStore remembers which entity an idempotent request produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (*domain.Idempotency, error)
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	invSvc   InvitationService
	accSvc   AccountService
	topicSvc TopicService
	seqSvc   SequenceService
	idem     IdempotencyStore
	now      func() time.Time
}

// New constructs a Handlers instance bound to the given services. idem may be
// nil, which disables idempotent replays.
func New(inv InvitationService, acc AccountService, topics TopicService, seq SequenceService, idem IdempotencyStore) *Handlers {
	return &Handlers{
		invSvc:   inv,
		accSvc:   acc,
		topicSvc: topics,
		seqSvc:   seq,
		idem:     idem,
		now:      time.Now,
	}
}

// actor is the account ID recorded as the author of a change.
func actor(c *gin.Context) string {
	if id, ok := middleware.IdentityFrom(c); ok {
		return id.UserID
	}
	return ""
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	return p.Number, p.Size
}

// notModified sets a weak ETag built from parts and reports whether the
// request's If-None-Match already matches it.
func notModified(c *gin.Context, count int64, maxTS *time.Time, parts ...any) bool {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	tag := "W/\"" + fmt.Sprint(parts...) + fmt.Sprintf(":%d:%d", count, ts) + "\""
	c.Header("ETag", tag)
	return c.GetHeader("If-None-Match") == tag
}

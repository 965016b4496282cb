// Sequenced work item HTTP handlers.
//
// Expressions and petitions share one set of handlers; each constructor
// below is bound to a kind when the router registers it:
//   - GET   /{kind}/gaps          (unused sequences below the yearly maximum)
//   - POST  /{kind}/allocate      (claim a gap, Idempotency-Key aware)
//   - POST  /{kind}               (number with the running counter, Idempotency-Key aware)
//   - GET   /{kind}               (list a year, paginated, ETag support)
//   - GET   /{kind}/{id}          (fetch one)
//   - PATCH /{kind}/{id}/status   (advance the lifecycle)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (account, route, key), the handler returns the item it
// produced and sets `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/http/middleware"
	"github.com/tbourn/legis-office-backend/internal/services"
)

//
// DTOs
//

// AllocateRequest names the gap to claim. Numero is optional; when present
// it must match the numero reported by the gaps endpoint.
type AllocateRequest struct {
	Year     int    `json:"year" binding:"required" example:"2024"`
	TopicID  string `json:"topic_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Sequence int    `json:"sequence" binding:"required" example:"4"`
	Numero   string `json:"numero" example:"2024-0004-RNAR"`
	Subject  string `json:"subject" binding:"max=500" example:"Solicitud de información"`
}

// CreateItemRequest describes an item numbered with the running counter.
type CreateItemRequest struct {
	Year    int    `json:"year" binding:"required" example:"2024"`
	TopicID string `json:"topic_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Subject string `json:"subject" binding:"max=500" example:"Solicitud de información"`
}

// AdvanceStatusRequest moves an item to the next stage.
type AdvanceStatusRequest struct {
	Status     domain.WorkStatus `json:"status" binding:"required" example:"assigned"`
	AssignedTo string            `json:"assigned_to" example:"staff@example.com"`
}

// ListItemsResponse wraps a page of items and pagination information.
type ListItemsResponse struct {
	Items      []domain.WorkItem `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// queryYear reads the year query param. def is used when it is absent.
func queryYear(c *gin.Context, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query("year"))
	if raw == "" {
		return def, def > 0
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// replay serves the item recorded for this request's Idempotency-Key, if any.
func (h *Handlers) replay(c *gin.Context, kind domain.Kind) bool {
	key, has := middleware.GetIdempotencyKey(c)
	uid := middleware.UserID(c)
	if !has || h.idem == nil || uid == "" {
		return false
	}
	ctx := c.Request.Context()
	rec, err := h.idem.Lookup(ctx, uid, middleware.IdempotencyScope(c), key)
	if err != nil || rec == nil {
		return false
	}
	prev, err := h.seqSvc.Get(ctx, kind, rec.ResourceID)
	if err != nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, rec.Status, prev)
	return true
}

// remember records the outcome of an idempotent request (best effort).
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	uid := middleware.UserID(c)
	if !has || h.idem == nil || uid == "" {
		return
	}
	if err := h.idem.Remember(c.Request.Context(), uid, middleware.IdempotencyScope(c), key, resourceID, status); err != nil {
		_ = c.Error(err)
	}
}

//
// Handlers
//

// FindGaps godoc
// @ID          findGaps
// @Summary     List unused sequences
// @Description Returns every unused sequence below the year's maximum for expressions or petitions, with the numero each would carry under the topic. It performs no writes.
// @Tags        Numbering
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind      path   string  true  "expressions or petitions"  Enums(expressions, petitions)
// @Param       year      query  int     true  "Year"  example(2024)
// @Param       topic_id  query  string  true  "Topic ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.GapsResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Nothing issued this year or unknown topic"
// @Router      /{kind}/gaps [get]
func (h *Handlers) FindGaps(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, okYear := queryYear(c, 0)
		if !okYear {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year must be a positive integer")
			return
		}
		res, err := h.seqSvc.FindGaps(c.Request.Context(), kind, year, c.Query("topic_id"))
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, res)
	}
}

// AllocateGap godoc
// @ID          allocateGap
// @Summary     Claim an unused sequence
// @Description Re-checks the gap and creates an item with that sequence. A sequence claimed in the meantime is 409; fetch the gaps again and retry.
// @Tags        Numbering
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind             path    string                    true   "expressions or petitions"  Enums(expressions, petitions)
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"
// @Param       body             body    handlers.AllocateRequest  true   "Gap to claim"
//
// @Success     201  {object}  domain.WorkItem
// @Failure     400  {object}  handlers.ErrorResponse  "Out of range or numero mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Nothing issued this year or unknown topic"
// @Failure     409  {object}  handlers.ErrorResponse  "Sequence already claimed"
// @Router      /{kind}/allocate [post]
func (h *Handlers) AllocateGap(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.replay(c, kind) {
			return
		}
		var req AllocateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year, topic_id and sequence are required")
			return
		}
		item, err := h.seqSvc.Allocate(c.Request.Context(), services.AllocateInput{
			Kind:      kind,
			Year:      req.Year,
			TopicID:   req.TopicID,
			Sequence:  req.Sequence,
			Numero:    req.Numero,
			Subject:   req.Subject,
			CreatedBy: actor(c),
		})
		if err != nil {
			failErr(c, err)
			return
		}
		h.remember(c, item.ID, http.StatusCreated)
		ok(c, http.StatusCreated, item)
	}
}

// CreateItem godoc
// @ID          createItem
// @Summary     Create an item with the next sequence
// @Tags        Numbering
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind             path    string                      true   "expressions or petitions"  Enums(expressions, petitions)
// @Param       Idempotency-Key  header  string                      false  "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateItemRequest  true   "Item"
//
// @Success     201  {object}  domain.WorkItem
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown topic"
// @Failure     409  {object}  handlers.ErrorResponse  "Numbered concurrently; retry"
// @Router      /{kind} [post]
func (h *Handlers) CreateItem(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.replay(c, kind) {
			return
		}
		var req CreateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year and topic_id are required")
			return
		}
		item, err := h.seqSvc.Create(c.Request.Context(), services.CreateInput{
			Kind:      kind,
			Year:      req.Year,
			TopicID:   req.TopicID,
			Subject:   req.Subject,
			CreatedBy: actor(c),
		})
		if err != nil {
			failErr(c, err)
			return
		}
		h.remember(c, item.ID, http.StatusCreated)
		ok(c, http.StatusCreated, item)
	}
}

// ListItems godoc
// @ID          listItems
// @Summary     List items of a year (paginated)
// @Description Returns items ordered by sequence. year defaults to the current year. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Numbering
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind           path    string  true   "expressions or petitions"  Enums(expressions, petitions)
// @Param       year           query   int     false  "Year"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListItemsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /{kind} [get]
func (h *Handlers) ListItems(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		year, okYear := queryYear(c, h.now().Year())
		if !okYear {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year must be a positive integer")
			return
		}
		page, pageSize := clampPagination(c)

		// ETag pre-check (best effort).
		if count, maxTS, err := h.seqSvc.Stats(ctx, kind, year); err == nil {
			if notModified(c, count, maxTS, kind, ":", year, ":", page, ":", pageSize) {
				c.Status(http.StatusNotModified)
				return
			}
		}

		items, total, err := h.seqSvc.ListPage(ctx, kind, year, page, pageSize)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, ListItemsResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
	}
}

// GetItem godoc
// @ID          getItem
// @Summary     Fetch one item
// @Tags        Numbering
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind  path  string  true  "expressions or petitions"  Enums(expressions, petitions)
// @Param       id    path  string  true  "Item ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.WorkItem
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /{kind}/{id} [get]
func (h *Handlers) GetItem(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a UUID")
			return
		}
		item, err := h.seqSvc.Get(c.Request.Context(), kind, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, item)
	}
}

// AdvanceStatus godoc
// @ID          advanceStatus
// @Summary     Advance an item's status
// @Description Moves an item one stage forward: received, assigned, dispatched.
// @Tags        Numbering
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       kind  path  string                         true  "expressions or petitions"  Enums(expressions, petitions)
// @Param       id    path  string                         true  "Item ID (UUID)"  format(uuid)
// @Param       body  body  handlers.AdvanceStatusRequest  true  "Target status"
//
// @Success     200  {object}  domain.WorkItem
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid transition"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Changed concurrently"
// @Router      /{kind}/{id}/status [patch]
func (h *Handlers) AdvanceStatus(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a UUID")
			return
		}
		var req AdvanceStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
			return
		}
		item, err := h.seqSvc.Advance(c.Request.Context(), kind, id, req.Status, req.AssignedTo, actor(c))
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, item)
	}
}

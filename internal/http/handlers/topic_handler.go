// Topic HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// TopicRequest is the JSON payload for creating or updating a topic.
type TopicRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=200" example:"Recursos naturales"`
	Abbreviation string `json:"abbreviation" binding:"max=12" example:"RNAR"`
}

// ListTopicsResponse wraps every topic, ordered by name.
type ListTopicsResponse struct {
	Topics []domain.Topic `json:"topics"`
}

// ListTopics godoc
// @ID          listTopics
// @Summary     List topics
// @Tags        Topics
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.ListTopicsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Router      /topics [get]
func (h *Handlers) ListTopics(c *gin.Context) {
	items, err := h.topicSvc.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListTopicsResponse{Topics: items})
}

// CreateTopic godoc
// @ID          createTopic
// @Summary     Create a topic
// @Tags        Topics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.TopicRequest  true  "Topic"
//
// @Success     201  {object}  domain.Topic
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admins only"
// @Failure     409  {object}  handlers.ErrorResponse  "Name taken"
// @Router      /topics [post]
func (h *Handlers) CreateTopic(c *gin.Context) {
	var req TopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-200 chars), abbreviation up to 12 chars")
		return
	}
	t, err := h.topicSvc.Create(c.Request.Context(), req.Name, req.Abbreviation)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// UpdateTopic godoc
// @ID          updateTopic
// @Summary     Update a topic
// @Description Renames a topic or changes its abbreviation. Numeros already issued keep their suffix.
// @Tags        Topics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                 true  "Topic ID (UUID)"  format(uuid)
// @Param       body  body  handlers.TopicRequest  true  "Topic"
//
// @Success     200  {object}  domain.Topic
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admins only"
// @Failure     404  {object}  handlers.ErrorResponse  "Topic not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Name taken"
// @Router      /topics/{id} [put]
func (h *Handlers) UpdateTopic(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "topic id must be a UUID")
		return
	}
	var req TopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-200 chars), abbreviation up to 12 chars")
		return
	}
	t, err := h.topicSvc.Update(c.Request.Context(), id, req.Name, req.Abbreviation)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

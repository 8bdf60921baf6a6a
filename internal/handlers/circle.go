package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencircles/backend/internal/middleware"
	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/services"
	"github.com/opencircles/backend/pkg/response"
)

type CircleHandler struct {
	circles     *services.CircleService
	memberships *services.MembershipService
}

func NewCircleHandler(circles *services.CircleService, memberships *services.MembershipService) *CircleHandler {
	return &CircleHandler{circles: circles, memberships: memberships}
}

// Create creates a new circle with the caller as facilitator
// POST /api/circles
func (h *CircleHandler) Create(c *gin.Context) {
	var req services.CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	circle, err := h.circles.Create(middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, circle)
}

// List returns paginated circles
// GET /api/circles
func (h *CircleHandler) List(c *gin.Context) {
	var req services.CircleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.circles.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Get returns one circle with its current occupancy
// GET /api/circles/:id
func (h *CircleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.circles.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

type transitionRequest struct {
	Status models.CircleStatus `json:"status" binding:"required"`
}

// Transition moves a circle to a new lifecycle status
// PUT /api/circles/:id/status
func (h *CircleHandler) Transition(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	circle, err := h.circles.TransitionStatus(id, middleware.GetUserID(c), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, circle)
}

// ListMembers returns a circle's memberships
// GET /api/circles/:id/members
func (h *CircleHandler) ListMembers(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	activeOnly := c.DefaultQuery("active", "true") == "true"

	memberships, err := h.memberships.ListByCircle(id, activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, memberships)
}

type addMemberRequest struct {
	UserID        uint                 `json:"user_id" binding:"required"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// AddMember adds a user to a circle, subject to the capacity check
// POST /api/circles/:id/members
func (h *CircleHandler) AddMember(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	membership, err := h.memberships.AddMember(id, req.UserID, middleware.GetUserID(c), req.PaymentStatus)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// RemoveMember deactivates a membership; removing an absent member is a no-op
// DELETE /api/circles/:id/members/:userID
func (h *CircleHandler) RemoveMember(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	removed, err := h.memberships.RemoveMember(id, userID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

type paymentRequest struct {
	PaymentStatus  models.PaymentStatus `json:"payment_status" binding:"required"`
	NextPaymentDue *time.Time           `json:"next_payment_due"`
}

// SetPayment updates a membership's payment sub-state
// PUT /api/circles/:id/members/:userID/payment
func (h *CircleHandler) SetPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	membership, err := h.memberships.SetPaymentStatus(id, userID, middleware.GetUserID(c), req.PaymentStatus, req.NextPaymentDue)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, membership)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

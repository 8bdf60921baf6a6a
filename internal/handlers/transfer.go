package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/middleware"
	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/services"
	"github.com/opencircles/backend/pkg/response"
)

type TransferHandler struct {
	db        *gorm.DB
	transfers *services.TransferService
}

func NewTransferHandler(db *gorm.DB, transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{db: db, transfers: transfers}
}

// Create files a transfer request toward a target circle
// POST /api/transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req services.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.transfers.Create(middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Approve approves a pending request and executes the membership move.
// A capacity failure at execution time leaves the request approved; the
// response carries the conflict status so the reviewer sees the move did
// not happen.
// POST /api/transfers/:id/approve
func (h *TransferHandler) Approve(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ReviewTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.transfers.ApproveAndExecute(id, middleware.GetUserID(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.notifyRequester(request, "transfer.approved", "Transfer request approved",
		fmt.Sprintf("Your transfer request #%d was approved and your membership has moved.", request.ID))
	response.Success(c, request)
}

// Deny denies a pending request
// POST /api/transfers/:id/deny
func (h *TransferHandler) Deny(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ReviewTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.transfers.Deny(id, middleware.GetUserID(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.notifyRequester(request, "transfer.denied", "Transfer request denied",
		fmt.Sprintf("Your transfer request #%d was denied.", request.ID))
	response.Success(c, request)
}

// Cancel withdraws the caller's own pending request
// POST /api/transfers/:id/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	request, err := h.transfers.Cancel(id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, request)
}

// ListMine returns the caller's requests, newest first
// GET /api/transfers/mine
func (h *TransferHandler) ListMine(c *gin.Context) {
	requests, err := h.transfers.ListForRequester(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, requests)
}

// ListPending returns the review queue for circles the caller facilitates,
// oldest first
// GET /api/transfers/pending
func (h *TransferHandler) ListPending(c *gin.Context) {
	requests, err := h.transfers.ListPendingForFacilitator(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, requests)
}

// Statistics returns request counts grouped by status
// GET /api/transfers/statistics
func (h *TransferHandler) Statistics(c *gin.Context) {
	stats, err := h.transfers.Statistics()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// notifyRequester enqueues a notification after a review decision has
// committed. Failures are swallowed; delivery is best-effort.
func (h *TransferHandler) notifyRequester(request *models.TransferRequest, event, subject, body string) {
	queue := services.GetTaskQueue()
	if queue == nil {
		return
	}

	var requester models.User
	if err := h.db.First(&requester, request.RequesterID).Error; err != nil {
		return
	}

	_ = queue.Enqueue(&services.NotificationTask{
		RecipientID: requester.ID,
		Email:       requester.Email,
		Event:       event,
		Subject:     subject,
		Body:        body,
	})
}

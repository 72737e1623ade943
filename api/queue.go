package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cchriscode/ticketcore/internal/domain"
)

// QueueController is the slice of the admission controller the HTTP
// surface exposes.
type QueueController interface {
	Join(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error)
	Heartbeat(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error)
	Status(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error)
	Leave(ctx context.Context, eventID int64, userID string) error
	Clear(ctx context.Context, eventID int64) error
}

type QueueHandler struct {
	queue QueueController
}

func NewQueueHandler(queue QueueController) *QueueHandler {
	return &QueueHandler{queue: queue}
}

func (h *QueueHandler) Register(router *gin.RouterGroup) {
	router.POST("/:eventID/join", h.join)
	router.POST("/:eventID/heartbeat", h.heartbeat)
	router.GET("/:eventID/status", h.status)
	router.DELETE("/:eventID/leave", h.leave)
	router.DELETE("/:eventID", h.clear)
}

type queueRequest struct {
	UserID string `json:"user_id"`
}

type queueStatusResponse struct {
	Status               string `json:"status"`
	Rank                 int64  `json:"rank,omitempty"`
	EstimatedWaitSeconds int64  `json:"estimated_wait_seconds,omitempty"`
	AdmittedUntil        string `json:"admitted_until,omitempty"`
}

func toQueueStatusResponse(info *domain.QueueStatusInfo) queueStatusResponse {
	resp := queueStatusResponse{Status: string(info.Status)}
	if info.Status == domain.QueueStatusWaiting {
		resp.Rank = info.Rank
		resp.EstimatedWaitSeconds = int64(info.EstimatedWait / time.Second)
	}
	if info.Status == domain.QueueStatusAdmitted {
		resp.AdmittedUntil = info.AdmittedUntil.Format(time.RFC3339)
	}
	return resp
}

func (h *QueueHandler) join(c *gin.Context) {
	eventID, userID, ok := h.parseMember(c)
	if !ok {
		return
	}
	info, err := h.queue.Join(c.Request.Context(), eventID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueueStatusResponse(info))
}

func (h *QueueHandler) heartbeat(c *gin.Context) {
	eventID, userID, ok := h.parseMember(c)
	if !ok {
		return
	}
	info, err := h.queue.Heartbeat(c.Request.Context(), eventID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueueStatusResponse(info))
}

func (h *QueueHandler) status(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("eventID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	info, err := h.queue.Status(c.Request.Context(), eventID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueueStatusResponse(info))
}

func (h *QueueHandler) leave(c *gin.Context) {
	eventID, userID, ok := h.parseMember(c)
	if !ok {
		return
	}
	if err := h.queue.Leave(c.Request.Context(), eventID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// clear drops the whole queue for an event. Operator endpoint, used when
// an on-sale is cancelled or restarted.
func (h *QueueHandler) clear(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("eventID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := h.queue.Clear(c.Request.Context(), eventID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) parseMember(c *gin.Context) (int64, string, bool) {
	eventID, err := strconv.ParseInt(c.Param("eventID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return 0, "", false
	}
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return 0, "", false
	}
	return eventID, req.UserID, true
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/service/reservation"
)

// AdmissionChecker gates reservation creation behind the virtual queue.
type AdmissionChecker interface {
	IsAdmitted(ctx context.Context, eventID int64, userID string) (bool, error)
}

type ReservationHandler struct {
	service   reservation.ReservationUseCase
	admission AdmissionChecker
}

// NewReservationHandler builds the reservation surface. A nil admission
// checker disables the queue gate; used for events sold without a queue.
func NewReservationHandler(service reservation.ReservationUseCase, admission AdmissionChecker) *ReservationHandler {
	return &ReservationHandler{service: service, admission: admission}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.GET("/", h.listByUser)
	router.POST("/:id/confirm", h.confirm)
	router.DELETE("/:id", h.cancel)
}

type generalItemRequest struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

type createReservationRequest struct {
	UserID           string               `json:"user_id"`
	EventID          int64                `json:"event_id"`
	SeatIDs          []int64              `json:"seat_ids"`
	GeneralItems     []generalItemRequest `json:"general_items"`
	PaymentReference string               `json:"payment_reference"`
}

type confirmReservationRequest struct {
	Method string `json:"method"`
}

type reservationItemResponse struct {
	SeatID    *int64 `json:"seat_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

type reservationResponse struct {
	ID            string                    `json:"id"`
	UserID        string                    `json:"user_id"`
	EventID       int64                     `json:"event_id"`
	Status        string                    `json:"status"`
	PaymentStatus string                    `json:"payment_status"`
	TotalCents    int64                     `json:"total_cents"`
	ExpiresAt     string                    `json:"expires_at"`
	Items         []reservationItemResponse `json:"items"`
}

func toReservationResponse(res *domain.Reservation) reservationResponse {
	items := make([]reservationItemResponse, 0, len(res.Items))
	for _, item := range res.Items {
		items = append(items, reservationItemResponse{
			SeatID:    item.SeatID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitCents: item.UnitCents,
		})
	}
	return reservationResponse{
		ID:            res.ID.String(),
		UserID:        res.UserID.String(),
		EventID:       res.EventID,
		Status:        string(res.Status),
		PaymentStatus: string(res.PaymentStatus),
		TotalCents:    res.TotalCents,
		ExpiresAt:     res.ExpiresAt.Format(time.RFC3339),
		Items:         items,
	}
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	if len(req.SeatIDs) == 0 && len(req.GeneralItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty reservation"})
		return
	}

	if h.admission != nil {
		admitted, err := h.admission.IsAdmitted(c.Request.Context(), req.EventID, req.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		if !admitted {
			writeError(c, fmt.Errorf("queue admission required: %w", domain.ErrUnauthorized))
			return
		}
	}

	items := make([]reservation.GeneralItem, 0, len(req.GeneralItems))
	for _, item := range req.GeneralItems {
		items = append(items, reservation.GeneralItem{SKU: item.SKU, Quantity: item.Quantity, UnitCents: item.UnitCents})
	}

	res, err := h.service.Create(c.Request.Context(), reservation.CreateInput{
		UserID:           userID,
		EventID:          req.EventID,
		SeatIDs:          req.SeatIDs,
		GeneralItems:     items,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) listByUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	list, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]reservationResponse, 0, len(list))
	for i := range list {
		out = append(out, toReservationResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *ReservationHandler) confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req confirmReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Method == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method is required"})
		return
	}
	res, err := h.service.Confirm(c.Request.Context(), id, req.Method)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

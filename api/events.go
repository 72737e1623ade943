package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/service/catalog"
)

type EventHandler struct {
	service catalog.CatalogUseCase
}

func NewEventHandler(service catalog.CatalogUseCase) *EventHandler {
	return &EventHandler{service: service}
}

func (h *EventHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/seats", h.listSeats)
}

type eventResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	StartsAt       string `json:"starts_at"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
}

type seatResponse struct {
	ID         int64  `json:"id"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	PriceCents int64  `json:"price_cents"`
}

func toEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:             e.ID,
		Name:           e.Name,
		StartsAt:       e.StartsAt.Format(time.RFC3339),
		TotalSeats:     e.TotalSeats,
		AvailableSeats: e.AvailableSeats,
	}
}

func (h *EventHandler) list(c *gin.Context) {
	events, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

func (h *EventHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	event, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEventResponse(*event))
}

func (h *EventHandler) listSeats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	seats, err := h.service.ListSeats(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatResponse{ID: s.ID, Label: s.Label, Status: string(s.Status), PriceCents: s.PriceCents})
	}
	c.JSON(http.StatusOK, out)
}

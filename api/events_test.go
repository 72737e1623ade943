package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cchriscode/ticketcore/internal/domain"
)

type MockCatalogUseCase struct {
	mock.Mock
}

func (m *MockCatalogUseCase) List(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockCatalogUseCase) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockCatalogUseCase) ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Seat), args.Error(1)
}

func TestEventHandler_list(t *testing.T) {
	mockService := &MockCatalogUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/events", nil)

	events := []domain.Event{
		{ID: 1, Name: "Arena Tour Night 1", StartsAt: time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC), TotalSeats: 500, AvailableSeats: 312},
	}
	mockService.On("List", c.Request.Context()).Return(events, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []eventResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
	assert.Equal(t, "Arena Tour Night 1", resp[0].Name)
	assert.Equal(t, 312, resp[0].AvailableSeats)
}

func TestEventHandler_get_InvalidID(t *testing.T) {
	handler := NewEventHandler(&MockCatalogUseCase{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	c.Request = httptest.NewRequest("GET", "/events/abc", nil)

	handler.get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_listSeats_NotFound(t *testing.T) {
	mockService := &MockCatalogUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "999"}}
	c.Request = httptest.NewRequest("GET", "/events/999/seats", nil)

	mockService.On("ListSeats", c.Request.Context(), int64(999)).Return(nil, domain.ErrNotFound)

	handler.listSeats(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

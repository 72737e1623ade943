package catalog

import (
	"context"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/repository"
)

type CatalogUseCase interface {
	List(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id int64) (*domain.Event, error)
	ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error)
}

// EventCache is the read-through cache in front of the catalog listing.
type EventCache interface {
	GetEvents(ctx context.Context) ([]domain.Event, error)
	SetEvents(ctx context.Context, events []domain.Event) error
}

type Service struct {
	events repository.EventRepository
	seats  repository.SeatRepository
	cache  EventCache
}

func NewService(events repository.EventRepository, seats repository.SeatRepository, cache EventCache) *Service {
	return &Service{events: events, seats: seats, cache: cache}
}

// List serves the catalog from cache when possible. Cache errors fall
// through to the database.
func (s *Service) List(ctx context.Context) ([]domain.Event, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetEvents(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	events, err := s.events.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetEvents(ctx, events)
	}
	return events, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.seats.ListByEvent(ctx, eventID)
}

var _ CatalogUseCase = (*Service)(nil)

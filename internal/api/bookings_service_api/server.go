package bookings_service_api

import (
	"context"
	"time"

	"github.com/Domenick1991/railbooking/internal/api/rpc"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/booking"
)

// Server implements BookingsServiceServer on top of the booking engine.
type Server struct {
	bookings booking.BookingUseCase
}

func NewServer(bookings booking.BookingUseCase) *Server {
	return &Server{bookings: bookings}
}

func (s *Server) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*Booking, error) {
	date, err := domain.ParseDate(req.JourneyDate)
	if err != nil {
		return nil, rpc.Error(domain.InvalidInput("CreateBooking", "journey_date", "must be YYYY-MM-DD"))
	}
	created, err := s.bookings.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:      req.UserID,
		TrainID:     req.TrainID,
		ClassID:     req.ClassID,
		JourneyDate: date,
		Passengers:  req.Passengers,
	})
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toBooking(created), nil
}

func (s *Server) CancelBooking(ctx context.Context, req *BookingIDRequest) (*Booking, error) {
	b, err := s.bookings.CancelBooking(ctx, req.ID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toBooking(b), nil
}

func (s *Server) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*Booking, error) {
	b, err := s.bookings.UpdateStatus(ctx, req.ID, domain.BookingStatus(req.Status))
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toBooking(b), nil
}

func (s *Server) GetBooking(ctx context.Context, req *BookingIDRequest) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, req.ID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toBooking(b), nil
}

func (s *Server) GetBookingByPNR(ctx context.Context, req *PNRRequest) (*Booking, error) {
	b, err := s.bookings.GetByPNR(ctx, req.PNR)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toBooking(b), nil
}

func (s *Server) ListBookingsByUser(ctx context.Context, req *UserRequest) (*BookingList, error) {
	list, err := s.bookings.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	out := &BookingList{Bookings: make([]*Booking, 0, len(list))}
	for i := range list {
		out.Bookings = append(out.Bookings, toBooking(&list[i]))
	}
	return out, nil
}

func toBooking(b *domain.Booking) *Booking {
	if b == nil {
		return nil
	}
	return &Booking{
		ID:             b.ID,
		PNR:            b.PNR,
		UserID:         b.UserID,
		TrainID:        b.TrainID,
		ClassID:        b.ClassID,
		JourneyDate:    domain.FormatDate(b.JourneyDate),
		Passengers:     b.Passengers,
		TotalFareCents: b.TotalFareCents,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
}

var _ BookingsServiceServer = (*Server)(nil)

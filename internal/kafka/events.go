package kafka

import (
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventSeatAssigned     = "seat_assigned"
)

type BookingEvent struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	BookingID      int64     `json:"booking_id"`
	PNR            string    `json:"pnr"`
	UserID         int64     `json:"user_id"`
	TrainID        int64     `json:"train_id"`
	ClassID        string    `json:"class_id"`
	JourneyDate    string    `json:"journey_date"`
	Seats          int       `json:"seats"`
	TotalFareCents int64     `json:"total_fare_cents"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *domain.Booking) BookingEvent {
	return BookingEvent{
		EventID:        uuid.NewString(),
		Type:           eventType,
		BookingID:      b.ID,
		PNR:            b.PNR,
		UserID:         b.UserID,
		TrainID:        b.TrainID,
		ClassID:        b.ClassID,
		JourneyDate:    domain.FormatDate(b.JourneyDate),
		Seats:          b.SeatCount(),
		TotalFareCents: b.TotalFareCents,
		Status:         string(b.Status),
		OccurredAt:     time.Now().UTC(),
	}
}

// ReleaseObligation records seats that are still held although no confirmed
// booking accounts for them. The worker applies it with InventoryStore.Release.
type ReleaseObligation struct {
	EventID     string    `json:"event_id"`
	TrainID     int64     `json:"train_id"`
	ClassID     string    `json:"class_id"`
	JourneyDate string    `json:"journey_date"`
	Count       int       `json:"count"`
	Reason      string    `json:"reason"`
	PNR         string    `json:"pnr,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewReleaseObligation(key domain.InventoryKey, count int, reason, pnr string) ReleaseObligation {
	return ReleaseObligation{
		EventID:     uuid.NewString(),
		TrainID:     key.TrainID,
		ClassID:     key.ClassID,
		JourneyDate: domain.FormatDate(key.JourneyDate),
		Count:       count,
		Reason:      reason,
		PNR:         pnr,
		CreatedAt:   time.Now().UTC(),
	}
}

func (o ReleaseObligation) Key() (domain.InventoryKey, error) {
	date, err := domain.ParseDate(o.JourneyDate)
	if err != nil {
		return domain.InventoryKey{}, err
	}
	return domain.NewInventoryKey(o.TrainID, o.ClassID, date), nil
}

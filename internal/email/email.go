package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/railbooking/internal/kafka"
)

// Sender turns booking events into passenger notifications. Delivery is a
// structured log line until a mail provider is configured.
type Sender struct {
	log *slog.Logger
}

func NewSender(log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, body := Render(event)
	s.log.InfoContext(ctx, "notification sent",
		"user_id", event.UserID,
		"pnr", event.PNR,
		"type", event.Type,
		"subject", subject,
		"body", body,
	)
	return nil
}

func Render(event kafka.BookingEvent) (subject, body string) {
	trip := fmt.Sprintf("train %d class %s on %s", event.TrainID, event.ClassID, event.JourneyDate)
	switch event.Type {
	case kafka.EventBookingCreated, kafka.EventBookingConfirmed:
		subject = "Booking confirmed: " + event.PNR
		body = fmt.Sprintf("Your booking %s for %d passenger(s) on %s is confirmed. Total fare %s.",
			event.PNR, event.Seats, trip, formatFare(event.TotalFareCents))
	case kafka.EventBookingCancelled:
		subject = "Booking cancelled: " + event.PNR
		body = fmt.Sprintf("Your booking %s on %s has been cancelled.", event.PNR, trip)
	case kafka.EventSeatAssigned:
		subject = "Seat assigned: " + event.PNR
		body = fmt.Sprintf("A seat has been assigned on your booking %s on %s.", event.PNR, trip)
	default:
		subject = "Booking update: " + event.PNR
		body = fmt.Sprintf("Your booking %s is now %s.", event.PNR, event.Status)
	}
	return subject, body
}

func formatFare(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

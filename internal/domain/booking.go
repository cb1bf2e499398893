package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// ParseBookingStatus accepts the upper-case wire names only.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return BookingStatus(s), true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal status change.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch {
	case s == BookingStatusPending && to == BookingStatusConfirmed:
		return true
	case s == BookingStatusConfirmed && to == BookingStatusCancelled:
		return true
	}
	return false
}

type Passenger struct {
	Name      string `json:"name" db:"name"`
	Age       int    `json:"age" db:"age"`
	Gender    string `json:"gender" db:"gender"`
	SeatLabel string `json:"seat_label,omitempty" db:"seat_label"`
}

type Booking struct {
	ID             int64
	PNR            string
	UserID         int64
	TrainID        int64
	ClassID        string
	JourneyDate    time.Time
	Passengers     []Passenger
	TotalFareCents int64
	Status         BookingStatus
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (b *Booking) Key() InventoryKey {
	return NewInventoryKey(b.TrainID, b.ClassID, b.JourneyDate)
}

func (b *Booking) SeatCount() int {
	return len(b.Passengers)
}

// Clone returns a deep copy so stored records never alias caller memory.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Passengers = append([]Passenger(nil), b.Passengers...)
	return &c
}

type Payment struct {
	BookingID   int64
	AmountCents int64
	Method      string
	RecordedAt  time.Time
}

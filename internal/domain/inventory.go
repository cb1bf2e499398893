package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// InventoryKey identifies one bookable capacity pool.
type InventoryKey struct {
	TrainID     int64
	ClassID     string
	JourneyDate time.Time
}

func NewInventoryKey(trainID int64, classID string, journeyDate time.Time) InventoryKey {
	return InventoryKey{TrainID: trainID, ClassID: classID, JourneyDate: NormalizeDate(journeyDate)}
}

// NormalizeDate keeps the civil date of t and drops the clock and zone.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.TrainID, k.ClassID, FormatDate(k.JourneyDate))
}

type SeatClassInventory struct {
	Key        InventoryKey
	TotalSeats int
	HeldSeats  int
	// Version increases with every change to HeldSeats.
	Version   int64
	UpdatedAt time.Time
}

func (s SeatClassInventory) Available() int {
	return s.TotalSeats - s.HeldSeats
}

// KeyCount is the number of seats held by active bookings for one key.
type KeyCount struct {
	Key   InventoryKey
	Seats int
}

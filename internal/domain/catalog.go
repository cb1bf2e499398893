package domain

// TrainClass is one seat class of a train as listed in the catalog.
type TrainClass struct {
	TrainID       int64  `json:"train_id"`
	ClassID       string `json:"class_id"`
	Name          string `json:"name"`
	UnitFareCents int64  `json:"unit_fare_cents"`
	TotalSeats    int    `json:"total_seats"`
}

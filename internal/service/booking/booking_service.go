// Package booking is the booking engine. It is the only caller that combines
// inventory reservations with ledger writes, and owns the booking state machine.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/ledger"
	"github.com/Domenick1991/railbooking/internal/pnr"
)

const (
	maxPassengerAge = 150
	maxSeatLabelLen = 8
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	AssignSeatLabel(ctx context.Context, id int64, passengerIndex int, label string) (*domain.Booking, error)
}

type Catalog interface {
	GetTrainClass(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

type CreateBookingInput struct {
	UserID      int64
	TrainID     int64
	ClassID     string
	JourneyDate time.Time
	Passengers  []domain.Passenger
}

type BookingService struct {
	inventory inventory.Store
	ledger    ledger.Ledger
	pnrs      pnr.Generator
	catalog   Catalog
	users     UserDirectory
	producer  Producer
	log       *slog.Logger
	now       func() time.Time
	location  *time.Location

	bookingTopic        string
	notificationsTopic  string
	obligationTopic     string
	pnrAttempts         int
	releaseAttempts     int
	releaseBackoff      time.Duration
	compensationTimeout time.Duration
}

type BookingServiceOption func(*BookingService)

func WithUserDirectory(users UserDirectory) BookingServiceOption {
	return func(s *BookingService) {
		s.users = users
	}
}

// WithProducer enables booking events and release obligations. An empty topic
// disables that stream.
func WithProducer(p Producer, bookingTopic, notificationsTopic, obligationTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
		s.bookingTopic = bookingTopic
		s.notificationsTopic = notificationsTopic
		s.obligationTopic = obligationTopic
	}
}

func WithLogger(log *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

// WithLocation sets the zone whose calendar decides whether a journey date is in the past.
func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithPNRAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.pnrAttempts = n
		}
	}
}

// WithReleasePolicy bounds the retries of a seat release that has to succeed
// after the caller is gone. Attempt i waits i*backoff before the next one.
func WithReleasePolicy(attempts int, backoff, timeout time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if attempts > 0 {
			s.releaseAttempts = attempts
		}
		if backoff >= 0 {
			s.releaseBackoff = backoff
		}
		if timeout > 0 {
			s.compensationTimeout = timeout
		}
	}
}

func NewBookingService(
	store inventory.Store,
	bookings ledger.Ledger,
	pnrs pnr.Generator,
	catalog Catalog,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		inventory:           store,
		ledger:              bookings,
		pnrs:                pnrs,
		catalog:             catalog,
		log:                 slog.Default(),
		now:                 time.Now,
		location:            time.UTC,
		pnrAttempts:         5,
		releaseAttempts:     5,
		releaseBackoff:      200 * time.Millisecond,
		compensationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	const op = "booking.CreateBooking"

	passengers, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, op, input.UserID); err != nil {
		return nil, err
	}

	class, err := s.catalog.GetTrainClass(ctx, input.TrainID, input.ClassID)
	if err != nil {
		return nil, err
	}

	key := domain.NewInventoryKey(input.TrainID, class.ClassID, input.JourneyDate)
	seats := len(passengers)
	log := s.log.With("key", key.String(), "user_id", input.UserID, "seats", seats)

	if err := s.inventory.Ensure(ctx, key, class.TotalSeats); err != nil {
		return nil, err
	}
	res, err := s.inventory.TryReserve(ctx, key, seats)
	if err != nil {
		log.InfoContext(ctx, "reservation rejected", "error", err)
		return nil, err
	}

	booking := &domain.Booking{
		UserID:         input.UserID,
		TrainID:        input.TrainID,
		ClassID:        class.ClassID,
		JourneyDate:    key.JourneyDate,
		Passengers:     passengers,
		TotalFareCents: class.UnitFareCents * int64(seats),
		Status:         domain.BookingStatusConfirmed,
	}

	if err := s.insertWithPNR(ctx, op, booking); err != nil {
		log.WarnContext(ctx, "booking insert failed, releasing seats", "reservation", res.Token, "error", err)
		_ = s.releaseSeats(ctx, key, seats, "create_failed", booking.PNR)
		return nil, err
	}

	log.InfoContext(ctx, "booking created", "booking_id", booking.ID, "pnr", booking.PNR, "reservation", res.Token)
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

// CancelBooking persists CANCELLED before giving seats back. If the process
// dies in between, held stays too high until reconciliation; a retried cancel
// sees CANCELLED and never releases twice.
func (s *BookingService) CancelBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "booking.CancelBooking"

	current, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.BookingStatusCancelled {
		return nil, domain.E(domain.KindInvalidState, op, "booking is already cancelled")
	}
	if !current.Status.CanTransition(domain.BookingStatusCancelled) {
		return nil, domain.E(domain.KindInvalidState, op, fmt.Sprintf("cannot cancel a %s booking", current.Status))
	}

	current.Status = domain.BookingStatusCancelled
	if err := s.ledger.Update(ctx, current); err != nil {
		return nil, err
	}

	if err := s.releaseSeats(ctx, current.Key(), current.SeatCount(), "cancel", current.PNR); err != nil {
		s.log.ErrorContext(ctx, "booking cancelled but seats still held", "booking_id", id, "pnr", current.PNR, "error", err)
	}

	s.log.InfoContext(ctx, "booking cancelled", "booking_id", id, "pnr", current.PNR, "seats", current.SeatCount())
	s.publish(ctx, kafka.EventBookingCancelled, current)
	return current, nil
}

// UpdateStatus is the administrative transition entry point. Cancellation goes
// through CancelBooking so seats are always returned.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	const op = "booking.UpdateStatus"

	next, ok := domain.ParseBookingStatus(string(status))
	if !ok {
		return nil, domain.InvalidInput(op, "status", fmt.Sprintf("unknown status %q", status))
	}
	if next == domain.BookingStatusCancelled {
		return s.CancelBooking(ctx, id)
	}

	current, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		return nil, domain.E(domain.KindInvalidState, op, fmt.Sprintf("transition %s -> %s is not allowed", current.Status, next))
	}

	// A pending booking holds no seats; confirming it has to claim them first.
	key, seats := current.Key(), current.SeatCount()
	class, err := s.catalog.GetTrainClass(ctx, current.TrainID, current.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.inventory.Ensure(ctx, key, class.TotalSeats); err != nil {
		return nil, err
	}
	if _, err := s.inventory.TryReserve(ctx, key, seats); err != nil {
		return nil, err
	}

	current.Status = next
	if err := s.ledger.Update(ctx, current); err != nil {
		_ = s.releaseSeats(ctx, key, seats, "confirm_failed", current.PNR)
		return nil, err
	}

	s.log.InfoContext(ctx, "booking confirmed", "booking_id", id, "pnr", current.PNR)
	s.publish(ctx, kafka.EventBookingConfirmed, current)
	return current, nil
}

func (s *BookingService) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	if id <= 0 {
		return nil, domain.InvalidInput("booking.GetByID", "id", "must be positive")
	}
	return s.ledger.GetByID(ctx, id)
}

func (s *BookingService) GetByPNR(ctx context.Context, code string) (*domain.Booking, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	// A malformed reference can never have been issued.
	if !pnr.Valid(code) {
		return nil, domain.NotFound("booking.GetByPNR", "booking")
	}
	return s.ledger.GetByPNR(ctx, code)
}

func (s *BookingService) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "booking.ListByUser"
	if userID <= 0 {
		return nil, domain.InvalidInput(op, "user_id", "must be positive")
	}
	if err := s.ensureUser(ctx, op, userID); err != nil {
		return nil, err
	}
	return s.ledger.ListByUser(ctx, userID)
}

// AssignSeatLabel records a manually chosen seat for one passenger.
func (s *BookingService) AssignSeatLabel(ctx context.Context, id int64, passengerIndex int, label string) (*domain.Booking, error) {
	const op = "booking.AssignSeatLabel"

	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" || len(label) > maxSeatLabelLen {
		return nil, domain.InvalidInput(op, "seat_label", fmt.Sprintf("must be 1-%d characters", maxSeatLabelLen))
	}

	current, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusConfirmed {
		return nil, domain.E(domain.KindInvalidState, op, "seats can only be assigned on confirmed bookings")
	}
	if passengerIndex < 0 || passengerIndex >= len(current.Passengers) {
		return nil, domain.InvalidInput(op, "passenger_index", "out of range")
	}
	for i, p := range current.Passengers {
		if i != passengerIndex && p.SeatLabel == label {
			return nil, domain.InvalidInput(op, "seat_label", "already assigned to another passenger")
		}
	}

	current.Passengers[passengerIndex].SeatLabel = label
	if err := s.ledger.Update(ctx, current); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.EventSeatAssigned, current)
	return current, nil
}

func (s *BookingService) validate(input CreateBookingInput) ([]domain.Passenger, error) {
	const op = "booking.CreateBooking"

	if input.UserID <= 0 {
		return nil, domain.InvalidInput(op, "user_id", "must be positive")
	}
	if input.TrainID <= 0 {
		return nil, domain.InvalidInput(op, "train_id", "must be positive")
	}
	if strings.TrimSpace(input.ClassID) == "" {
		return nil, domain.InvalidInput(op, "class_id", "is required")
	}
	if input.JourneyDate.IsZero() {
		return nil, domain.InvalidInput(op, "journey_date", "is required")
	}
	today := domain.NormalizeDate(s.now().In(s.location))
	if domain.NormalizeDate(input.JourneyDate).Before(today) {
		return nil, domain.InvalidInput(op, "journey_date", "is in the past")
	}
	if len(input.Passengers) == 0 {
		return nil, domain.InvalidInput(op, "passengers", "at least one passenger is required")
	}

	passengers := make([]domain.Passenger, len(input.Passengers))
	for i, p := range input.Passengers {
		field := fmt.Sprintf("passengers[%d]", i)
		p.Name = strings.TrimSpace(p.Name)
		p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
		p.SeatLabel = ""
		switch {
		case p.Name == "":
			return nil, domain.InvalidInput(op, field+".name", "is required")
		case p.Age < 0 || p.Age > maxPassengerAge:
			return nil, domain.InvalidInput(op, field+".age", fmt.Sprintf("must be between 0 and %d", maxPassengerAge))
		case p.Gender == "":
			return nil, domain.InvalidInput(op, field+".gender", "is required")
		}
		passengers[i] = p
	}
	return passengers, nil
}

func (s *BookingService) ensureUser(ctx context.Context, op string, userID int64) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound(op, "user")
	}
	return nil
}

func (s *BookingService) insertWithPNR(ctx context.Context, op string, b *domain.Booking) error {
	for attempt := 1; attempt <= s.pnrAttempts; attempt++ {
		code, err := s.pnrs.Next()
		if err != nil {
			return domain.Wrap(domain.KindInternal, op, err)
		}
		b.PNR = code

		err = s.ledger.Insert(ctx, b)
		if err == nil {
			return nil
		}
		if !ledger.IsPNRTaken(err) {
			return err
		}
		s.log.WarnContext(ctx, "pnr collision", "pnr", code, "attempt", attempt)
	}
	b.PNR = ""
	return domain.E(domain.KindConflict, op, fmt.Sprintf("no unique pnr after %d attempts", s.pnrAttempts))
}

// releaseSeats gives seats back on a context detached from the caller, so a
// caller that timed out still gets its reservation undone. When every attempt
// fails the seats are handed to the worker as a release obligation.
func (s *BookingService) releaseSeats(ctx context.Context, key domain.InventoryKey, count int, reason, code string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	var lastErr error
retry:
	for attempt := 1; attempt <= s.releaseAttempts; attempt++ {
		lastErr = s.inventory.Release(rctx, key, count)
		if lastErr == nil {
			return nil
		}
		if !domain.IsTransient(lastErr) || attempt == s.releaseAttempts {
			break
		}
		s.log.WarnContext(rctx, "seat release failed, retrying", "key", key.String(), "count", count, "attempt", attempt, "error", lastErr)

		select {
		case <-rctx.Done():
			break retry
		case <-time.After(time.Duration(attempt) * s.releaseBackoff):
		}
	}

	s.log.ErrorContext(rctx, "inventory inconsistency: seats held without a confirmed booking",
		"key", key.String(), "count", count, "reason", reason, "pnr", code, "error", lastErr)
	s.publishObligation(ctx, key, count, reason, code)
	return lastErr
}

func (s *BookingService) publishObligation(ctx context.Context, key domain.InventoryKey, count int, reason, code string) {
	if s.producer == nil || s.obligationTopic == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	obligation := kafka.NewReleaseObligation(key, count, reason, code)
	if err := s.producer.PublishWithRetry(pctx, s.obligationTopic, key.String(), obligation, 3); err != nil {
		s.log.ErrorContext(pctx, "release obligation not published, reconciliation required",
			"key", key.String(), "count", count, "error", err)
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, booking)
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.PNR, event); err != nil {
		s.log.WarnContext(ctx, "failed to publish booking event", "type", eventType, "pnr", booking.PNR, "error", err)
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.PNR, event); err != nil {
			s.log.WarnContext(ctx, "failed to publish notification", "type", eventType, "pnr", booking.PNR, "error", err)
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)

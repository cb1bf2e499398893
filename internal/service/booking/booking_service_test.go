package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/ledger"
	"github.com/Domenick1991/railbooking/internal/pnr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetTrainClass(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error) {
	args := m.Called(ctx, trainID, classID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrainClass), args.Error(1)
}

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) Exists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func (m *MockProducer) PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error {
	args := m.Called(ctx, topic, key, value, maxRetries)
	return args.Error(0)
}

// Stubs

type stubGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *stubGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.codes) == 0 {
		return "", errors.New("stub generator exhausted")
	}
	code := g.codes[0]
	g.codes = g.codes[1:]
	return code, nil
}

// failingLedger fails Insert with insertErr while it is set.
type failingLedger struct {
	*ledger.MemoryLedger
	insertErr error
	onInsert  func()
}

func (l *failingLedger) Insert(ctx context.Context, b *domain.Booking) error {
	if l.onInsert != nil {
		l.onInsert()
	}
	if l.insertErr != nil {
		return l.insertErr
	}
	return l.MemoryLedger.Insert(ctx, b)
}

// flakyStore fails the first releaseFailures calls to Release with a transient error.
type flakyStore struct {
	*inventory.MemoryStore
	releaseFailures atomic.Int32
	releaseCalls    atomic.Int32
}

func (s *flakyStore) Release(ctx context.Context, key domain.InventoryKey, count int) error {
	s.releaseCalls.Add(1)
	if s.releaseFailures.Add(-1) >= 0 {
		return domain.E(domain.KindTransient, "inventory.Release", "lock timeout")
	}
	return s.MemoryStore.Release(ctx, key, count)
}

// Fixtures

const (
	testTrain = int64(12951)
	testClass = "3A"
	testUser  = int64(42)
)

var (
	testNow     = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	testJourney = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	testKey     = domain.NewInventoryKey(testTrain, testClass, testJourney)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalog(totalSeats int, unitFare int64) *MockCatalog {
	c := &MockCatalog{}
	c.On("GetTrainClass", mock.Anything, testTrain, testClass).Return(&domain.TrainClass{
		TrainID:       testTrain,
		ClassID:       testClass,
		Name:          "AC 3 Tier",
		UnitFareCents: unitFare,
		TotalSeats:    totalSeats,
	}, nil)
	return c
}

func newTestService(store inventory.Store, l ledger.Ledger, gen pnr.Generator, catalog Catalog, opts ...BookingServiceOption) *BookingService {
	if gen == nil {
		gen, _ = pnr.NewGenerator("PNR")
	}
	base := []BookingServiceOption{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
		WithReleasePolicy(3, time.Millisecond, time.Second),
	}
	return NewBookingService(store, l, gen, catalog, append(base, opts...)...)
}

func passengers(n int) []domain.Passenger {
	out := make([]domain.Passenger, n)
	for i := range out {
		out[i] = domain.Passenger{Name: "Passenger", Age: 30 + i, Gender: "f"}
	}
	return out
}

func bookingInput(n int) CreateBookingInput {
	return CreateBookingInput{
		UserID:      testUser,
		TrainID:     testTrain,
		ClassID:     testClass,
		JourneyDate: testJourney,
		Passengers:  passengers(n),
	}
}

func heldSeats(t *testing.T, store inventory.Store) int {
	t.Helper()
	_, held, err := store.CapacityOf(context.Background(), testKey)
	require.NoError(t, err)
	return held
}

func confirmedSeats(t *testing.T, l ledger.Ledger) int {
	t.Helper()
	counts, err := l.ActiveSeatCounts(context.Background())
	require.NoError(t, err)
	for _, c := range counts {
		if c.Key == testKey {
			return c.Seats
		}
	}
	return 0
}

// CreateBooking

func TestBookingService_CreateBooking_Success(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(64, 150000))

	b, err := svc.CreateBooking(context.Background(), bookingInput(3))

	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.True(t, pnr.Valid(b.PNR))
	assert.Equal(t, "PNR", b.PNR[:3])
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	assert.Equal(t, int64(450000), b.TotalFareCents)
	assert.Equal(t, "F", b.Passengers[0].Gender)
	assert.Equal(t, 3, heldSeats(t, store))

	stored, err := bookings.GetByPNR(context.Background(), b.PNR)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
}

func TestBookingService_CreateBooking_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateBookingInput)
		field  string
	}{
		{"no passengers", func(in *CreateBookingInput) { in.Passengers = nil }, "passengers"},
		{"negative age", func(in *CreateBookingInput) { in.Passengers[0].Age = -1 }, "passengers[0].age"},
		{"age too high", func(in *CreateBookingInput) { in.Passengers[1].Age = 151 }, "passengers[1].age"},
		{"empty gender", func(in *CreateBookingInput) { in.Passengers[0].Gender = "  " }, "passengers[0].gender"},
		{"empty name", func(in *CreateBookingInput) { in.Passengers[1].Name = "" }, "passengers[1].name"},
		{"journey yesterday", func(in *CreateBookingInput) { in.JourneyDate = testNow.AddDate(0, 0, -1) }, "journey_date"},
		{"zero journey date", func(in *CreateBookingInput) { in.JourneyDate = time.Time{} }, "journey_date"},
		{"missing train", func(in *CreateBookingInput) { in.TrainID = 0 }, "train_id"},
		{"missing class", func(in *CreateBookingInput) { in.ClassID = "" }, "class_id"},
		{"missing user", func(in *CreateBookingInput) { in.UserID = 0 }, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inventory.NewMemoryStore(time.Second)
			catalog := newCatalog(10, 100)
			svc := newTestService(store, ledger.NewMemoryLedger(), nil, catalog)

			in := bookingInput(2)
			tt.mutate(&in)
			b, err := svc.CreateBooking(context.Background(), in)

			assert.Nil(t, b)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.field)
			catalog.AssertNotCalled(t, "GetTrainClass", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_CreateBooking_TodayIsAllowed(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	catalog := &MockCatalog{}
	catalog.On("GetTrainClass", mock.Anything, testTrain, testClass).
		Return(&domain.TrainClass{TrainID: testTrain, ClassID: testClass, UnitFareCents: 100, TotalSeats: 4}, nil)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, catalog)

	in := bookingInput(1)
	in.JourneyDate = time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	b, err := svc.CreateBooking(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), b.JourneyDate)
}

func TestBookingService_CreateBooking_PastDateUsesConfiguredZone(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 16th is already the 17th in IST.
	now := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	svc := newTestService(inventory.NewMemoryStore(time.Second), ledger.NewMemoryLedger(), nil, newCatalog(4, 100),
		WithClock(func() time.Time { return now }), WithLocation(kolkata))

	in := bookingInput(1)
	in.JourneyDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	_, err := svc.CreateBooking(context.Background(), in)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBookingService_CreateBooking_UnknownUser(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	users := &MockUserDirectory{}
	users.On("Exists", mock.Anything, testUser).Return(false, nil)
	catalog := newCatalog(10, 100)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, catalog, WithUserDirectory(users))

	_, err := svc.CreateBooking(context.Background(), bookingInput(1))

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "user not found")
	catalog.AssertNotCalled(t, "GetTrainClass", mock.Anything, mock.Anything, mock.Anything)
	users.AssertExpectations(t)
}

func TestBookingService_CreateBooking_UnknownClass(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	catalog := &MockCatalog{}
	catalog.On("GetTrainClass", mock.Anything, testTrain, testClass).
		Return(nil, domain.NotFound("catalog.GetTrainClass", "train class"))
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, catalog)

	_, err := svc.CreateBooking(context.Background(), bookingInput(1))

	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = store.CapacityOf(context.Background(), testKey)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no inventory record is created for an unknown class")
}

func TestBookingService_CreateBooking_Boundary(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(5, 100))
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(3))
	require.NoError(t, err)

	// Exactly total-held passengers fits.
	_, err = svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)
	assert.Equal(t, 5, heldSeats(t, store))

	b, err := svc.CreateBooking(ctx, bookingInput(1))
	assert.Nil(t, b)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 5, heldSeats(t, store))
}

func TestBookingService_CreateBooking_OneMoreThanAvailableFails(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(4, 100))
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(1))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, bookingInput(4))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 1, heldSeats(t, store))

	list, err := bookings.ListByUser(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, list, 1, "a rejected booking leaves no record")
}

func TestBookingService_CreateBooking_PNRCollisionRetriesOnce(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	gen := &stubGenerator{codes: []string{"PNRAAAA1111", "PNRAAAA1111", "PNRBBBB2222"}}
	svc := newTestService(store, ledger.NewMemoryLedger(), gen, newCatalog(10, 100))
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, bookingInput(1))
	require.NoError(t, err)
	assert.Equal(t, "PNRAAAA1111", first.PNR)
	assert.Equal(t, 1, gen.calls)

	second, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)
	assert.Equal(t, "PNRBBBB2222", second.PNR)
	assert.Equal(t, 3, gen.calls, "exactly one retry after the collision")
	assert.Equal(t, 3, heldSeats(t, store))
}

func TestBookingService_CreateBooking_PNRAttemptsExhausted(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	gen := &stubGenerator{codes: []string{"PNRAAAA1111", "PNRAAAA1111", "PNRAAAA1111", "PNRAAAA1111"}}
	svc := newTestService(store, bookings, gen, newCatalog(10, 100), WithPNRAttempts(3))
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(1))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, bookingInput(2))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 4, gen.calls)
	assert.Equal(t, 1, heldSeats(t, store), "seats of the failed booking are released")
}

func TestBookingService_CreateBooking_CompensatesFailedInsert(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := &failingLedger{
		MemoryLedger: ledger.NewMemoryLedger(),
		insertErr:    domain.E(domain.KindTransient, "ledger.Insert", "connection reset"),
	}
	svc := newTestService(store, bookings, nil, newCatalog(10, 100))
	ctx := context.Background()

	require.NoError(t, store.Ensure(ctx, testKey, 10))
	_, err := store.TryReserve(ctx, testKey, 4)
	require.NoError(t, err)

	b, err := svc.CreateBooking(ctx, bookingInput(3))

	assert.Nil(t, b)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 4, heldSeats(t, store), "held returns to its pre-call value")
}

func TestBookingService_CreateBooking_CompensatesAfterCallerGaveUp(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	bookings := &failingLedger{
		MemoryLedger: ledger.NewMemoryLedger(),
		insertErr:    domain.Wrap(domain.KindTransient, "ledger.Insert", context.Canceled),
		onInsert:     cancel,
	}
	svc := newTestService(store, bookings, nil, newCatalog(10, 100))

	_, err := svc.CreateBooking(ctx, bookingInput(2))

	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 0, heldSeats(t, store))
}

func TestBookingService_CreateBooking_RetriesTransientRelease(t *testing.T) {
	store := &flakyStore{MemoryStore: inventory.NewMemoryStore(time.Second)}
	store.releaseFailures.Store(2)
	bookings := &failingLedger{MemoryLedger: ledger.NewMemoryLedger(), insertErr: errors.New("disk full")}
	svc := newTestService(store, bookings, nil, newCatalog(10, 100))

	_, err := svc.CreateBooking(context.Background(), bookingInput(2))

	assert.Error(t, err)
	assert.Equal(t, int32(3), store.releaseCalls.Load())
	assert.Equal(t, 0, heldSeats(t, store))
}

func TestBookingService_CreateBooking_PublishesObligationWhenReleaseKeepsFailing(t *testing.T) {
	store := &flakyStore{MemoryStore: inventory.NewMemoryStore(time.Second)}
	store.releaseFailures.Store(100)
	bookings := &failingLedger{MemoryLedger: ledger.NewMemoryLedger(), insertErr: errors.New("disk full")}
	producer := &MockProducer{}
	producer.On("PublishWithRetry", mock.Anything, "inventory.release_obligations", testKey.String(),
		mock.MatchedBy(func(o kafka.ReleaseObligation) bool {
			return o.Count == 2 && o.Reason == "create_failed" && o.TrainID == testTrain && o.JourneyDate == "2026-12-01"
		}), 3).Return(nil).Once()
	svc := newTestService(store, bookings, nil, newCatalog(10, 100),
		WithProducer(producer, "booking.events", "", "inventory.release_obligations"))

	_, err := svc.CreateBooking(context.Background(), bookingInput(2))

	assert.Error(t, err)
	assert.Equal(t, int32(3), store.releaseCalls.Load())
	assert.Equal(t, 2, heldSeats(t, store))
	producer.AssertExpectations(t)
	producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_PublishesEvents(t *testing.T) {
	producer := &MockProducer{}
	isCreated := mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCreated && e.Seats == 2 && e.TotalFareCents == 200
	})
	producer.On("Publish", mock.Anything, "booking.events", mock.AnythingOfType("string"), isCreated).Return(nil).Once()
	producer.On("Publish", mock.Anything, "booking.notifications", mock.AnythingOfType("string"), isCreated).Return(nil).Once()
	svc := newTestService(inventory.NewMemoryStore(time.Second), ledger.NewMemoryLedger(), nil, newCatalog(10, 100),
		WithProducer(producer, "booking.events", "booking.notifications", "inventory.release_obligations"))

	_, err := svc.CreateBooking(context.Background(), bookingInput(2))

	require.NoError(t, err)
	producer.AssertExpectations(t)
}

func TestBookingService_CreateBooking_EventFailureDoesNotFailBooking(t *testing.T) {
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, "booking.events", mock.Anything, mock.Anything).Return(errors.New("kafka down"))
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(10, 100),
		WithProducer(producer, "booking.events", "booking.notifications", ""))

	b, err := svc.CreateBooking(context.Background(), bookingInput(1))

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	producer.AssertNumberOfCalls(t, "Publish", 1)
}

// CancelBooking

func TestBookingService_CancelBooking(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(10, 100))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, bookingInput(3))
	require.NoError(t, err)

	cancelled, err := svc.CancelBooking(ctx, b.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, heldSeats(t, store))

	stored, err := bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Equal(t, b.PNR, stored.PNR)
}

func TestBookingService_CancelBooking_Twice(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(10, 100))
	ctx := context.Background()

	keep, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)
	b, err := svc.CreateBooking(ctx, bookingInput(3))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, b.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 2, heldSeats(t, store), "second cancel leaves inventory unchanged")
	assert.NotZero(t, keep.ID)
}

func TestBookingService_CancelBooking_NotFound(t *testing.T) {
	svc := newTestService(inventory.NewMemoryStore(time.Second), ledger.NewMemoryLedger(), nil, newCatalog(10, 100))

	_, err := svc.CancelBooking(context.Background(), 999)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_CancelBooking_ConcurrentCancelsReleaseOnce(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(10, 100))
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(4))
	require.NoError(t, err)
	b, err := svc.CreateBooking(ctx, bookingInput(3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CancelBooking(ctx, b.ID); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidState)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 4, heldSeats(t, store))
}

func TestBookingService_CancelBooking_ReleaseFailureStillCancels(t *testing.T) {
	store := &flakyStore{MemoryStore: inventory.NewMemoryStore(time.Second)}
	store.releaseFailures.Store(100)
	bookings := ledger.NewMemoryLedger()
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	producer.On("PublishWithRetry", mock.Anything, "inventory.release_obligations", testKey.String(),
		mock.MatchedBy(func(o kafka.ReleaseObligation) bool { return o.Reason == "cancel" && o.Count == 2 }), 3).
		Return(nil).Once()
	svc := newTestService(store, bookings, nil, newCatalog(10, 100),
		WithProducer(producer, "booking.events", "", "inventory.release_obligations"))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)

	cancelled, err := svc.CancelBooking(ctx, b.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 2, heldSeats(t, store))
	assert.Equal(t, 0, confirmedSeats(t, bookings))
	producer.AssertExpectations(t)
}

// UpdateStatus

func TestBookingService_UpdateStatus_CancelReleasesSeats(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(10, 100))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, b.ID, domain.BookingStatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, updated.Status)
	assert.Equal(t, 0, heldSeats(t, store))

	_, err = svc.UpdateStatus(ctx, b.ID, domain.BookingStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestBookingService_UpdateStatus_Rejections(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	svc := newTestService(store, ledger.NewMemoryLedger(), nil, newCatalog(10, 100))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, b.ID, domain.BookingStatus("WAITING"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.UpdateStatus(ctx, b.ID, domain.BookingStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.UpdateStatus(ctx, b.ID, domain.BookingStatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.UpdateStatus(ctx, 999, domain.BookingStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 2, heldSeats(t, store))
}

func TestBookingService_UpdateStatus_ConfirmPendingClaimsSeats(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(3, 100))
	ctx := context.Background()

	require.NoError(t, store.Ensure(ctx, testKey, 3))
	pending := &domain.Booking{
		PNR: "PNRPEND0001", UserID: testUser, TrainID: testTrain, ClassID: testClass,
		JourneyDate: testJourney, Passengers: passengers(2), TotalFareCents: 200,
		Status: domain.BookingStatusPending,
	}
	require.NoError(t, bookings.Insert(ctx, pending))

	confirmed, err := svc.UpdateStatus(ctx, pending.ID, domain.BookingStatusConfirmed)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, 2, heldSeats(t, store))
	assert.Equal(t, 2, confirmedSeats(t, bookings))
}

func TestBookingService_UpdateStatus_ConfirmPendingWithoutCapacity(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(1, 100))
	ctx := context.Background()

	require.NoError(t, store.Ensure(ctx, testKey, 1))
	pending := &domain.Booking{
		PNR: "PNRPEND0002", UserID: testUser, TrainID: testTrain, ClassID: testClass,
		JourneyDate: testJourney, Passengers: passengers(2), Status: domain.BookingStatusPending,
	}
	require.NoError(t, bookings.Insert(ctx, pending))

	_, err := svc.UpdateStatus(ctx, pending.ID, domain.BookingStatusConfirmed)

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	stored, err := bookings.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, stored.Status)
	assert.Equal(t, 0, heldSeats(t, store))
}

// Reads

func TestBookingService_Reads(t *testing.T) {
	users := &MockUserDirectory{}
	users.On("Exists", mock.Anything, testUser).Return(true, nil)
	users.On("Exists", mock.Anything, int64(7)).Return(false, nil)
	svc := newTestService(inventory.NewMemoryStore(time.Second), ledger.NewMemoryLedger(), nil, newCatalog(10, 100),
		WithUserDirectory(users))
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, bookingInput(1))
	require.NoError(t, err)
	second, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PNR, got.PNR)

	got, err = svc.GetByPNR(ctx, " "+second.PNR+" ")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = svc.GetByPNR(ctx, "PNRZZZZ9999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByPNR(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	list, err := svc.ListByUser(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = svc.ListByUser(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// AssignSeatLabel

func TestBookingService_AssignSeatLabel(t *testing.T) {
	svc := newTestService(inventory.NewMemoryStore(time.Second), ledger.NewMemoryLedger(), nil, newCatalog(10, 100))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)

	updated, err := svc.AssignSeatLabel(ctx, b.ID, 1, " b1-23 ")
	require.NoError(t, err)
	assert.Equal(t, "B1-23", updated.Passengers[1].SeatLabel)
	assert.Empty(t, updated.Passengers[0].SeatLabel)

	_, err = svc.AssignSeatLabel(ctx, b.ID, 0, "B1-23")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AssignSeatLabel(ctx, b.ID, 2, "B1-24")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AssignSeatLabel(ctx, b.ID, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.AssignSeatLabel(ctx, b.ID, 0, "B1-24")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

// Properties

func TestBookingService_EndToEndScenario(t *testing.T) {
	store := inventory.NewMemoryStore(time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(2, 100))
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, bookingInput(2))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, first.Status)
	assert.Equal(t, int64(200), first.TotalFareCents)
	assert.Equal(t, 2, heldSeats(t, store))

	_, err = svc.CreateBooking(ctx, bookingInput(1))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	cancelled, err := svc.CancelBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, heldSeats(t, store))

	retried, err := svc.CreateBooking(ctx, bookingInput(1))
	require.NoError(t, err)
	assert.Equal(t, int64(100), retried.TotalFareCents)
	assert.Equal(t, 1, heldSeats(t, store))
	assert.Equal(t, heldSeats(t, store), confirmedSeats(t, bookings))
}

func TestBookingService_ConcurrentCreateAndCancelConserveSeats(t *testing.T) {
	const total = 20
	store := inventory.NewMemoryStore(5 * time.Second)
	bookings := ledger.NewMemoryLedger()
	svc := newTestService(store, bookings, nil, newCatalog(total, 100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := svc.CreateBooking(ctx, bookingInput(1+i%3))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
				return
			}
			if i%4 == 0 {
				_, err := svc.CancelBooking(ctx, b.ID)
				assert.NoError(t, err)
			}

			_, held, err := store.CapacityOf(ctx, testKey)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, held, 0)
			assert.LessOrEqual(t, held, total)
		}(i)
	}
	wg.Wait()

	held := heldSeats(t, store)
	assert.LessOrEqual(t, held, total)
	assert.Equal(t, confirmedSeats(t, bookings), held)
}

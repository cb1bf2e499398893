package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const selectBookingColumns = `SELECT id, pnr, user_id, train_id, class_id, journey_date,
	total_fare_cents, status, version, created_at, updated_at FROM bookings`

const insertPassenger = `INSERT INTO booking_passengers (booking_id, position, name, age, gender, seat_label)
	VALUES (:booking_id, :position, :name, :age, :gender, :seat_label)`

type bookingRow struct {
	ID             int64     `db:"id"`
	PNR            string    `db:"pnr"`
	UserID         int64     `db:"user_id"`
	TrainID        int64     `db:"train_id"`
	ClassID        string    `db:"class_id"`
	JourneyDate    time.Time `db:"journey_date"`
	TotalFareCents int64     `db:"total_fare_cents"`
	Status         string    `db:"status"`
	Version        int       `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r bookingRow) toDomain(passengers []passengerRow) *domain.Booking {
	b := &domain.Booking{
		ID:             r.ID,
		PNR:            r.PNR,
		UserID:         r.UserID,
		TrainID:        r.TrainID,
		ClassID:        r.ClassID,
		JourneyDate:    domain.NormalizeDate(r.JourneyDate),
		TotalFareCents: r.TotalFareCents,
		Status:         domain.BookingStatus(r.Status),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Passengers:     make([]domain.Passenger, 0, len(passengers)),
	}
	for _, p := range passengers {
		b.Passengers = append(b.Passengers, domain.Passenger{
			Name:      p.Name,
			Age:       p.Age,
			Gender:    p.Gender,
			SeatLabel: p.SeatLabel.String,
		})
	}
	return b
}

type passengerRow struct {
	BookingID int64          `db:"booking_id"`
	Position  int            `db:"position"`
	Name      string         `db:"name"`
	Age       int            `db:"age"`
	Gender    string         `db:"gender"`
	SeatLabel sql.NullString `db:"seat_label"`
}

type keyCountRow struct {
	TrainID     int64     `db:"train_id"`
	ClassID     string    `db:"class_id"`
	JourneyDate time.Time `db:"journey_date"`
	Seats       int       `db:"seats"`
}

// PostgresLedger writes a booking and its passengers in one transaction.
type PostgresLedger struct {
	db *sqlx.DB
}

func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Open connects through lib/pq, optionally wrapped by X-Ray SQL tracing.
func Open(ctx context.Context, dsn string, tracing bool) (*sqlx.DB, error) {
	var (
		raw *sql.DB
		err error
	)
	if tracing {
		raw, err = xray.SQLContext("postgres", dsn)
	} else {
		raw, err = sql.Open("postgres", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	db := sqlx.NewDb(raw, "postgres")
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}
	return db, nil
}

func (l *PostgresLedger) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "ledger.Insert"
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	// b is only touched once the commit succeeds.
	var (
		id                   int64
		createdAt, updatedAt time.Time
	)
	err = tx.QueryRowxContext(ctx, `INSERT INTO bookings
		(pnr, user_id, train_id, class_id, journey_date, total_fare_cents, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING id, created_at, updated_at`,
		b.PNR, b.UserID, b.TrainID, b.ClassID, b.JourneyDate, b.TotalFareCents, string(b.Status)).
		Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		return classify(op, err)
	}

	for i, p := range b.Passengers {
		row := passengerRow{
			BookingID: id,
			Position:  i,
			Name:      p.Name,
			Age:       p.Age,
			Gender:    p.Gender,
			SeatLabel: sql.NullString{String: p.SeatLabel, Valid: p.SeatLabel != ""},
		}
		if _, err := tx.NamedExecContext(ctx, insertPassenger, row); err != nil {
			return classify(op, fmt.Errorf("insert passenger %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	b.ID, b.CreatedAt, b.UpdatedAt, b.Version = id, createdAt, updatedAt, 1
	return nil
}

func (l *PostgresLedger) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return l.getOne(ctx, "ledger.GetByID", selectBookingColumns+` WHERE id=$1`, id)
}

func (l *PostgresLedger) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	return l.getOne(ctx, "ledger.GetByPNR", selectBookingColumns+` WHERE pnr=$1`, pnr)
}

func (l *PostgresLedger) getOne(ctx context.Context, op, query string, arg any) (*domain.Booking, error) {
	var row bookingRow
	if err := l.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "booking")
		}
		return nil, classify(op, err)
	}

	var passengers []passengerRow
	if err := l.db.SelectContext(ctx, &passengers, `SELECT booking_id, position, name, age, gender, seat_label
		FROM booking_passengers WHERE booking_id=$1 ORDER BY position`, row.ID); err != nil {
		return nil, classify(op, err)
	}
	return row.toDomain(passengers), nil
}

func (l *PostgresLedger) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "ledger.ListByUser"
	var rows []bookingRow
	if err := l.db.SelectContext(ctx, &rows, selectBookingColumns+` WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID); err != nil {
		return nil, classify(op, err)
	}
	if len(rows) == 0 {
		return []domain.Booking{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	query, args, err := sqlx.In(`SELECT booking_id, position, name, age, gender, seat_label
		FROM booking_passengers WHERE booking_id IN (?) ORDER BY booking_id, position`, ids)
	if err != nil {
		return nil, classify(op, err)
	}
	var passengers []passengerRow
	if err := l.db.SelectContext(ctx, &passengers, l.db.Rebind(query), args...); err != nil {
		return nil, classify(op, err)
	}

	grouped := make(map[int64][]passengerRow, len(rows))
	for _, p := range passengers {
		grouped[p.BookingID] = append(grouped[p.BookingID], p)
	}
	out := make([]domain.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain(grouped[r.ID]))
	}
	return out, nil
}

func (l *PostgresLedger) Update(ctx context.Context, b *domain.Booking) error {
	const op = "ledger.Update"
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	var (
		version   int
		updatedAt time.Time
	)
	err = tx.QueryRowxContext(ctx, `UPDATE bookings
		SET status=$1, total_fare_cents=$2, version=version+1, updated_at=now()
		WHERE id=$3 AND version=$4
		RETURNING version, updated_at`, string(b.Status), b.TotalFareCents, b.ID, b.Version).
		Scan(&version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id=$1)`, b.ID); err != nil {
			return classify(op, err)
		}
		if !exists {
			return domain.NotFound(op, "booking")
		}
		return ErrStaleBooking
	}
	if err != nil {
		return classify(op, err)
	}

	// Only seat labels are mutable on passengers.
	for i, p := range b.Passengers {
		if _, err := tx.ExecContext(ctx, `UPDATE booking_passengers SET seat_label=$1 WHERE booking_id=$2 AND position=$3`,
			sql.NullString{String: p.SeatLabel, Valid: p.SeatLabel != ""}, b.ID, i); err != nil {
			return classify(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	b.Version = version
	b.UpdatedAt = updatedAt
	return nil
}

func (l *PostgresLedger) ActiveSeatCounts(ctx context.Context) ([]domain.KeyCount, error) {
	var rows []keyCountRow
	err := l.db.SelectContext(ctx, &rows, `SELECT b.train_id, b.class_id, b.journey_date,
			COALESCE(SUM(CASE WHEN b.status = 'CONFIRMED' THEN pc.n ELSE 0 END), 0) AS seats
		FROM bookings b
		JOIN (SELECT booking_id, COUNT(*) AS n FROM booking_passengers GROUP BY booking_id) pc ON pc.booking_id = b.id
		GROUP BY b.train_id, b.class_id, b.journey_date
		ORDER BY b.train_id, b.class_id, b.journey_date`)
	if err != nil {
		return nil, classify("ledger.ActiveSeatCounts", err)
	}
	out := make([]domain.KeyCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.KeyCount{Key: domain.NewInventoryKey(r.TrainID, r.ClassID, r.JourneyDate), Seats: r.Seats})
	}
	return out, nil
}

func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505" && pqErr.Constraint == "bookings_pnr_key":
			return fmt.Errorf("%w (%s)", ErrPNRTaken, pqErr.Constraint)
		case pqErr.Code == "55P03", pqErr.Code == "57014", pqErr.Code == "40001", pqErr.Code == "40P01",
			strings.HasPrefix(string(pqErr.Code), "08"):
			return domain.Wrap(domain.KindTransient, op, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Wrap(domain.KindTransient, op, err)
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

var _ Ledger = (*PostgresLedger)(nil)

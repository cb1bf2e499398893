package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrainClassRepository interface {
	ListByTrain(ctx context.Context, trainID int64) ([]domain.TrainClass, error)
	Get(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error)
}

type PGTrainClassRepository struct {
	db *pgxpool.Pool
}

func NewTrainClassRepository(db *pgxpool.Pool) TrainClassRepository {
	return &PGTrainClassRepository{db: db}
}

func (r *PGTrainClassRepository) ListByTrain(ctx context.Context, trainID int64) ([]domain.TrainClass, error) {
	rows, err := r.db.Query(ctx, `SELECT train_id, class_id, name, unit_fare_cents, total_seats FROM train_classes WHERE train_id=$1 ORDER BY unit_fare_cents DESC`, trainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := make([]domain.TrainClass, 0)
	for rows.Next() {
		var c domain.TrainClass
		if err := rows.Scan(&c.TrainID, &c.ClassID, &c.Name, &c.UnitFareCents, &c.TotalSeats); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (r *PGTrainClassRepository) Get(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error) {
	row := r.db.QueryRow(ctx, `SELECT train_id, class_id, name, unit_fare_cents, total_seats FROM train_classes WHERE train_id=$1 AND class_id=$2`, trainID, classID)
	var c domain.TrainClass
	if err := row.Scan(&c.TrainID, &c.ClassID, &c.Name, &c.UnitFareCents, &c.TotalSeats); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("catalog.GetTrainClass", "train class")
		}
		return nil, err
	}
	return &c, nil
}

var _ TrainClassRepository = (*PGTrainClassRepository)(nil)

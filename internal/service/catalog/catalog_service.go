package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/repository"
)

type CatalogUseCase interface {
	ListClasses(ctx context.Context, trainID int64) ([]domain.TrainClass, error)
	GetTrainClass(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error)
	Availability(ctx context.Context, trainID int64, classID string, date time.Time) (*domain.SeatClassInventory, error)
}

type Cache interface {
	GetTrainClasses(ctx context.Context, trainID int64) ([]domain.TrainClass, error)
	SetTrainClasses(ctx context.Context, trainID int64, classes []domain.TrainClass) error
}

// CapacityReader is the read side of the inventory store.
type CapacityReader interface {
	CapacityOf(ctx context.Context, key domain.InventoryKey) (total, held int, err error)
}

type CatalogService struct {
	repo      repository.TrainClassRepository
	cache     Cache
	inventory CapacityReader
	log       *slog.Logger
}

type CatalogServiceOption func(*CatalogService)

func WithInventory(r CapacityReader) CatalogServiceOption {
	return func(s *CatalogService) {
		s.inventory = r
	}
}

// NewCatalogService accepts a nil cache, in which case every read goes to the repository.
func NewCatalogService(repo repository.TrainClassRepository, cache Cache, log *slog.Logger, opts ...CatalogServiceOption) *CatalogService {
	if log == nil {
		log = slog.Default()
	}
	s := &CatalogService{repo: repo, cache: cache, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CatalogService) ListClasses(ctx context.Context, trainID int64) ([]domain.TrainClass, error) {
	if s.cache != nil {
		cached, err := s.cache.GetTrainClasses(ctx, trainID)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil {
			s.log.WarnContext(ctx, "catalog cache read failed", "train_id", trainID, "error", err)
		}
	}

	classes, err := s.repo.ListByTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(classes) > 0 {
		if err := s.cache.SetTrainClasses(ctx, trainID, classes); err != nil {
			s.log.WarnContext(ctx, "catalog cache write failed", "train_id", trainID, "error", err)
		}
	}
	return classes, nil
}

func (s *CatalogService) GetTrainClass(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error) {
	classes, err := s.ListClasses(ctx, trainID)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, domain.NotFound("catalog.GetTrainClass", "train")
	}
	for i := range classes {
		if classes[i].ClassID == classID {
			c := classes[i]
			return &c, nil
		}
	}
	return nil, domain.NotFound("catalog.GetTrainClass", "train class")
}

// Availability is a point-in-time view of one class on one date. A date nobody
// has booked yet has no inventory record and reports the full capacity.
func (s *CatalogService) Availability(ctx context.Context, trainID int64, classID string, date time.Time) (*domain.SeatClassInventory, error) {
	class, err := s.GetTrainClass(ctx, trainID, classID)
	if err != nil {
		return nil, err
	}

	inv := &domain.SeatClassInventory{
		Key:        domain.NewInventoryKey(trainID, class.ClassID, date),
		TotalSeats: class.TotalSeats,
	}
	if s.inventory == nil {
		return inv, nil
	}

	total, held, err := s.inventory.CapacityOf(ctx, inv.Key)
	if errors.Is(err, domain.ErrNotFound) {
		return inv, nil
	}
	if err != nil {
		return nil, err
	}
	inv.TotalSeats, inv.HeldSeats = total, held
	return inv, nil
}

var _ CatalogUseCase = (*CatalogService)(nil)

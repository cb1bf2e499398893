package trains_service_api

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/api/rpc"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"google.golang.org/grpc"
)

const ServiceName = "railbooking.v1.TrainsService"

type ListClassesRequest struct {
	TrainID int64 `json:"train_id"`
}

type ListClassesResponse struct {
	Classes []domain.TrainClass `json:"classes"`
}

type AvailabilityRequest struct {
	TrainID     int64  `json:"train_id"`
	ClassID     string `json:"class_id"`
	JourneyDate string `json:"journey_date"`
}

type Availability struct {
	TrainID        int64  `json:"train_id"`
	ClassID        string `json:"class_id"`
	JourneyDate    string `json:"journey_date"`
	TotalSeats     int    `json:"total_seats"`
	HeldSeats      int    `json:"held_seats"`
	AvailableSeats int    `json:"available_seats"`
}

type TrainsServiceServer interface {
	ListClasses(context.Context, *ListClassesRequest) (*ListClassesResponse, error)
	GetAvailability(context.Context, *AvailabilityRequest) (*Availability, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrainsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "ListClasses", func(s TrainsServiceServer, ctx context.Context, req *ListClassesRequest) (any, error) {
			resp, err := s.ListClasses(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}),
		rpc.Unary(ServiceName, "GetAvailability", func(s TrainsServiceServer, ctx context.Context, req *AvailabilityRequest) (any, error) {
			resp, err := s.GetAvailability(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "railbooking/v1/trains",
}

func RegisterTrainsServiceServer(s grpc.ServiceRegistrar, srv TrainsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements TrainsServiceServer on top of the catalog.
type Server struct {
	catalog catalog.CatalogUseCase
}

func NewServer(catalog catalog.CatalogUseCase) *Server {
	return &Server{catalog: catalog}
}

func (s *Server) ListClasses(ctx context.Context, req *ListClassesRequest) (*ListClassesResponse, error) {
	classes, err := s.catalog.ListClasses(ctx, req.TrainID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if len(classes) == 0 {
		return nil, rpc.Error(domain.NotFound("ListClasses", "train"))
	}
	return &ListClassesResponse{Classes: classes}, nil
}

func (s *Server) GetAvailability(ctx context.Context, req *AvailabilityRequest) (*Availability, error) {
	date, err := domain.ParseDate(req.JourneyDate)
	if err != nil {
		return nil, rpc.Error(domain.InvalidInput("GetAvailability", "journey_date", "must be YYYY-MM-DD"))
	}
	inv, err := s.catalog.Availability(ctx, req.TrainID, req.ClassID, date)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return toAvailability(inv), nil
}

func toAvailability(inv *domain.SeatClassInventory) *Availability {
	return &Availability{
		TrainID:        inv.Key.TrainID,
		ClassID:        inv.Key.ClassID,
		JourneyDate:    domain.FormatDate(inv.Key.JourneyDate),
		TotalSeats:     inv.TotalSeats,
		HeldSeats:      inv.HeldSeats,
		AvailableSeats: inv.Available(),
	}
}

var _ TrainsServiceServer = (*Server)(nil)

package bookings_service_api

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/api/rpc"
	"github.com/Domenick1991/railbooking/internal/domain"
	"google.golang.org/grpc"
)

const ServiceName = "railbooking.v1.BookingsService"

type CreateBookingRequest struct {
	UserID      int64              `json:"user_id"`
	TrainID     int64              `json:"train_id"`
	ClassID     string             `json:"class_id"`
	JourneyDate string             `json:"journey_date"`
	Passengers  []domain.Passenger `json:"passengers"`
}

type BookingIDRequest struct {
	ID int64 `json:"id"`
}

type PNRRequest struct {
	PNR string `json:"pnr"`
}

type UserRequest struct {
	UserID int64 `json:"user_id"`
}

type UpdateStatusRequest struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type Booking struct {
	ID             int64              `json:"id"`
	PNR            string             `json:"pnr"`
	UserID         int64              `json:"user_id"`
	TrainID        int64              `json:"train_id"`
	ClassID        string             `json:"class_id"`
	JourneyDate    string             `json:"journey_date"`
	Passengers     []domain.Passenger `json:"passengers"`
	TotalFareCents int64              `json:"total_fare_cents"`
	Status         string             `json:"status"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

type BookingList struct {
	Bookings []*Booking `json:"bookings"`
}

type BookingsServiceServer interface {
	CreateBooking(context.Context, *CreateBookingRequest) (*Booking, error)
	CancelBooking(context.Context, *BookingIDRequest) (*Booking, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*Booking, error)
	GetBooking(context.Context, *BookingIDRequest) (*Booking, error)
	GetBookingByPNR(context.Context, *PNRRequest) (*Booking, error)
	ListBookingsByUser(context.Context, *UserRequest) (*BookingList, error)
}

func unary[Req any, Resp any](method string, call func(BookingsServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return rpc.Unary(ServiceName, method, func(s BookingsServiceServer, ctx context.Context, req *Req) (any, error) {
		resp, err := call(s, ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateBooking", BookingsServiceServer.CreateBooking),
		unary("CancelBooking", BookingsServiceServer.CancelBooking),
		unary("UpdateStatus", BookingsServiceServer.UpdateStatus),
		unary("GetBooking", BookingsServiceServer.GetBooking),
		unary("GetBookingByPNR", BookingsServiceServer.GetBookingByPNR),
		unary("ListBookingsByUser", BookingsServiceServer.ListBookingsByUser),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "railbooking/v1/bookings",
}

func RegisterBookingsServiceServer(s grpc.ServiceRegistrar, srv BookingsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls BookingsService over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, rpc.CallOption())
}

func (c *Client) CreateBooking(ctx context.Context, in *CreateBookingRequest) (*Booking, error) {
	out := new(Booking)
	if err := c.invoke(ctx, "CreateBooking", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelBooking(ctx context.Context, in *BookingIDRequest) (*Booking, error) {
	out := new(Booking)
	if err := c.invoke(ctx, "CancelBooking", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, in *UpdateStatusRequest) (*Booking, error) {
	out := new(Booking)
	if err := c.invoke(ctx, "UpdateStatus", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBooking(ctx context.Context, in *BookingIDRequest) (*Booking, error) {
	out := new(Booking)
	if err := c.invoke(ctx, "GetBooking", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBookingByPNR(ctx context.Context, in *PNRRequest) (*Booking, error) {
	out := new(Booking)
	if err := c.invoke(ctx, "GetBookingByPNR", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBookingsByUser(ctx context.Context, in *UserRequest) (*BookingList, error) {
	out := new(BookingList)
	if err := c.invoke(ctx, "ListBookingsByUser", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/ticket"
	"github.com/gin-gonic/gin"
)

const (
	paymentRecorded = "RECORDED"
	paymentFailed   = "FAILED"
)

type PaymentRecorder interface {
	Record(ctx context.Context, bookingID, amountCents int64, method string) error
}

type ClassLookup interface {
	GetTrainClass(ctx context.Context, trainID int64, classID string) (*domain.TrainClass, error)
}

type BookingHandler struct {
	service  booking.BookingUseCase
	classes  ClassLookup
	payments PaymentRecorder
}

type passengerRequest struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

type createBookingRequest struct {
	UserID        int64              `json:"user_id"`
	TrainID       int64              `json:"train_id"`
	ClassID       string             `json:"class_id"`
	JourneyDate   string             `json:"journey_date"`
	Passengers    []passengerRequest `json:"passengers"`
	PaymentMethod string             `json:"payment_method,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type assignSeatRequest struct {
	SeatLabel string `json:"seat_label"`
}

type bookingResponse struct {
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
	PaymentStatus  string             `json:"payment_status,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase, classes ClassLookup, payments PaymentRecorder) *BookingHandler {
	return &BookingHandler{service: service, classes: classes, payments: payments}
}

// Register mounts the booking routes; adminOnly guards the raw status endpoint.
func (h *BookingHandler) Register(router *gin.RouterGroup, adminOnly ...gin.HandlerFunc) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.PUT("/:id/status", append(adminOnly, h.updateStatus)...)
	router.PUT("/:id/passengers/:index/seat", h.assignSeat)
	router.GET("/pnr/:pnr", h.getByPNR)
	router.GET("/pnr/:pnr/ticket", h.ticket)
	router.GET("/user/:userId", h.listByUser)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	journeyDate, err := domain.ParseDate(req.JourneyDate)
	if err != nil {
		badRequest(c, "journey_date", "expected YYYY-MM-DD")
		return
	}

	if uid, admin, ok := caller(c); ok && !admin {
		if req.UserID != 0 && req.UserID != uid {
			forbidden(c)
			return
		}
		req.UserID = uid
	}

	passengers := make([]domain.Passenger, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		passengers = append(passengers, domain.Passenger{Name: p.Name, Age: p.Age, Gender: p.Gender})
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		UserID:      req.UserID,
		TrainID:     req.TrainID,
		ClassID:     req.ClassID,
		JourneyDate: journeyDate,
		Passengers:  passengers,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := toBookingResponse(b)
	if method := strings.TrimSpace(req.PaymentMethod); method != "" && h.payments != nil {
		resp.PaymentStatus = paymentRecorded
		if err := h.payments.Record(c.Request.Context(), b.ID, b.TotalFareCents, method); err != nil {
			logger.FromContext(c.Request.Context(), nil).WarnContext(c.Request.Context(), "payment record failed",
				"booking_id", b.ID, "pnr", b.PNR, "error", err)
			resp.PaymentStatus = paymentFailed
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *BookingHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !canAccess(c, b.UserID) {
		forbidden(c)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) getByPNR(c *gin.Context) {
	b, ok := h.lookupPNR(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) ticket(c *gin.Context) {
	b, ok := h.lookupPNR(c)
	if !ok {
		return
	}
	if b.Status == domain.BookingStatusCancelled {
		writeError(c, domain.E(domain.KindInvalidState, "api.ticket", "booking is cancelled"))
		return
	}

	var class *domain.TrainClass
	if h.classes != nil {
		// The ticket falls back to the bare class id when the catalog is unavailable.
		class, _ = h.classes.GetTrainClass(c.Request.Context(), b.TrainID, b.ClassID)
	}

	pdf, err := ticket.Render(b, class, verifyURL(c, b.PNR))
	if err != nil {
		writeError(c, domain.Wrap(domain.KindInternal, "api.ticket", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="ticket-%s.pdf"`, b.PNR))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *BookingHandler) listByUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if !canAccess(c, userID) {
		forbidden(c)
		return
	}

	bookings, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toBookingResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.authorize(c, id) {
		return
	}

	b, err := h.service.CancelBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) updateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	status, ok := domain.ParseBookingStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !ok {
		badRequest(c, "status", "must be PENDING, CONFIRMED or CANCELLED")
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) assignSeat(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index", "must be an integer")
		return
	}

	var req assignSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	if !h.authorize(c, id) {
		return
	}

	b, err := h.service.AssignSeatLabel(c.Request.Context(), id, index, req.SeatLabel)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

// authorize loads the booking to check ownership before a mutation.
func (h *BookingHandler) authorize(c *gin.Context, id int64) bool {
	if _, _, ok := caller(c); !ok {
		return true
	}
	b, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !canAccess(c, b.UserID) {
		forbidden(c)
		return false
	}
	return true
}

func (h *BookingHandler) lookupPNR(c *gin.Context) (*domain.Booking, bool) {
	b, err := h.service.GetByPNR(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !canAccess(c, b.UserID) {
		forbidden(c)
		return nil, false
	}
	return b, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name, "must be a positive integer")
		return 0, false
	}
	return id, true
}

func verifyURL(c *gin.Context, pnr string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/api/bookings/pnr/%s", scheme, c.Request.Host, pnr)
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	passengers := b.Passengers
	if passengers == nil {
		passengers = []domain.Passenger{}
	}
	return bookingResponse{
		ID:             b.ID,
		PNR:            b.PNR,
		UserID:         b.UserID,
		TrainID:        b.TrainID,
		ClassID:        b.ClassID,
		JourneyDate:    domain.FormatDate(b.JourneyDate),
		Passengers:     passengers,
		TotalFareCents: b.TotalFareCents,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
}

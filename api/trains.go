package api

import (
	"net/http"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type TrainHandler struct {
	service catalog.CatalogUseCase
}

type availabilityResponse struct {
	TrainID        int64  `json:"train_id"`
	ClassID        string `json:"class_id"`
	JourneyDate    string `json:"journey_date"`
	TotalSeats     int    `json:"total_seats"`
	HeldSeats      int    `json:"held_seats"`
	AvailableSeats int    `json:"available_seats"`
}

func NewTrainHandler(service catalog.CatalogUseCase) *TrainHandler {
	return &TrainHandler{service: service}
}

func (h *TrainHandler) Register(router *gin.RouterGroup) {
	router.GET("/:trainId/classes", h.listClasses)
	router.GET("/:trainId/classes/:classId/availability", h.availability)
}

func (h *TrainHandler) listClasses(c *gin.Context) {
	trainID, ok := pathID(c, "trainId")
	if !ok {
		return
	}

	classes, err := h.service.ListClasses(c.Request.Context(), trainID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(classes) == 0 {
		writeError(c, domain.NotFound("api.listClasses", "train"))
		return
	}

	c.JSON(http.StatusOK, classes)
}

func (h *TrainHandler) availability(c *gin.Context) {
	trainID, ok := pathID(c, "trainId")
	if !ok {
		return
	}
	date, err := domain.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date", "expected YYYY-MM-DD")
		return
	}

	inv, err := h.service.Availability(c.Request.Context(), trainID, c.Param("classId"), date)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, availabilityResponse{
		TrainID:        inv.Key.TrainID,
		ClassID:        inv.Key.ClassID,
		JourneyDate:    domain.FormatDate(inv.Key.JourneyDate),
		TotalSeats:     inv.TotalSeats,
		HeldSeats:      inv.HeldSeats,
		AvailableSeats: inv.Available(),
	})
}

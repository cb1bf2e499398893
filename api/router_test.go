package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, userID int64, role string) string {
	return signToken(t, testSecret, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
}

func newTestRouter(bookings *MockBookingUseCase, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		Bookings:  bookings,
		Catalog:   &MockCatalogUseCase{},
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		JWTSecret: secret,
	})
}

func serve(r http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_RequestIDEchoedAndGenerated(t *testing.T) {
	bookings := &MockBookingUseCase{}
	r := newTestRouter(bookings, "")
	bookings.On("GetByID", mock.Anything, int64(404)).Return(nil, domain.NotFound("ledger.GetByID", "booking"))

	req := httptest.NewRequest("GET", "/api/bookings/404", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
	var response errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "req-123", response.RequestID)
	assert.Equal(t, string(domain.KindNotFound), response.Kind)

	w = serve(r, "GET", "/api/bookings/404", "", nil)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRouter_AuthRequired(t *testing.T) {
	r := newTestRouter(&MockBookingUseCase{}, testSecret)

	w := serve(r, "GET", "/api/bookings/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := signToken(t, "other-secret", jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(time.Hour).Unix()})
	w = serve(r, "GET", "/api/bookings/1", bad, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := signToken(t, testSecret, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(-time.Hour).Unix()})
	w = serve(r, "GET", "/api/bookings/1", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	noExp := signToken(t, testSecret, jwt.MapClaims{"user_id": 7})
	w = serve(r, "GET", "/api/bookings/1", noExp, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_OwnershipEnforced(t *testing.T) {
	bookings := &MockBookingUseCase{}
	r := newTestRouter(bookings, testSecret)
	bookings.On("GetByID", mock.Anything, int64(1)).Return(sampleBooking(domain.BookingStatusConfirmed), nil)

	w := serve(r, "GET", "/api/bookings/1", userToken(t, 7, "user"), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, "GET", "/api/bookings/1", userToken(t, 8, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, "GET", "/api/bookings/1", userToken(t, 99, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, "DELETE", "/api/bookings/1", userToken(t, 8, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	bookings.AssertNotCalled(t, "CancelBooking", mock.Anything, mock.Anything)

	w = serve(r, "GET", "/api/bookings/user/7", userToken(t, 8, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_CreateUsesTokenUser(t *testing.T) {
	bookings := &MockBookingUseCase{}
	r := newTestRouter(bookings, testSecret)

	bookings.On("CreateBooking", mock.Anything, mock.MatchedBy(func(in booking.CreateBookingInput) bool {
		return in.UserID == 7
	})).Return(sampleBooking(domain.BookingStatusConfirmed), nil)

	body := createBookingRequest{
		TrainID: 12951, ClassID: "3A", JourneyDate: "2026-12-01",
		Passengers: []passengerRequest{{Name: "Asha Rao", Age: 34, Gender: "F"}},
	}
	w := serve(r, "POST", "/api/bookings", userToken(t, 7, "user"), body)
	assert.Equal(t, http.StatusCreated, w.Code)

	body.UserID = 8
	w = serve(r, "POST", "/api/bookings", userToken(t, 7, "user"), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_StatusUpdateRequiresAdmin(t *testing.T) {
	bookings := &MockBookingUseCase{}
	r := newTestRouter(bookings, testSecret)
	bookings.On("UpdateStatus", mock.Anything, int64(1), domain.BookingStatusCancelled).
		Return(sampleBooking(domain.BookingStatusCancelled), nil)

	w := serve(r, "PUT", "/api/bookings/1/status", userToken(t, 7, "user"), updateStatusRequest{Status: "CANCELLED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, "PUT", "/api/bookings/1/status", userToken(t, 1, RoleAdmin), updateStatusRequest{Status: "CANCELLED"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{
		Bookings:       &MockBookingUseCase{},
		Catalog:        &MockCatalogUseCase{},
		AllowedOrigins: []string{"https://tickets.example.org"},
	})

	req := httptest.NewRequest("OPTIONS", "/api/bookings", nil)
	req.Header.Set("Origin", "https://tickets.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://tickets.example.org", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Healthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{
		Bookings: &MockBookingUseCase{},
		Catalog:  &MockCatalogUseCase{},
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})

	w := serve(r, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	r = NewRouter(RouterConfig{
		Bookings: &MockBookingUseCase{},
		Catalog:  &MockCatalogUseCase{},
		HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	w = serve(r, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_ServesSwaggerSpec(t *testing.T) {
	r := newTestRouter(&MockBookingUseCase{}, "")

	w := serve(r, "GET", swaggerSpecPath, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"swagger": "2.0"`)
}

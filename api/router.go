package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

const swaggerSpecPath = "/docs/bookings.swagger.json"

//go:embed swagger/bookings.swagger.json
var swaggerSpec []byte

// HealthCheck pings one dependency; a non-nil error marks the service degraded.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Bookings       booking.BookingUseCase
	Catalog        catalog.CatalogUseCase
	Payments       PaymentRecorder
	Logger         *slog.Logger
	AllowedOrigins []string
	JWTSecret      string
	SwaggerDir     string
	HealthChecks   map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(cfg.Logger), CORS(cfg.AllowedOrigins))

	r.GET("/healthz", healthz(cfg.HealthChecks))

	if cfg.SwaggerDir != "" {
		r.StaticFile(swaggerSpecPath, filepath.Join(cfg.SwaggerDir, "bookings.swagger.json"))
	} else {
		r.GET(swaggerSpecPath, func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", swaggerSpec)
		})
	}
	r.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(swaggerSpecPath))))

	api := r.Group("/api")
	var adminOnly []gin.HandlerFunc
	if cfg.JWTSecret != "" {
		api.Use(Auth([]byte(cfg.JWTSecret)))
		adminOnly = append(adminOnly, RequireAdmin())
	}

	NewBookingHandler(cfg.Bookings, cfg.Catalog, cfg.Payments).Register(api.Group("/bookings"), adminOnly...)
	NewTrainHandler(cfg.Catalog).Register(api.Group("/trains"))

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": result})
	}
}

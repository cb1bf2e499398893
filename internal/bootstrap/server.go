package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	bookingsapi "github.com/Domenick1991/railbooking/internal/api/bookings_service_api"
	"github.com/Domenick1991/railbooking/internal/api/rpc"
	trainsapi "github.com/Domenick1991/railbooking/internal/api/trains_service_api"
	"github.com/aws/aws-xray-sdk-go/xray"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
}

// Run starts the gRPC and HTTP servers and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, c *Components, log *slog.Logger) error {
	s := newServers(cfg, c, log)

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address)

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, c *Components, log *slog.Logger) *Servers {
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(rpc.LoggingInterceptor(log)))

	bookingsapi.RegisterBookingsServiceServer(grpcSrv, bookingsapi.NewServer(c.Bookings))
	trainsapi.RegisterTrainsServiceServer(grpcSrv, trainsapi.NewServer(c.Catalog))

	hs := health.NewServer()
	hs.SetServingStatus(bookingsapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(trainsapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)

	var handler http.Handler = api.NewRouter(api.RouterConfig{
		Bookings:       c.Bookings,
		Catalog:        c.Catalog,
		Payments:       c.Payments,
		Logger:         log,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		JWTSecret:      cfg.Auth.JWTSecret,
		SwaggerDir:     cfg.HTTP.SwaggerDir,
		HealthChecks:   c.HealthChecks(),
	})
	if cfg.Tracing.XRay {
		handler = xray.Handler(xray.NewFixedSegmentNamer(cfg.Tracing.Service), handler)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Servers{
		grpcServer: grpcSrv,
		health:     hs,
		httpServer: httpSrv,
	}
}

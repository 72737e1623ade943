package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cchriscode/ticketcore/api"
	"github.com/cchriscode/ticketcore/config"
	"github.com/cchriscode/ticketcore/internal/service/catalog"
	"github.com/cchriscode/ticketcore/internal/service/reservation"
)

// Run starts the HTTP server and blocks until the context is cancelled
// or the server fails. Shutdown drains in-flight requests for up to five
// seconds.
func Run(
	ctx context.Context,
	cfg *config.Config,
	catalogSvc catalog.CatalogUseCase,
	reservationSvc reservation.ReservationUseCase,
	queue api.QueueController,
	admission api.AdmissionChecker,
	log zerolog.Logger,
) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.NewEventHandler(catalogSvc).Register(router.Group("/events"))
	api.NewReservationHandler(reservationSvc, admission).Register(router.Group("/reservations"))
	api.NewQueueHandler(queue).Register(router.Group("/queue"))

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.HTTP.Address).Msg("http server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

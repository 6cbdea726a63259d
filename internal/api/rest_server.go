// Package api - административный HTTP API сервиса плотов.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/auth"
	"github.com/AgaveCraft/PlotSquared/internal/export"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/middleware"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/regionmgr"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер
type RestServer struct {
	router *gin.Engine
	srv    *http.Server
	cfg    Config
	health *healthProbe
	log    *logging.Logger
}

// Config содержит зависимости REST сервера.
type Config struct {
	Port string // адрес, например ":8088"

	// Areas - области плотов по имени мира.
	Areas    map[string]*plot.Area
	Plots    plot.Repository
	Queue    *queue.GlobalQueue
	Regions  regionmgr.Manager
	Exporter *export.Exporter
	Trust    *plot.TrustService
	// Auth включает проверку JWT для /api; nil - без авторизации.
	Auth *auth.Issuer
	// Sink принимает архивы POST .../export; nil отключает маршрут.
	Sink export.Sink

	// Registry и Gatherer - регистр prometheus; nil - регистр по умолчанию.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(otelgin.Middleware("plots_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	httpMetrics := middleware.NewHTTPMetrics("plots_api", cfg.Registry)
	router.Use(httpMetrics.Handler())
	middleware.RegisterMetricsEndpoint(router, cfg.Gatherer)

	rs := &RestServer{
		router: router,
		cfg:    cfg,
		health: newHealthProbe(),
		log:    logging.GetComponentLogger(logging.ComponentAPI),
	}
	rs.srv = &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler сервера (используется в тестах).
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	if rs.cfg.Auth != nil {
		api.Use(rs.jwtMiddleware())
	}
	api.GET("/queues", rs.handleQueues)

	plots := api.Group("/worlds/:world/plots/:id")
	{
		plots.GET("", rs.handleGetPlot)
		plots.GET("/export", rs.adminMiddleware(), rs.handleExport)
		plots.POST("/export", rs.adminMiddleware(), rs.handleUpload)
		plots.POST("/clear", rs.adminMiddleware(), rs.handleClear)
		plots.POST("/trust", rs.handleTrust)
	}
}

// Start запускает REST сервер и блокируется до остановки.
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.cfg.Port)
	if err := rs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер, дожидаясь активных запросов.
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.srv.Shutdown(ctx)
}

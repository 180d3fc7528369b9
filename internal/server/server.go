package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/config"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/pipeline"
	"github.com/GriffinCanCode/Conduit/internal/ws"
)

// Server wraps the HTTP surface and its dependencies.
type Server struct {
	cfg    config.ServerConfig
	log    *logging.Logger
	pipe   *pipeline.Pipeline
	router *gin.Engine
	srv    *http.Server
}

// New creates the server over a constructed pipeline.
func New(cfg config.ServerConfig, log *logging.Logger, metrics *monitoring.Metrics, pipe *pipeline.Pipeline, stream *ws.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:    cfg,
		log:    log.Named("server"),
		pipe:   pipe,
		router: router,
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/stats", s.stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", stream.HandleConnection)

	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:    s.cfg.Host + ":" + s.cfg.Port,
		Handler: s.router,
	}
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "conduit",
	})
}

func (s *Server) health(c *gin.Context) {
	st := s.pipe.Snapshot()
	status := "healthy"
	code := http.StatusOK
	if !st.Running {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"buffers": len(st.Buffers),
		"slots":   len(st.Slots),
	})
}

// stats serves the full snapshot. Encoded with sonic: the snapshot is the
// hot read path for dashboards polling at high frequency.
func (s *Server) stats(c *gin.Context) {
	data, err := sonic.Marshal(s.pipe.Snapshot())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusFunc reports the current state of each running worker.
type StatusFunc func() map[string]string

// Server exposes /healthz, /stats and /metrics.
type Server struct {
	stats   service.StatsReader
	objects objectstore.ObjectStore
	metrics *metrics.Metrics
	status  StatusFunc
	logger  *zap.Logger
	engine  *gin.Engine
	opts    Options
	addr    string
}

// NewServer builds the status server. m and status may be nil.
func NewServer(addr string, stats service.StatsReader, objects objectstore.ObjectStore, m *metrics.Metrics, status StatusFunc, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		stats:   stats,
		objects: objects,
		metrics: m,
		status:  status,
		logger:  logger.Named("monitor"),
		engine:  engine,
		opts:    opts,
		addr:    addr,
	}
	s.register(engine)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) register(r *gin.Engine) {
	r.GET("/healthz", s.health)
	r.GET("/stats", s.snapshot)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) snapshot(c *gin.Context) {
	snap, err := Collect(c.Request.Context(), s.stats, s.objects, s.opts)
	if err != nil {
		s.logger.Warn("failed to collect snapshot", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if s.status != nil {
		snap.Workers = s.status()
	}
	c.JSON(http.StatusOK, snap)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

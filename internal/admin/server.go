// Package admin exposes the daemon's operational HTTP surface: transport
// status, power control, message submission and metrics. It is a thin layer
// over the transport client; everything stateful lives there.
package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkrutz/radiolink/internal/auth"
	"github.com/dkrutz/radiolink/internal/hal"
	"github.com/dkrutz/radiolink/internal/observability"
	"github.com/dkrutz/radiolink/internal/transport"
)

// Transport is the slice of the transport client the admin surface drives.
type Transport interface {
	Enable() bool
	Disable()
	HardReset() bool
	State() transport.State
	Send(msg []byte) bool
	Properties() (hal.Properties, bool)
}

type Server struct {
	transport Transport
	router    *gin.Engine
	addr      string
	token     string
	appeared  time.Time
}

// NewServer builds the admin router. An empty token leaves the control
// endpoints open; a non-empty one requires it as a bearer token.
func NewServer(tr Transport, addr, token string, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		transport: tr,
		router:    r,
		addr:      addr,
		token:     token,
		appeared:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "radiolinkd",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if s.token != "" {
		v1.Use(auth.Middleware(auth.StaticToken{Token: s.token}))
	}

	v1.GET("/status", func(c *gin.Context) {
		props, bound := s.transport.Properties()
		c.JSON(http.StatusOK, gin.H{
			"state":        s.transport.State().String(),
			"bound":        bound,
			"version":      props.Version,
			"flow_control": props.FlowControl(),
			"keepalive":    props.Keepalive(),
		})
	})

	v1.POST("/power/enable", func(c *gin.Context) {
		ok := s.transport.Enable()
		status := http.StatusOK
		if !ok {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"ok":    ok,
			"state": s.transport.State().String(),
		})
	})

	v1.POST("/power/disable", func(c *gin.Context) {
		s.transport.Disable()
		c.JSON(http.StatusOK, gin.H{
			"state": s.transport.State().String(),
		})
	})

	v1.POST("/power/reset", func(c *gin.Context) {
		ok := s.transport.HardReset()
		status := http.StatusOK
		if !ok {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"ok":    ok,
			"state": s.transport.State().String(),
		})
	})

	v1.POST("/send", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		msg, err := hex.DecodeString(req.Payload)
		if err != nil || len(msg) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be non-empty hex"})
			return
		}
		if !s.transport.Send(msg) {
			c.JSON(http.StatusConflict, gin.H{"sent": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sent": true})
	})
}

// Run serves until ctx is cancelled, then drains with a short shutdown
// deadline.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Package admin serves a small HTTP control surface for one running session.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/purity/internal/auth"
	"github.com/danmuck/purity/internal/client"
	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Session is the part of a client the admin surface drives.
type Session interface {
	ID() string
	Status() client.Status
	SendMessage(msg fudi.Message) error
	Quit(ctx context.Context) (string, error)
}

type Config struct {
	Addr        string
	CorsOrigins []string

	// Token, when set, is required as a bearer token on POST routes.
	Token  string
	Logger zerolog.Logger
}

type Server struct {
	cfg     Config
	session Session
	router  *gin.Engine
	started time.Time
	log     zerolog.Logger
}

// SendRequest carries one or more FUDI messages as text, e.g. "note 60 100;".
type SendRequest struct {
	Message string `json:"message" binding:"required"`
}

func New(cfg Config, session Session) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	logger := cfg.Logger.With().Str("component", "admin").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(session.ID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		session: session,
		router:  r,
		started: time.Now(),
		log:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on cfg.Addr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"session": s.session.ID(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.session.Status()
		code := http.StatusOK
		if st.State != client.StateReady {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready": st.State == client.StateReady,
			"state": st.State,
		})
	})

	s.router.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.session.Status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	control := s.router.Group("/")
	if s.cfg.Token != "" {
		control.Use(requireToken(auth.StaticToken{Token: s.cfg.Token}))
	}
	control.POST("/send", s.handleSend)
	control.POST("/quit", s.handleQuit)
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func (s *Server) handleSend(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgs, err := fudi.DecodeDatagram([]byte(strings.TrimSpace(req.Message)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(msgs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no message"})
		return
	}

	sent := 0
	for _, msg := range msgs {
		if err := s.session.SendMessage(msg); err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error(), "sent": sent})
			return
		}
		sent++
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sent": sent})
}

func (s *Server) handleQuit(c *gin.Context) {
	status, err := s.session.Quit(c.Request.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, client.ErrClosed) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": status})
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, client.ErrNoConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

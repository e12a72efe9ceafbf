// Package gate runs the standalone venue-gate HTTP server. Gates are
// offline-prone handheld scanners on venue wifi, so this surface is kept
// separate from the main app: a tiny echo server exposing validation,
// health, and metrics.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"passaddis/internal/services"
	"passaddis/internal/status"
	"passaddis/security"
)

type Config struct {
	Addr string

	// APIKey authenticates gate devices. Empty disables the check (dev mode).
	APIKey string

	// ScanLimit caps validations per device per minute.
	ScanLimit int64
}

type Server struct {
	validator *services.TicketValidator
	limiter   *security.RateLimiter
	cfg       Config

	httpServer *http.Server
}

func NewServer(validator *services.TicketValidator, limiter *security.RateLimiter, cfg Config) *Server {
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 120
	}
	return &Server{validator: validator, limiter: limiter, cfg: cfg}
}

// Start blocks serving gate traffic until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("gate server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.Use(middleware.Recover())
	if s.limiter != nil {
		e.Use(s.limiter.AntiBotMiddleware())
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", func(c echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	scan := e.Group("/gate", s.authenticate)
	if s.limiter != nil {
		scan.Use(s.limiter.ScanRateLimit(s.cfg.ScanLimit, time.Minute))
	}
	scan.POST("/validate", s.handleValidate)

	return e
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.APIKey == "" {
			return next(c)
		}
		if c.Request().Header.Get("X-Gate-Key") != s.cfg.APIKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid gate key"})
		}
		// Scan quotas are per gate device, not per IP.
		if device := c.Request().Header.Get("X-Gate-Device"); device != "" {
			c.Set("user_id", "gate:"+device)
		}
		return next(c)
	}
}

type validateRequest struct {
	Code string `json:"code"`
}

type validateResponse struct {
	Admitted bool                       `json:"admitted"`
	Reason   string                     `json:"reason,omitempty"`
	UsedAt   *time.Time                 `json:"used_at,omitempty"`
	Result   *services.ValidationResult `json:"result,omitempty"`
}

func (s *Server) handleValidate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	result, err := s.validator.Validate(c.Request().Context(), req.Code)
	if err != nil {
		return c.JSON(rejectionStatus(err), rejectionBody(err))
	}

	return c.JSON(http.StatusOK, validateResponse{Admitted: true, Result: result})
}

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, status.ErrTicketAlreadyUsed), errors.Is(err, status.ErrTicketNotRedeemable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func rejectionBody(err error) validateResponse {
	resp := validateResponse{Admitted: false}

	var alreadyUsed *status.AlreadyUsedError
	var notRedeemable *status.NotRedeemableError
	switch {
	case errors.As(err, &alreadyUsed):
		resp.Reason = "already_used"
		resp.UsedAt = alreadyUsed.UsedAt
	case errors.As(err, &notRedeemable):
		resp.Reason = "not_redeemable"
	case errors.Is(err, status.ErrTicketNotFound):
		resp.Reason = "not_found"
	default:
		resp.Reason = "error"
	}
	return resp
}

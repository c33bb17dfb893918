package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/retry"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	ctxUserID = "user_id"
	ctxRole   = "user_role"
)

type Reserver interface {
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*models.Booking, error)
}

type Canceller interface {
	CancelBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error)
}

type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req service.CreateIntentRequest) (*service.CreateIntentResponse, error)
}

type StatsReader interface {
	GetBookingStats(ctx context.Context, userID string, role models.Role) (*models.BookingStats, error)
}

type BookingReader interface {
	GetBooking(ctx context.Context, bookingID, userID string, role models.Role) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
	ListEventBookings(ctx context.Context, eventID, organizerID string) ([]models.Booking, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the handlers call into
type Services struct {
	Reservations  Reserver
	Cancellations Canceller
	Payments      IntentCreator
	Stats         StatsReader
	Queries       BookingReader
}

// Handler contains HTTP handlers
type Handler struct {
	svc            Services
	retryPolicy    retry.Policy
	requestTimeout time.Duration
	readiness      map[string]Pinger
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler. A zero retry policy falls back to
// retry.DefaultPolicy.
func NewHandler(svc Services, retryPolicy retry.Policy, requestTimeout time.Duration, readiness map[string]Pinger) *Handler {
	if retryPolicy.Retries == 0 && retryPolicy.Delay <= 0 && retryPolicy.Multiplier <= 0 {
		retryPolicy = retry.DefaultPolicy()
	}
	return &Handler{
		svc:            svc,
		retryPolicy:    retryPolicy,
		requestTimeout: requestTimeout,
		readiness:      readiness,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.timeoutMiddleware(), identityMiddleware())
	{
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings/me", h.listMyBookings)
		v1.GET("/bookings/stats", h.getBookingStats)
		v1.GET("/bookings/:id", h.getBooking)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)
		v1.GET("/events/:id/bookings", h.listEventBookings)
		v1.POST("/payments/intents", h.createPaymentIntent)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency the service cannot run without
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"dependencies": failed,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type createBookingBody struct {
	EventID         string `json:"event_id"`
	NumberOfTickets int    `json:"number_of_tickets"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// createBooking handles booking creation
func (h *Handler) createBooking(c *gin.Context) {
	var body createBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	req := service.CreateBookingRequest{
		UserID:          c.GetString(ctxUserID),
		EventID:         body.EventID,
		NumberOfTickets: body.NumberOfTickets,
		Role:            callerRole(c),
		PaymentIntentID: body.PaymentIntentID,
	}

	booking, err := retry.Do(c.Request.Context(), h.policyFor("create_booking"),
		func(ctx context.Context) (*models.Booking, error) {
			return h.svc.Reservations.CreateBooking(ctx, req)
		})
	if err != nil {
		h.renderError(c, "create_booking", err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// cancelBooking cancels one of the caller's bookings
func (h *Handler) cancelBooking(c *gin.Context) {
	booking, err := h.svc.Cancellations.CancelBooking(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID))
	if err != nil {
		h.renderError(c, "cancel_booking", err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// getBookingStats returns the caller's dashboard
func (h *Handler) getBookingStats(c *gin.Context) {
	userID, role := c.GetString(ctxUserID), callerRole(c)

	stats, err := retry.Do(c.Request.Context(), h.policyFor("booking_stats"),
		func(ctx context.Context) (*models.BookingStats, error) {
			return h.svc.Stats.GetBookingStats(ctx, userID, role)
		})
	if err != nil {
		h.renderError(c, "booking_stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getBooking handles get booking by ID
func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.svc.Queries.GetBooking(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID), callerRole(c))
	if err != nil {
		h.renderError(c, "get_booking", err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) listMyBookings(c *gin.Context) {
	bookings, err := h.svc.Queries.ListUserBookings(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.renderError(c, "list_user_bookings", err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) listEventBookings(c *gin.Context) {
	if !callerRole(c).SeesOrganizerStats() {
		c.JSON(http.StatusForbidden, gin.H{"error": "only organizers can list event bookings"})
		return
	}

	bookings, err := h.svc.Queries.ListEventBookings(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID))
	if err != nil {
		h.renderError(c, "list_event_bookings", err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}

type createIntentBody struct {
	EventID         string `json:"event_id" binding:"required"`
	NumberOfTickets int    `json:"number_of_tickets" binding:"required,min=1"`
}

// createPaymentIntent starts checkout for an event
func (h *Handler) createPaymentIntent(c *gin.Context) {
	var body createIntentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.svc.Payments.CreatePaymentIntent(c.Request.Context(), service.CreateIntentRequest{
		UserID:          c.GetString(ctxUserID),
		Role:            callerRole(c),
		EventID:         body.EventID,
		NumberOfTickets: body.NumberOfTickets,
	})
	if err != nil {
		h.renderError(c, "create_payment_intent", err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// policyFor returns the retry policy with per-operation metrics attached
func (h *Handler) policyFor(operation string) retry.Policy {
	p := h.retryPolicy
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		util.RetryAttemptsTotal.WithLabelValues(operation).Inc()
		h.logger.Warn("Retrying transient failure",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return p
}

// renderError maps err onto a response. Only domain errors expose their
// message; everything else is logged and answered generically.
func (h *Handler) renderError(c *gin.Context, operation string, err error) {
	var de *models.Error
	if errors.As(err, &de) {
		if de.Kind == models.KindUnavailable && de.Err != nil {
			h.logger.Warn("Dependency unavailable", zap.String("operation", operation), zap.Error(err))
		}
		c.JSON(de.Kind.HTTPStatus(), gin.H{
			"error": de.Message,
			"code":  de.Kind,
		})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || retry.IsTransient(err) {
		h.logger.Warn("Transient failure",
			zap.String("operation", operation),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable, please retry",
			"code":  models.KindUnavailable,
		})
		return
	}

	h.logger.Error("Request failed",
		zap.String("operation", operation),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}

// identityMiddleware trusts the identity headers set by the upstream gateway
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		roleHeader := c.GetHeader(HeaderUserRole)
		if roleHeader == "" {
			roleHeader = string(models.RoleUser)
		}
		role, err := models.ParseRole(roleHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid user role",
				"code":  models.KindInvalidRequest,
			})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func callerRole(c *gin.Context) models.Role {
	if v, ok := c.Get(ctxRole); ok {
		if role, ok := v.(models.Role); ok {
			return role
		}
	}
	return models.RoleUser
}

// timeoutMiddleware bounds every API request. An expired deadline rolls back
// any open transaction.
func (h *Handler) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.requestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lehigh-university-libraries/ecosort/internal/metrics"
	"github.com/lehigh-university-libraries/ecosort/internal/models"
	"github.com/lehigh-university-libraries/ecosort/internal/providers"
)

const requestIDHeader = "X-Request-ID"

// Classifier is what the classify endpoint needs from labeling.Service.
type Classifier interface {
	Classify(ctx context.Context, data []byte, mediaType string) (*providers.Prediction, bool, error)
	Ready() bool
}

type Handler struct {
	classifier  Classifier
	provider    string
	frontendURL string
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
}

type Option func(*Handler)

// WithFrontendURL sets the one origin allowed to call /api/*. "*" allows any.
func WithFrontendURL(url string) Option {
	return func(h *Handler) {
		h.frontendURL = strings.TrimSuffix(url, "/")
	}
}

// WithMetrics records classify metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithProvider names the backend in latency metrics.
func WithProvider(name string) Option {
	return func(h *Handler) {
		h.provider = name
	}
}

// New returns a handler. classifier may be nil, in which case every
// classify request fails with "Model or labels not loaded".
func New(classifier Classifier, opts ...Option) *Handler {
	h := &Handler{
		classifier:  classifier,
		provider:    "unknown",
		frontendURL: "http://localhost:5173",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestID())

	router.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api", h.cors())
	api.POST("/classify", h.HandleClassify)
	api.OPTIONS("/classify", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// requestID echoes the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *Handler) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (h.frontendURL == "*" || strings.TrimSuffix(origin, "/") == h.frontendURL) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			c.Header("Access-Control-Expose-Headers", requestIDHeader)
			c.Header("Vary", "Origin")
		}
		c.Next()
	}
}

// Response helpers
func (h *Handler) writeError(c *gin.Context, message string, code int, err error) {
	attrs := []any{"status", code, "request_id", c.GetString("request_id")}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	if code >= http.StatusInternalServerError {
		slog.Error(message, attrs...)
	} else {
		slog.Warn(message, attrs...)
	}
	c.JSON(code, models.ErrorResponse{Error: message})
}

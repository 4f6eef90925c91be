package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/observer"
	"github.com/anime-shed/palm-oracle-go/internal/reading"
	"github.com/anime-shed/palm-oracle-go/internal/service"
	"github.com/anime-shed/palm-oracle-go/internal/session"
	"github.com/anime-shed/palm-oracle-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// SessionCookie carries the session id between page loads
	SessionCookie = "palm_session"

	sessionKey     = "session_id"
	uploadField    = "image"
	refreshSeconds = 2
)

// MetricsSource reports reading counters
type MetricsSource interface {
	GetMetrics() observer.Metrics
}

// PoolStatsSource reports worker pool counters
type PoolStatsSource interface {
	GetStats() session.PoolStats
}

type handler struct {
	svc        service.ReadingService
	metrics    MetricsSource
	pool       PoolStatsSource
	oracleName string
	cfg        *config.Config
}

// NewHandler builds the gin engine serving the page, the JSON API, health and metrics
func NewHandler(svc service.ReadingService, metrics MetricsSource, pool PoolStatsSource, oracleName string, cfg *config.Config) http.Handler {
	h := &handler{
		svc:        svc,
		metrics:    metrics,
		pool:       pool,
		oracleName: oracleName,
		cfg:        cfg,
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		errorHandler(),
	)

	r.GET("/health", h.healthCheck)
	r.GET("/metrics", h.metricsReport)

	// The page reports oversized uploads through the session state, so its
	// bodies are capped without the JSON 413 short-circuit
	page := r.Group("/", bodyLimiter(cfg.MaxRequestBodySize), h.sessionMiddleware())
	page.GET("/", h.showPage)
	page.POST("/reading", h.uploadFromPage)
	page.POST("/reading/url", h.urlFromPage)
	page.POST("/reset", h.resetFromPage)

	api := r.Group("/api", requestSizeLimiter(cfg.MaxRequestBodySize), h.sessionMiddleware())
	api.GET("/reading", h.getReading)
	api.POST("/reading", h.postReading)
	api.POST("/reading/url", h.postReadingURL)
	api.DELETE("/reading", h.deleteReading)

	return r
}

// sessionMiddleware resolves the session cookie, creating a session when the
// cookie is missing or stale. The cookie is re-issued on every request so it
// expires together with the idle session.
func (h *handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(SessionCookie)
		id, _ := h.svc.Open(cookie)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, int(h.cfg.SessionTTL.Seconds()), "/", "", false, true)
		c.Set(sessionKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func (h *handler) showPage(c *gin.Context) {
	view, err := h.svc.View(sessionID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageView{ReadingResponse: view, RefreshSeconds: refreshSeconds}); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to render page", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// uploadFromPage always redirects back to the page; outcomes are in the
// session state. An upload that cannot be opened at all, oversized bodies
// included, is recorded as a read failure.
func (h *handler) uploadFromPage(c *gin.Context) {
	file, closeUpload, err := openUpload(c)
	if err != nil {
		err = h.svc.RecordReadFailure(c.Request.Context(), sessionID(c), uploadField, err)
	} else {
		err = h.svc.Upload(c.Request.Context(), sessionID(c), file)
		closeUpload()
	}
	h.logOutcome(c, err, "upload")
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) urlFromPage(c *gin.Context) {
	var req models.URLRequest
	err := c.ShouldBind(&req)
	if err != nil {
		err = h.svc.RecordReadFailure(c.Request.Context(), sessionID(c), "url", err)
	} else {
		err = h.fetchURL(c, req.URL)
	}
	h.logOutcome(c, err, "url")
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) resetFromPage(c *gin.Context) {
	h.logOutcome(c, h.svc.Reset(sessionID(c)), "reset")
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) getReading(c *gin.Context) {
	if wait := c.Query("wait"); wait != "" {
		timeout, err := time.ParseDuration(wait)
		if err != nil || timeout <= 0 {
			_ = c.Error(apperrors.NewValidationError("invalid wait duration", err).WithDetails(wait))
			return
		}
		// stay well inside the server's write timeout
		if limit := h.cfg.RequestTimeout / 2; timeout > limit {
			timeout = limit
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		// a timeout here just means the reading is still loading
		_ = h.svc.Wait(ctx, sessionID(c))
	}
	h.respondView(c, http.StatusOK)
}

func (h *handler) postReading(c *gin.Context) {
	file, closeUpload, err := openUpload(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	err = h.svc.Upload(c.Request.Context(), sessionID(c), file)
	closeUpload()
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respondView(c, http.StatusAccepted)
}

func (h *handler) postReadingURL(c *gin.Context) {
	var req models.URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid request format", err))
		return
	}
	if err := h.fetchURL(c, req.URL); err != nil {
		_ = c.Error(err)
		return
	}
	h.respondView(c, http.StatusAccepted)
}

func (h *handler) deleteReading(c *gin.Context) {
	if err := h.svc.Reset(sessionID(c)); err != nil {
		_ = c.Error(err)
		return
	}
	h.respondView(c, http.StatusOK)
}

func (h *handler) fetchURL(c *gin.Context, imageURL string) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()
	return h.svc.UploadFromURL(ctx, sessionID(c), imageURL)
}

// openUpload opens the multipart image. The returned func closes the part and
// must be called once the content has been consumed.
func openUpload(c *gin.Context) (reading.File, func(), error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return reading.File{}, nil, err
		}
		return reading.File{}, nil, apperrors.NewValidationError(fmt.Sprintf("multipart field %q is required", uploadField), err)
	}

	file := reading.File{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
	}
	f, err := header.Open()
	if err != nil {
		// reported like any other unreadable file
		file.Content = &failingReader{err: err}
		return file, func() {}, nil
	}

	file.Content = f
	return file, func() { f.Close() }, nil
}

func (h *handler) respondView(c *gin.Context, status int) {
	view, err := h.svc.View(sessionID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, view)
}

func (h *handler) logOutcome(c *gin.Context, err error, action string) {
	if err == nil {
		return
	}
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"session_id": sessionID(c),
		"action":     action,
	})
	if errors.Is(err, reading.ErrBusy) {
		entry.Info("Request ignored while a reading is in progress")
		return
	}
	entry.Warn("Request recorded a failure")
}

func (h *handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:   "available",
		Version:  "1.0.0",
		Time:     time.Now().UTC().Format(time.RFC3339),
		Oracle:   h.oracleName,
		Sessions: h.svc.Sessions(),
	})
}

func (h *handler) metricsReport(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"readings": h.metrics.GetMetrics(),
		"pool":     h.pool.GetStats(),
		"sessions": h.svc.Sessions(),
	})
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"processing_time_ms": time.Since(start).Milliseconds(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
		}).Info("Request handled")
	}
}

// requestSizeLimiter rejects bodies declared larger than maxBytes up front
// and caps the rest
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			_ = c.Error(&http.MaxBytesError{Limit: maxBytes})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// bodyLimiter only caps the body; handlers see the overflow as a read error
func bodyLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), err)
		}
	}
}

func determineStatusCode(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case apperrors.GetStatusCode(err) != http.StatusInternalServerError:
		return apperrors.GetStatusCode(err)
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
		"session_id":  sessionID(c),
	}).Error("Request failed")

	resp := models.ErrorResponse{
		Error: http.StatusText(code),
		Kind:  string(apperrors.TypeOf(err)),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
	}
	c.AbortWithStatusJSON(code, resp)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"go-style-scout/internal/config"
	apperrors "go-style-scout/internal/errors"
	"go-style-scout/internal/logger"
	"go-style-scout/internal/observer"
	"go-style-scout/internal/service"
	"go-style-scout/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Version is reported by /health.
const Version = "1.0.0"

const (
	uploadField     = "image_file"
	requestIDHeader = "X-Request-ID"
)

func NewHandler(svc service.OutfitSearchService, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Logger(),
		gin.CustomRecovery(recoverPanic),
		requestID(),
		cors(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	limiter := concurrencyLimiter(semaphore.NewWeighted(cfg.MaxConcurrentRequests))

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", metricsHandler(metrics))
	r.POST("/find-similar-outfits", limiter, findSimilarOutfits(svc, cfg))
	r.POST("/find-similar-outfits/url", limiter, findSimilarOutfitsFromURL(svc, cfg))

	return r
}

func findSimilarOutfits(svc service.OutfitSearchService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile(uploadField)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				respondError(c, tooLarge(err))
				return
			}
			respondError(c, apperrors.NewValidationError("No image file uploaded.", err))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, apperrors.NewInternalError("cannot open uploaded file", err))
			return
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			respondError(c, apperrors.NewInternalError("cannot read uploaded file", err))
			return
		}

		requestLogger(c).WithFields(logrus.Fields{
			"filename": fileHeader.Filename,
			"bytes":    len(raw),
		}).Info("Image received, starting processing")

		ctx, cancel := pipelineContext(c, cfg)
		defer cancel()

		outcome, err := svc.FindSimilar(ctx, raw)
		respondOutcome(c, outcome, err)
	}
}

func findSimilarOutfitsFromURL(svc service.OutfitSearchService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.URLSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.NewValidationError("Request body must be JSON with a \"url\" field.", err))
			return
		}

		requestLogger(c).WithField("url", req.URL).Info("Image URL received, starting processing")

		ctx, cancel := pipelineContext(c, cfg)
		defer cancel()

		outcome, err := svc.FindSimilarFromURL(ctx, req.URL)
		respondOutcome(c, outcome, err)
	}
}

// pipelineContext bounds the pipeline by REQUEST_TIMEOUT. Unless cancellation
// is propagated, the pipeline keeps running after the client disconnects.
func pipelineContext(c *gin.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	parent := c.Request.Context()
	if !cfg.CancelOnDisconnect {
		parent = context.WithoutCancel(parent)
	}
	return context.WithTimeout(parent, cfg.RequestTimeout)
}

func respondOutcome(c *gin.Context, outcome *models.SearchOutcome, err error) {
	if err != nil {
		if c.Request.Context().Err() != nil {
			requestLogger(c).WithError(err).Info("Client went away, dropping response")
			c.Abort()
			return
		}
		respondError(c, err)
		return
	}

	if outcome.NoMatches() {
		requestLogger(c).Info("No relevant clothing items were detected or matched.")
	} else {
		requestLogger(c).WithField("categories", outcome.Results.Labels()).Info("Search complete. Sending results.")
	}

	c.Header("X-Processing-Time", strconv.FormatFloat(outcome.ProcessingTimeSec, 'f', 3, 64))
	c.JSON(http.StatusOK, outcome.Results)
}

func healthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:     "available",
		Version:    Version,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Goroutines: runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}
	c.JSON(http.StatusOK, resp)
}

func metricsHandler(metrics *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.JSON(http.StatusOK, observer.MetricsSnapshot{})
			return
		}
		c.JSON(http.StatusOK, metrics.Snapshot())
	}
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader+", X-Processing-Time")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// concurrencyLimiter queues pipeline requests beyond the semaphore's weight.
// A client that gives up while queued gets 503.
func concurrencyLimiter(sem *semaphore.Weighted) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sem.Acquire(c.Request.Context(), 1); err != nil {
			respondError(c, apperrors.NewUnavailableError("Server is busy, try again later.", err))
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func recoverPanic(c *gin.Context, recovered any) {
	respondError(c, apperrors.NewInternalError("panic while handling request", fmt.Errorf("%v", recovered)))
}

func tooLarge(err error) *apperrors.AppError {
	appErr := apperrors.NewValidationError("Uploaded file is too large.", err)
	appErr.StatusCode = http.StatusRequestEntityTooLarge
	return appErr
}

// respondError writes the error body. 5xx responses never carry details.
func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	message := apperrors.GenericInternalMessage
	if appErr, ok := apperrors.As(err); ok && appErr.IsClientError() {
		message = appErr.Message
	}

	entry := requestLogger(c).WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
	})
}

func requestLogger(c *gin.Context) *logrus.Entry {
	return logger.FromContext(c.Request.Context())
}

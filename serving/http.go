package serving

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

// Error kinds returned in the "error" field of failed responses.
const (
	ErrKindValidation       = "validation_error"
	ErrKindModelUnavailable = "model_unavailable"
	ErrKindInternal         = "internal_error"
)

type handler struct {
	svc *Service
}

// NewRouter returns a gin engine serving GET /health and POST /predict.
func NewRouter(svc *Service, logger log.Logger) *gin.Engine {
	if logger == nil {
		logger = log.GetLoggerWithName("http")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	h := &handler{svc: svc}
	router.GET("/health", h.health)
	router.POST("/predict", h.predict)
	return router
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(ContextWithRequestID(c.Request.Context(), id))

		c.Next()

		_ = errors.SafeExecute("access log", func() error {
			logger.Info("HTTP request",
				log.RequestIDKey, id,
				"http.method", c.Request.Method,
				log.RouteKey, c.FullPath(),
				log.StatusKey, c.Writer.Status(),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
			return nil
		})
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health(c.Request.Context()))
}

func (h *handler) predict(c *gin.Context) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   ErrKindValidation,
			"details": "request body must be a JSON object: " + err.Error(),
		})
		return
	}

	pred, err := h.svc.Predict(c.Request.Context(), record)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

func writeError(c *gin.Context, err error) {
	var (
		ve *errors.ValidationError
		mu *errors.ModelUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ErrKindValidation, "details": ve.Error()})
	case errors.As(err, &mu):
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrKindModelUnavailable, "details": mu.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrKindInternal, "details": "prediction failed: " + err.Error()})
	}
}

package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/metrics"
)

var (
	validatorOnce sync.Once
	validatorErr  error
)

// registerValidators adds the notblank rule to gin's validator and reports
// field names by their json tag.
func registerValidators() error {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorErr = errors.New("gin validator engine is not validator/v10")
			return
		}
		if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
			validatorErr = fmt.Errorf("register notblank: %w", err)
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validatorErr
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// NewRouter builds the HTTP API.
func NewRouter(h *HTTPHandler, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	if err := registerValidators(); err != nil {
		logger.Error("request validation rules not registered", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	{
		api.POST("/sales", h.CreateSale)
		api.GET("/sales/:id", h.GetSale)
		api.POST("/sales/:id/cancel", h.CancelSale)

		api.POST("/returns", h.RequestReturn)
		api.GET("/returns/:id", h.GetReturn)
		api.POST("/returns/:id/approve", h.ApproveReturn)
		api.POST("/returns/:id/reject", h.RejectReturn)

		api.GET("/inventory/:productId", h.GetStock)
		api.POST("/inventory/:productId/adjust", h.AdjustStock)
		api.DELETE("/inventory/:productId", h.RetireStock)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDKey - ключ trace-ID в контексте gin.
const TraceIDKey = "trace_id"

// RequestLogger пишет строку в лог api на каждый запрос. Trace-ID берётся
// из span otelgin, без него генерируется UUID.
type RequestLogger struct {
	log *logging.Logger
}

func NewRequestLogger() *RequestLogger {
	return &RequestLogger{log: logging.GetComponentLogger(logging.ComponentAPI)}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := uuid.NewString()
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		c.Set(TraceIDKey, traceID)
		c.Header("X-Trace-Id", traceID)

		start := time.Now()
		c.Next()

		line := fmt.Sprintf("[HTTP] %s %s%s %d %s trace=%s",
			c.Request.Method, c.Request.URL.Path, plotRef(c), c.Writer.Status(), time.Since(start), traceID)
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			line += " err=" + strings.Join(errs.Errors(), "; ")
		}
		switch {
		case c.Writer.Status() >= 500:
			rl.log.Error("❌ %s", line)
		case c.Writer.Status() >= 400:
			rl.log.Warn("⚠️ %s", line)
		default:
			rl.log.Info("%s", line)
		}
	}
}

// plotRef дописывает к строке лога мир и плот, если они есть в маршруте.
func plotRef(c *gin.Context) string {
	w, id := c.Param("world"), c.Param("id")
	if w == "" {
		return ""
	}
	return fmt.Sprintf(" (plot %s/%s)", w, id)
}

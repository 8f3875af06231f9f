package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
	"github.com/xiebiao/stockkeeper/pkg/response"
	"github.com/xiebiao/stockkeeper/pkg/tracing"
)

// HeaderRequestID 请求ID的Header名（调用方传入则沿用，否则生成）
const HeaderRequestID = "X-Request-ID"

const tracerName = "stockkeeper/http"

// RequestContext 为每个请求准备上下文
// 设计说明：
// 1. 生成或沿用X-Request-ID，并写回响应Header
// 2. 开启一个HTTP span，trace_id写进日志字段
// 3. 带request_id/trace_id的Logger放进context，后续代码用zerolog.Ctx(ctx)取出
// 4. 请求结束时输出一条访问日志
func RequestContext(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		ctx, span := tracing.StartSpan(c.Request.Context(), tracerName, c.Request.Method+" "+c.FullPath())
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
			attribute.String("request_id", requestID),
		)
		defer span.End()

		fields := base.With().Str("request_id", requestID)
		if traceID := tracing.ExtractTraceID(ctx); traceID != "" {
			fields = fields.Str("trace_id", traceID)
		}
		log := fields.Logger()
		c.Request = c.Request.WithContext(log.WithContext(ctx))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP请求")
	}
}

// Recovery panic恢复，记录堆栈后返回统一的内部错误响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Str("panic", fmt.Sprint(r)).
					Stack().
					Msg("请求处理panic")
				response.ErrorWithCode(c, apperrors.ErrCodeInternal, "系统内部错误")
				c.Abort()
			}
		}()
		c.Next()
	}
}

package middleware

import (
	"time"

	"taklaci-self/internal/pkg/log"

	"github.com/labstack/echo/v4"
)

// LoggingMiddleware 日志中间件
func LoggingMiddleware(logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			statusCode := c.Response().Status

			if err != nil {
				logger.ErrorContext(c.Request().Context(), "请求处理出错",
					log.String("method", c.Request().Method),
					log.String("path", c.Request().URL.Path),
					log.Int("status_code", statusCode),
					log.Duration("duration", duration.Milliseconds()),
					log.Any("error", err),
				)
				return err
			}

			switch {
			case statusCode >= 500:
				logger.ErrorContext(c.Request().Context(), "请求完成（服务器错误）",
					log.String("method", c.Request().Method),
					log.String("path", c.Request().URL.Path),
					log.Int("status_code", statusCode),
					log.Duration("duration", duration.Milliseconds()),
					log.Int64("response_size", c.Response().Size),
				)
			case statusCode >= 400:
				logger.WarnContext(c.Request().Context(), "请求完成（客户端错误）",
					log.String("method", c.Request().Method),
					log.String("path", c.Request().URL.Path),
					log.Int("status_code", statusCode),
					log.Duration("duration", duration.Milliseconds()),
					log.Int64("response_size", c.Response().Size),
				)
			default:
				logger.InfoContext(c.Request().Context(), "请求完成",
					log.String("method", c.Request().Method),
					log.String("path", c.Request().URL.Path),
					log.Int("status_code", statusCode),
					log.Duration("duration", duration.Milliseconds()),
					log.Int64("response_size", c.Response().Size),
				)
			}

			return nil
		}
	}
}

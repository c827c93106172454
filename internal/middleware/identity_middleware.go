package middleware

import (
	"github.com/labstack/echo/v4"

	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/response"
	"taklaci-self/internal/pkg/xerrors"
)

// PlayerIDHeader 网关透传的玩家身份 Header
const PlayerIDHeader = "X-Player-ID"

// PlayerIdentityMiddleware 身份中间件 - 从网关透传的 Header 提取玩家ID。
// 请求在上游已完成鉴权，这里只做提取与注入。
func PlayerIdentityMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			playerID := c.Request().Header.Get(PlayerIDHeader)
			if playerID == "" {
				logger.WarnContext(ctx, "缺少玩家身份 Header",
					log.String("path", c.Request().URL.Path))
				err := xerrors.New(
					xerrors.CodeInvalidRequest,
					"缺少玩家身份信息",
				).WithService("middleware", "identity")

				return respWriter.WriteError(ctx, c.Response().Writer, err)
			}

			c.Set("player_id", playerID)
			return next(c)
		}
	}
}

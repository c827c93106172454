package validator

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator 包装 go-playground validator 供 Echo 使用，
// 验证失败时返回翻译后的中文消息
type CustomValidator struct {
	validator *validator.Validate
}

// Validate 实现 echo.Validator 接口
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, TranslateValidationError(err))
	}
	return nil
}

// New 创建验证器实例
func New() echo.Validator {
	return &CustomValidator{
		validator: validator.New(),
	}
}

package response

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/xerrors"
)

// EmptyData 是一个用于在 API 成功响应中表示“无数据”的结构体。
// 使用一个具体的空结构体，比直接返回 nil 或 interface{} 更类型安全、意图更明确。
type EmptyData struct{}

// ResponseResult 是一个通用的API响应结构体
type ResponseResult[T any] struct {
	Code      int    `json:"code"`            // 业务响应码
	Message   string `json:"message"`         // 响应消息
	Data      *T     `json:"data,omitempty"`  // 响应数据，成功时返回
	Error     string `json:"error,omitempty"` // 错误详情，失败时返回
	Timestamp int64  `json:"timestamp"`       // Unix时间戳
}

// Success 创建一个成功的响应
func Success[T any](data *T) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      xerrors.CodeSuccess.ToInt(),
		Message:   "操作成功",
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// Error 创建一个失败的响应
// 注意：对于失败响应，泛型 T 的具体类型不重要，所以 Data 字段将为 nil
func Error[T any](code int, message string, err string) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      code,
		Message:   message,
		Error:     err,
		Timestamp: time.Now().Unix(),
	}
}

// Writer 统一响应写入接口，供 handler 和中间件使用
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
	WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error
}

// ResponseHandler Writer 的默认实现
type ResponseHandler struct {
	logger      log.Logger
	environment string
}

// NewResponseHandler 创建响应处理器
func NewResponseHandler(logger log.Logger, environment string) *ResponseHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ResponseHandler{
		logger:      logger,
		environment: environment,
	}
}

// WriteSuccess 写入成功响应
func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := &ResponseResult[any]{
		Code:      xerrors.CodeSuccess.ToInt(),
		Message:   "操作成功",
		Data:      &data,
		Timestamp: time.Now().Unix(),
	}
	return h.write(ctx, w, resp, http.StatusOK)
}

// WriteError 写入错误响应；AppError 按其错误码映射 HTTP 状态
func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	appErr, ok := err.(*xerrors.AppError)
	if !ok {
		appErr = xerrors.NewWithError(xerrors.CodeInternalError, "系统内部错误", err)
	}

	resp := &ResponseResult[any]{
		Code:      appErr.Code.ToInt(),
		Message:   appErr.Message,
		Timestamp: time.Now().Unix(),
	}

	// 生产环境不回传底层错误细节
	if h.environment != "production" && appErr.Err != nil {
		resp.Error = appErr.Err.Error()
	}

	log.LogAppError(ctx, "请求处理失败", appErr)

	return h.write(ctx, w, resp, xerrors.GetHTTPStatus(appErr.Code))
}

// WriteJSON 直接返回 JSON 响应(跳过 ResponseResult 包装)
func (h *ResponseHandler) WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.ErrorContext(ctx, "写入JSON响应失败", log.Any("error", err))
		return err
	}
	return nil
}

func (h *ResponseHandler) write(ctx context.Context, w http.ResponseWriter, resp any, statusCode int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// 此时 header 已写入，只能记录日志
		h.logger.ErrorContext(ctx, "写入JSON响应失败", log.Any("error", err))
		return err
	}
	return nil
}

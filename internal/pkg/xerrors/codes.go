package xerrors

import "fmt"

// ErrorCode 错误码类型（类型安全）
type ErrorCode int

// IsValid 检查错误码是否在预定义列表中
func (c ErrorCode) IsValid() bool {
	_, exists := codeMessages[c]
	return exists
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (undefined error code)", c)
}

// Message 返回错误码对应的消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// ToInt 转换为 int（用于 JSON 序列化等场景）
func (c ErrorCode) ToInt() int {
	return int(c)
}

// -----------------------------------------------------------------------------
// 业务错误码统一定义
// 按模块或领域对错误码进行分段，便于管理。
// -----------------------------------------------------------------------------
const (
	// 1xxxxx: 通用错误码
	CodeSuccess           ErrorCode = 100000 // 操作成功
	CodeInternalError     ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams     ErrorCode = 100002 // 参数错误
	CodeInvalidRequest    ErrorCode = 100003 // 请求格式错误
	CodeResourceNotFound  ErrorCode = 100404 // 资源不存在
	CodeDuplicateResource ErrorCode = 100409 // 资源已存在

	// 4xxxxx: 玩家相关错误码
	CodePlayerNotFound ErrorCode = 400001 // 玩家不存在

	// 6xxxxx: 业务逻辑错误码
	CodeBusinessLogicError  ErrorCode = 600001 // 业务逻辑错误
	CodeOperationNotAllowed ErrorCode = 600003 // 操作不被允许

	// 7xxxxx: 外部服务错误码
	CodeExternalServiceError ErrorCode = 700001 // 外部服务错误
	CodeDatabaseError        ErrorCode = 700003 // 数据库错误
	CodeCacheError           ErrorCode = 700004 // 缓存服务错误
	CodeMessageQueueError    ErrorCode = 700005 // 消息队列错误

	// 8xxxxx: 飞行/遭遇业务错误码
	// 鸽子相关 (80xxxx)
	CodeBirdNotFound        ErrorCode = 800001 // 鸽子不存在
	CodeBirdNotReady        ErrorCode = 800002 // 鸽子未处于可起飞状态
	CodeBirdWrongOwner      ErrorCode = 800003 // 鸽子不属于该玩家
	CodeInsufficientStamina ErrorCode = 800004 // 鸽子体力不足

	// 飞行会话相关 (81xxxx)
	CodeAlreadyFlying   ErrorCode = 810001 // 玩家已有进行中的飞行
	CodeSessionNotFound ErrorCode = 810002 // 飞行会话不存在
	CodeSessionInactive ErrorCode = 810003 // 飞行会话已结束
	CodeEmptyFlock      ErrorCode = 810004 // 飞行至少需要一只鸽子

	// 遭遇相关 (82xxxx)
	CodeEncounterNotFound   ErrorCode = 820001 // 遭遇不存在
	CodeEncounterPairActive ErrorCode = 820002 // 该会话对已存在进行中的遭遇
	CodeEncounterNotPending ErrorCode = 820003 // 遭遇不处于可取消状态
)

// -----------------------------------------------------------------------------
// HTTP 状态码常量定义
// -----------------------------------------------------------------------------
const (
	HTTPStatusOK        = 200
	HTTPStatusCreated   = 201
	HTTPStatusNoContent = 204

	HTTPStatusBadRequest          = 400
	HTTPStatusUnauthorized        = 401
	HTTPStatusForbidden           = 403
	HTTPStatusNotFound            = 404
	HTTPStatusConflict            = 409
	HTTPStatusUnprocessableEntity = 422
	HTTPStatusTooManyRequests     = 429

	HTTPStatusInternalServerError = 500
	HTTPStatusServiceUnavailable  = 503
)

// -----------------------------------------------------------------------------
// 错误消息映射
// -----------------------------------------------------------------------------
var codeMessages = map[ErrorCode]string{
	CodeSuccess:           "操作成功",
	CodeInternalError:     "内部服务错误",
	CodeInvalidParams:     "参数错误",
	CodeInvalidRequest:    "请求格式错误",
	CodeResourceNotFound:  "资源不存在",
	CodeDuplicateResource: "资源已存在",

	CodePlayerNotFound: "玩家不存在",

	CodeBusinessLogicError:  "业务逻辑错误",
	CodeOperationNotAllowed: "操作不被允许",

	CodeExternalServiceError: "外部服务错误",
	CodeDatabaseError:        "数据库错误",
	CodeCacheError:           "缓存服务错误",
	CodeMessageQueueError:    "消息队列错误",

	CodeBirdNotFound:        "鸽子不存在",
	CodeBirdNotReady:        "鸽子未处于可起飞状态",
	CodeBirdWrongOwner:      "鸽子不属于该玩家",
	CodeInsufficientStamina: "鸽子体力不足",

	CodeAlreadyFlying:   "玩家已有进行中的飞行",
	CodeSessionNotFound: "飞行会话不存在",
	CodeSessionInactive: "飞行会话已结束",
	CodeEmptyFlock:      "飞行至少需要一只鸽子",

	CodeEncounterNotFound:   "遭遇不存在",
	CodeEncounterPairActive: "该会话对已存在进行中的遭遇",
	CodeEncounterNotPending: "遭遇不处于可取消状态",
}

// GetHTTPStatus 根据业务错误码获取HTTP状态码
func GetHTTPStatus(code ErrorCode) int {
	switch {
	case code == CodeSuccess:
		return HTTPStatusOK
	case code == CodeResourceNotFound,
		code == CodePlayerNotFound,
		code == CodeBirdNotFound,
		code == CodeSessionNotFound,
		code == CodeEncounterNotFound:
		return HTTPStatusNotFound
	case code == CodeDuplicateResource,
		code == CodeAlreadyFlying,
		code == CodeEncounterPairActive:
		return HTTPStatusConflict
	case code == CodeInvalidParams,
		code == CodeInvalidRequest,
		code == CodeBirdNotReady,
		code == CodeBirdWrongOwner,
		code == CodeInsufficientStamina,
		code == CodeEmptyFlock,
		code == CodeSessionInactive,
		code == CodeEncounterNotPending:
		return HTTPStatusBadRequest
	case code >= 600000 && code < 700000:
		return HTTPStatusBadRequest
	case code >= 700000 && code < 800000:
		return HTTPStatusServiceUnavailable
	default:
		return HTTPStatusInternalServerError
	}
}

// 辅助函数
// getCategoryByCode 根据错误码获取分类
func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 400000 && code < 500000:
		return "player"
	case code >= 600000 && code < 700000:
		return "business"
	case code >= 700000 && code < 800000:
		return "external"
	case code >= 800000 && code < 810000:
		return "bird"
	case code >= 810000 && code < 820000:
		return "flight"
	case code >= 820000 && code < 830000:
		return "encounter"
	default:
		return "unknown"
	}
}

// getLevelByCode 根据错误码获取级别
func getLevelByCode(code ErrorCode) ErrorLevel {
	switch {
	case code == CodeSuccess:
		return LevelInfo
	case code == CodeInvalidParams || code == CodeInvalidRequest:
		return LevelWarn
	case code >= 700001 && code < 800000:
		return LevelCritical
	default:
		return LevelError
	}
}

// isRetryableByCode 根据错误码判断是否可重试
func isRetryableByCode(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		CodeInternalError:        true,
		CodeExternalServiceError: true,
		CodeDatabaseError:        true,
		CodeCacheError:           true,
		CodeMessageQueueError:    true,
	}
	return retryableCodes[code]
}

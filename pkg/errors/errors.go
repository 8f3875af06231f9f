package errors

import (
	"errors"
	"fmt"
)

// AppError 自定义应用错误
// 设计说明：
// 1. Code用于客户端判断错误类型（不要直接暴露HTTP状态码）
// 2. Message是用户友好的提示信息（下单被拒时直接展示给用户）
// 3. Err是内部错误，仅记录到日志，不返回给客户端
type AppError struct {
	Code    int    `json:"code"`    // 业务错误码
	Message string `json:"message"` // 用户友好的错误提示
	Err     error  `json:"-"`       // 内部错误（不序列化）
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Is和errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新的AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装系统错误（如数据库错误、网络错误）
// 用途：将底层错误转换为业务错误，隐藏实现细节
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// WithCode 包装错误并指定错误码（如存储层错误需要区分数据库/缓存）
func WithCode(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// =========================================
// 错误码定义
// =========================================
// 规范：
// - 4xxxx: 客户端错误（参数错误、业务规则校验失败）
// - 5xxxx: 服务端错误（数据库异常、外部服务调用失败）

const (
	// 系统级错误码（50000-50099）
	ErrCodeInternal          = 50000 // 内部错误
	ErrCodeDatabaseError     = 50001 // 数据库错误
	ErrCodeRedisError        = 50002 // Redis错误
	ErrCodeReservationFailed = 50003 // 预占执行失败（匹配但未修改）
	ErrCodeMessageQueueError = 50004 // 消息队列错误

	// 资源错误（40400-40499）
	ErrCodeProductNotFound = 40402 // 商品不存在

	// 业务规则错误（40000-40099）
	ErrCodeInsufficientStock   = 40001 // 库存不足
	ErrCodeConcurrencyConflict = 40010 // 并发冲突（快照已过期）
	ErrCodeDuplicateOperation  = 40011 // 重复操作（订单已处理）

	// 参数错误（40900-40999）
	ErrCodeInvalidParams = 40900 // 参数错误
	ErrCodeBindError     = 40901 // 参数绑定失败
)

// =========================================
// 辅助函数
// =========================================

// GetAppError 提取AppError（如果不是AppError则包装成Internal错误）
//
// 领域错误（库存不足、并发冲突等）实现了AppError() *AppError，
// 这里优先使用它们携带快照信息的版本。
func GetAppError(err error) *AppError {
	var carrier interface{ AppError() *AppError }
	if errors.As(err, &carrier) {
		return carrier.AppError()
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, "系统内部错误")
}

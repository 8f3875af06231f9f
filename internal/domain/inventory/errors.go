package inventory

import (
	"fmt"

	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
)

// 库存领域错误定义
//
// 哨兵错误用于errors.Is判断类别；带快照的结构体错误用于向调用方展示具体数字。
// 结构体错误实现AppError()，response包据此生成带错误码的响应。
var (
	// ErrNotFound 商品不存在
	ErrNotFound = apperrors.New(apperrors.ErrCodeProductNotFound, "商品不存在")

	// ErrInsufficientStock 库存不足
	ErrInsufficientStock = apperrors.New(apperrors.ErrCodeInsufficientStock, "库存不足")

	// ErrConcurrencyConflict 校验所用快照已过期
	ErrConcurrencyConflict = apperrors.New(apperrors.ErrCodeConcurrencyConflict, "库存已被并发修改，请重试")

	// ErrReservationFailed 更新命中了文档但没有产生修改
	ErrReservationFailed = apperrors.New(apperrors.ErrCodeReservationFailed, "库存预占失败")

	// ErrDuplicateOperation 同一订单的同一操作已执行过
	ErrDuplicateOperation = apperrors.New(apperrors.ErrCodeDuplicateOperation, "重复操作（订单已处理）")

	// 校验错误（ValidationError.Reason）
	ErrValidation       = apperrors.New(apperrors.ErrCodeInvalidParams, "参数错误")
	ErrNoUsableVariant  = apperrors.New(apperrors.ErrCodeInvalidParams, "商品没有可用的规格")
	ErrInvalidQuantity  = apperrors.New(apperrors.ErrCodeInvalidParams, "数量必须大于0")
	ErrInvalidProductID = apperrors.New(apperrors.ErrCodeInvalidParams, "商品ID不能为空")
	ErrInvalidOrderID   = apperrors.New(apperrors.ErrCodeInvalidParams, "订单ID不能为空")
)

// subject 错误信息里的商品/规格描述
func subject(productID, variantID string) string {
	if variantID != "" {
		return fmt.Sprintf("商品 %s 规格 %s", productID, variantID)
	}
	return fmt.Sprintf("商品 %s", productID)
}

// NotFoundError 明细引用的商品不存在
type NotFoundError struct {
	ProductID string
	VariantID string
}

func (e *NotFoundError) Error() string {
	return subject(e.ProductID, e.VariantID) + " 不存在"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) AppError() *apperrors.AppError {
	return apperrors.New(ErrNotFound.Code, e.Error())
}

// InsufficientStockError 请求数量超过可用库存（携带读取时的快照）
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s 库存不足 (Available: %d, Required: %d)",
		subject(e.ProductID, e.VariantID), e.Available, e.Required)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *InsufficientStockError) AppError() *apperrors.AppError {
	return apperrors.New(ErrInsufficientStock.Code, e.Error())
}

// ConcurrencyConflictError 原子更新没有命中，携带重新读取的最新快照
type ConcurrencyConflictError struct {
	ProductID string
	VariantID string
	Available int
	Reserved  int
	Total     int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s 库存已被并发修改，请重试 (Available: %d, Reserved: %d, Total: %d)",
		subject(e.ProductID, e.VariantID), e.Available, e.Reserved, e.Total)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func (e *ConcurrencyConflictError) AppError() *apperrors.AppError {
	return apperrors.New(ErrConcurrencyConflict.Code, e.Error())
}

// ValidationError 输入不合法，或商品存在但没有可用规格
type ValidationError struct {
	Reason    *apperrors.AppError
	ProductID string
	VariantID string
}

func (e *ValidationError) Error() string {
	if e.ProductID == "" {
		return e.Reason.Message
	}
	return fmt.Sprintf("%s: %s", subject(e.ProductID, e.VariantID), e.Reason.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == e.Reason
}

func (e *ValidationError) AppError() *apperrors.AppError {
	return apperrors.New(e.Reason.Code, e.Error())
}

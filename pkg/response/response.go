package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
)

// Response 统一响应结构
// 设计说明：
// 1. Code是业务错误码（非HTTP状态码），0表示成功
// 2. Message是用户友好的提示信息（库存不足时包含商品与可用数量）
// 3. Data是业务数据，失败时可携带库存快照
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应（自动处理AppError与领域错误）
//
//	if err := engine.Reserve(ctx, orderID, items); err != nil {
//	    response.Error(c, err)
//	    return
//	}
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData 错误响应并附带数据（如并发冲突时的最新库存快照）
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	appErr := apperrors.GetAppError(err)

	// 内部错误只写日志，不返回给客户端
	log := zerolog.Ctx(c.Request.Context())
	if appErr.Code >= apperrors.ErrCodeInternal {
		log.Error().Err(err).Int("code", appErr.Code).Msg("请求处理失败")
	} else if appErr.Err != nil {
		log.Debug().Err(appErr.Err).Int("code", appErr.Code).Msg("业务错误")
	}

	c.JSON(http.StatusOK, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Data:    data,
	})
}

// ErrorWithCode 自定义错误码和消息
func ErrorWithCode(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

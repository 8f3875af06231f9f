package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	appinventory "github.com/xiebiao/stockkeeper/internal/application/inventory"
	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/interface/http/dto"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
	"github.com/xiebiao/stockkeeper/pkg/response"
)

// maxStockInfoIDs 批量查询一次最多的商品数
const maxStockInfoIDs = 200

// InventoryHandler 库存HTTP处理器
type InventoryHandler struct {
	engine *appinventory.Engine
	query  *appinventory.QueryService
}

// NewInventoryHandler 创建库存处理器
func NewInventoryHandler(engine *appinventory.Engine, query *appinventory.QueryService) *InventoryHandler {
	return &InventoryHandler{
		engine: engine,
		query:  query,
	}
}

// CheckAvailability 查询单个商品（或规格）能否满足购买数量
// @Summary      查询商品可用库存
// @Description  不管理库存的商品返回无限库存（unlimited=true）
// @Tags         库存
// @Produce      json
// @Param        id          path   string true  "商品ID"
// @Param        variant_id  query  string false "规格ID（多规格商品必填）"
// @Param        quantity    query  int    false "购买数量，默认1"
// @Success      200 {object} response.Response{data=inventory.Availability}
// @Failure      400 {object} response.Response "规格不可用"
// @Failure      404 {object} response.Response "商品不存在"
// @Router       /api/v1/inventory/products/{id}/availability [get]
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	var q dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	a, err := h.query.CheckStockAvailability(c.Request.Context(), c.Param("id"), q.VariantID, q.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, a)
}

// GetStockInfo 批量查询商品级库存
// @Summary      批量查询商品库存
// @Description  多规格商品返回各规格之和；不存在的商品不出现在结果里
// @Tags         库存
// @Produce      json
// @Param        ids query string true "商品ID，逗号分隔" example(sku-1001,sku-1002)
// @Success      200 {object} response.Response{data=dto.StockInfoResponse}
// @Router       /api/v1/inventory/products [get]
func (h *InventoryHandler) GetStockInfo(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: ids不能为空")
		return
	}
	if len(ids) > maxStockInfoIDs {
		response.ErrorWithCode(c, apperrors.ErrCodeInvalidParams, "参数错误: ids过多")
		return
	}

	info, err := h.query.GetStockInfo(c.Request.Context(), ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, &dto.StockInfoResponse{Products: info})
}

// Reserve 下单预占库存
// @Summary      预占库存
// @Description  任一明细失败时已预占的明细全部释放；同一订单重复请求不会重复预占
// @Tags         库存
// @Accept       json
// @Produce      json
// @Param        request body dto.OrderItemsRequest true "订单明细"
// @Success      200 {object} response.Response{data=dto.OperationResponse}
// @Failure      400 {object} response.Response "参数错误"
// @Failure      404 {object} response.Response "商品不存在"
// @Failure      409 {object} response.Response "库存不足或并发冲突"
// @Router       /api/v1/inventory/reservations [post]
func (h *InventoryHandler) Reserve(c *gin.Context) {
	h.handle(c, appinventory.OpReserve, h.engine.Reserve)
}

// Deduct 支付成功，预占转为扣减
// @Summary      扣减库存
// @Description  商品或规格不存在时跳过该明细（记录告警），只有存储故障才返回错误
// @Tags         库存
// @Accept       json
// @Produce      json
// @Param        request body dto.OrderItemsRequest true "订单明细"
// @Success      200 {object} response.Response{data=dto.OperationResponse}
// @Router       /api/v1/inventory/deductions [post]
func (h *InventoryHandler) Deduct(c *gin.Context) {
	h.handle(c, appinventory.OpDeduct, h.engine.Deduct)
}

// Release 未支付取消，释放预占
// @Summary      释放预占
// @Tags         库存
// @Accept       json
// @Produce      json
// @Param        request body dto.OrderItemsRequest true "订单明细"
// @Success      200 {object} response.Response{data=dto.OperationResponse}
// @Router       /api/v1/inventory/releases [post]
func (h *InventoryHandler) Release(c *gin.Context) {
	h.handle(c, appinventory.OpRelease, h.engine.Release)
}

// Restock 退款回补库存
// @Summary      回补库存
// @Tags         库存
// @Accept       json
// @Produce      json
// @Param        request body dto.OrderItemsRequest true "订单明细"
// @Success      200 {object} response.Response{data=dto.OperationResponse}
// @Router       /api/v1/inventory/restocks [post]
func (h *InventoryHandler) Restock(c *gin.Context) {
	h.handle(c, appinventory.OpIncrement, h.engine.IncrementStock)
}

type operation func(ctx context.Context, orderID string, items []inventory.LineItem) error

// handle 写操作的公共流程：绑定 → 调用引擎 → 响应
func (h *InventoryHandler) handle(c *gin.Context, op string, fn operation) {
	// 1. 参数绑定与验证
	var req dto.OrderItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrCodeBindError, "参数错误: "+err.Error())
		return
	}

	// 2. 调用应用层
	if err := fn(c.Request.Context(), req.OrderID, req.LineItems()); err != nil {
		// 并发冲突附带最新快照，方便调用方决定是否重试
		var conflict *inventory.ConcurrencyConflictError
		if errors.As(err, &conflict) {
			response.ErrorWithData(c, err, inventory.Availability{
				Available: conflict.Available,
				Reserved:  conflict.Reserved,
				Total:     conflict.Total,
			})
			return
		}
		response.Error(c, err)
		return
	}

	// 3. 构建HTTP响应
	response.Success(c, &dto.OperationResponse{
		OrderID: req.OrderID,
		Op:      op,
		Items:   len(req.Items),
	})
}

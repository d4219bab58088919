package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// IssuanceHandler 物料发料处理器
type IssuanceHandler struct {
	svc *service.IssuanceService
}

func NewIssuanceHandler(svc *service.IssuanceService) *IssuanceHandler {
	return &IssuanceHandler{svc: svc}
}

// Issue 发料
// POST /api/v1/inventory/issue
func (h *IssuanceHandler) Issue(c *gin.Context) {
	var req service.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Issue(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Receive 入库
// POST /api/v1/inventory/receive
func (h *IssuanceHandler) Receive(c *gin.Context) {
	var req service.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.svc.Receive(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, inv)
}

// List 库存列表
// GET /api/v1/inventory
func (h *IssuanceHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"material_id": c.Query("material_id"),
		"location_id": c.Query("location_id"),
		"search":      c.Query("search"),
	}

	items, total, err := h.svc.ListInventory(c.Request.Context(), GetActor(c), page, pageSize, filters)
	if err != nil {
		HandleError(c, err)
		return
	}

	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}

// Transactions 某订单或批次的库存交易
// GET /api/v1/orders/:id/transactions
func (h *IssuanceHandler) Transactions(c *gin.Context) {
	txs, err := h.svc.ListTransactions(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, txs)
}

package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 生产订单处理器
type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create 创建生产订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, order)
}

// List 订单列表
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":     c.Query("status"),
		"product_id": c.Query("product_id"),
		"search":     c.Query("search"),
	}

	items, total, err := h.svc.ListOrders(c.Request.Context(), GetActor(c), page, pageSize, filters)
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

// Get 订单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Activities 订单操作日志
// GET /api/v1/orders/:id/activities
func (h *OrderHandler) Activities(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListActivities(c.Request.Context(), GetActor(c), c.Param("id"), page, pageSize)
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

// Start 订单开工
// POST /api/v1/orders/:id/start
func (h *OrderHandler) Start(c *gin.Context) {
	var req struct {
		AssignedTo *string `json:"assigned_to"`
	}
	// body 可为空
	c.ShouldBindJSON(&req)

	result, err := h.svc.StartOrder(c.Request.Context(), GetActor(c), c.Param("id"), req.AssignedTo)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Block 阻塞订单
// POST /api/v1/orders/:id/block
func (h *OrderHandler) Block(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.BlockOrder(c.Request.Context(), GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Archive 归档阻塞订单
// POST /api/v1/orders/:id/archive
func (h *OrderHandler) Archive(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.ArchiveBlockedOrder(c.Request.Context(), GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Complete 订单完工
// POST /api/v1/orders/:id/complete
func (h *OrderHandler) Complete(c *gin.Context) {
	order, err := h.svc.CompleteOrder(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// GetRun 运行详情（含派生状态）
// GET /api/v1/runs/:id
func (h *OrderHandler) GetRun(c *gin.Context) {
	run, status, err := h.svc.GetRun(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{
		"run":    run,
		"status": status,
	})
}

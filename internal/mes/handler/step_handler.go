package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// StepHandler 运行工步处理器
type StepHandler struct {
	svc *service.StepService
}

func NewStepHandler(svc *service.StepService) *StepHandler {
	return &StepHandler{svc: svc}
}

// List 运行工步列表
// GET /api/v1/runs/:id/steps
func (h *StepHandler) List(c *gin.Context) {
	steps, err := h.svc.ListSteps(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, steps)
}

// Claim 认领工步
// POST /api/v1/steps/:id/claim
func (h *StepHandler) Claim(c *gin.Context) {
	result, err := h.svc.Claim(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Start 开工
// POST /api/v1/steps/:id/start
func (h *StepHandler) Start(c *gin.Context) {
	result, err := h.svc.Start(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Complete 完工
// POST /api/v1/steps/:id/complete
func (h *StepHandler) Complete(c *gin.Context) {
	result, err := h.svc.Complete(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Skip 跳过工步
// POST /api/v1/steps/:id/skip
func (h *StepHandler) Skip(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Skip(c.Request.Context(), GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Assign 管理员改派
// POST /api/v1/steps/:id/assign
func (h *StepHandler) Assign(c *gin.Context) {
	var req struct {
		AssignedTo *string `json:"assigned_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.AdminAssign(c.Request.Context(), GetActor(c), c.Param("id"), req.AssignedTo)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// Add 添加临时工步
// POST /api/v1/runs/:id/steps
func (h *StepHandler) Add(c *gin.Context) {
	var req service.AddStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	step, err := h.svc.AddStep(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, step)
}

// Update 修改工步（仅开工前）
// PUT /api/v1/steps/:id
func (h *StepHandler) Update(c *gin.Context) {
	var req service.UpdateStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	step, err := h.svc.UpdateStep(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, step)
}

// Delete 删除临时工步（仅开工前）
// DELETE /api/v1/steps/:id
func (h *StepHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteStep(c.Request.Context(), GetActor(c), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

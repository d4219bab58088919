package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// TemplateHandler 产品工步模板处理器
type TemplateHandler struct {
	svc *service.TemplateService
}

func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// List 产品工步模板列表
// GET /api/v1/products/:id/step-templates
func (h *TemplateHandler) List(c *gin.Context) {
	items, err := h.svc.ListTemplates(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, items)
}

// Create 追加工步模板
// POST /api/v1/products/:id/step-templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	tpl, err := h.svc.CreateTemplate(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, tpl)
}

// Update 更新工步模板
// PUT /api/v1/step-templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	var req service.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	tpl, err := h.svc.UpdateTemplate(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, tpl)
}

// Delete 删除工步模板
// DELETE /api/v1/step-templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteTemplate(c.Request.Context(), GetActor(c), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

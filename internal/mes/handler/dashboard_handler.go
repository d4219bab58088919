package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// DashboardHandler 生产看板处理器
type DashboardHandler struct {
	svc    *service.DashboardService
	health *service.HealthService
}

func NewDashboardHandler(svc *service.DashboardService, health *service.HealthService) *DashboardHandler {
	return &DashboardHandler{svc: svc, health: health}
}

// Summary 看板汇总
// GET /api/v1/dashboard/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.svc.GetSummary(c.Request.Context(), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, summary)
}

// RunHealth 单运行健康度
// GET /api/v1/runs/:id/health
func (h *DashboardHandler) RunHealth(c *gin.Context) {
	health, err := h.health.GetRunHealth(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, health)
}

// Export 导出运行看板xlsx
// GET /api/v1/dashboard/export
func (h *DashboardHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportRunsXlsx(c.Request.Context(), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

package handler

import (
	"fmt"
	"io"
	"net/url"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// BatchHandler 生产批次处理器
type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// Get 批次详情
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.svc.GetBatch(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// Start 批次开工
// POST /api/v1/batches/:id/start
func (h *BatchHandler) Start(c *gin.Context) {
	b, err := h.svc.StartBatch(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// Complete 批次完工
// POST /api/v1/batches/:id/complete
func (h *BatchHandler) Complete(c *gin.Context) {
	var req service.CompleteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	b, err := h.svc.CompleteBatch(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// SetQC 记录质检结论
// POST /api/v1/batches/:id/qc
func (h *BatchHandler) SetQC(c *gin.Context) {
	var req service.SetQCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	b, err := h.svc.SetQC(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// UploadCoA 上传质检报告
// POST /api/v1/batches/:id/coa
func (h *BatchHandler) UploadCoA(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "未提供文件")
		return
	}

	src, err := file.Open()
	if err != nil {
		InternalError(c, "读取文件失败: "+err.Error())
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b, err := h.svc.UploadCoA(c.Request.Context(), GetActor(c), c.Param("id"), src, file.Filename, file.Size, contentType)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// DownloadCoA 下载质检报告
// GET /api/v1/batches/:id/coa
func (h *BatchHandler) DownloadCoA(c *gin.Context) {
	object, b, err := h.svc.DownloadCoA(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer object.Close()

	fileName := fmt.Sprintf("CoA-%s.pdf", b.BatchCode)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.QueryEscape(fileName)))
	c.Header("Content-Type", "application/octet-stream")
	io.Copy(c.Writer, object)
}
